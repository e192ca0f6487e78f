package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/code-enforcerr/MyMutualAME/internal/storage"
)

const helpText = `Send one record per line:
lastName,dateOfBirth,zip,ssnLast4

Example:
Martines,02/23/1961,30331,9631

Dates accept YYYY-MM-DD, M/D/YY, and MM/DD/YYYY. Lines starting with #
are ignored. Commands: /help, /recent`

// Loop polls the chat transport and dispatches messages to the Service.
type Loop struct {
	client  *TelegramClient
	service *Service
	history *storage.History // optional, backs /recent
	log     *zap.Logger
}

// NewLoop wires the update loop.
func NewLoop(client *TelegramClient, service *Service, history *storage.History, log *zap.Logger) *Loop {
	return &Loop{client: client, service: service, history: history, log: log}
}

// Run long-polls until ctx is cancelled. Transport errors back off and
// retry; they never kill the loop.
func (l *Loop) Run(ctx context.Context) error {
	var offset int64
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		updates, err := l.client.GetUpdates(ctx, offset)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			l.log.Warn("getUpdates failed", zap.Error(err))
			select {
			case <-time.After(3 * time.Second):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}
		for _, u := range updates {
			offset = u.UpdateID + 1
			if u.Message == nil || strings.TrimSpace(u.Message.Text) == "" {
				continue
			}
			// Batches run long; handle each message on its own goroutine.
			// The per-chat gate in Service serializes real work.
			go l.handle(ctx, u.Message)
		}
	}
}

func (l *Loop) handle(ctx context.Context, msg *Message) {
	text := strings.TrimSpace(msg.Text)
	switch {
	case text == "/start" || text == "/help":
		l.reply(ctx, msg.Chat.ID, helpText)
	case text == "/recent":
		l.replyRecent(ctx, msg.Chat.ID)
	default:
		l.submit(ctx, msg, text)
	}
}

func (l *Loop) submit(ctx context.Context, msg *Message, text string) {
	summary, err := l.service.SubmitBatch(ctx, msg.RequesterID(), msg.Chat.ID, text)
	if err != nil {
		if errors.Is(err, ErrNotAllowed) {
			l.log.Warn("rejected unauthorized requester", zap.String("requester", msg.RequesterID()))
			return
		}
		l.reply(ctx, msg.Chat.ID, "Batch rejected: "+err.Error())
		return
	}
	l.log.Info("batch delivered",
		zap.String("batch_id", summary.BatchID),
		zap.Int("matched", summary.Counts.Matched))
}

func (l *Loop) replyRecent(ctx context.Context, chatID int64) {
	if l.history == nil {
		l.reply(ctx, chatID, "History is not enabled.")
		return
	}
	entries, err := l.history.Recent(ctx, 10)
	if err != nil {
		l.log.Error("history query failed", zap.Error(err))
		l.reply(ctx, chatID, "Could not read batch history.")
		return
	}
	if len(entries) == 0 {
		l.reply(ctx, chatID, "No batches yet.")
		return
	}
	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "%s  %s  %d matched / %d mismatched / %d failed\n",
			e.FinishedAt.Format("2006-01-02 15:04"), shortID(e.BatchID), e.Matched, e.Mismatched, e.Failed)
	}
	l.reply(ctx, chatID, b.String())
}

func (l *Loop) reply(ctx context.Context, chatID int64, text string) {
	if err := l.client.SendText(ctx, chatID, text); err != nil {
		l.log.Warn("reply failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}
