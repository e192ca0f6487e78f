// Package bot receives batch requests from the chat transport, gates them
// on the requester allow-list, and delivers progress and results back.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/code-enforcerr/MyMutualAME/internal/batch"
	"github.com/code-enforcerr/MyMutualAME/internal/intake"
	"github.com/code-enforcerr/MyMutualAME/internal/scheduler"
	"github.com/code-enforcerr/MyMutualAME/internal/storage"
	"github.com/code-enforcerr/MyMutualAME/internal/verify"
)

// Messenger delivers text and files to a requester. The Telegram client
// is the production implementation.
type Messenger interface {
	SendText(ctx context.Context, chatID int64, text string) error
	SendDocument(ctx context.Context, chatID int64, path, caption string) error
}

// Runner executes a batch of records; scheduler.Pool in production.
type Runner interface {
	Run(ctx context.Context, records []intake.Record, progress scheduler.Progress) []scheduler.Result
}

// Allower answers whether a requester may submit batches.
type Allower interface {
	Allowed(id string) bool
}

// Batch-level rejections. These carry guidance for the requester and never
// reach the scheduler.
var (
	ErrNotAllowed     = errors.New("requester is not on the allow list")
	ErrNoValidRecords = errors.New("no valid records: expected lines of lastName,MM/DD/YYYY,zip,last4")
	ErrBatchInFlight  = errors.New("a batch is already running for this chat; wait for it to finish")
)

// ErrTooManyRecords asks the requester to split the batch.
type ErrTooManyRecords struct {
	Got, Max int
}

func (e *ErrTooManyRecords) Error() string {
	return fmt.Sprintf("%d valid records exceeds the %d per-batch maximum; split the batch and resubmit", e.Got, e.Max)
}

// Options bound a Service.
type Options struct {
	MaxRecords    int
	ProgressEvery int // completions between progress messages
	OutputRoot    string
	Params        scheduler.Params
}

// Service implements the batch submission surface.
type Service struct {
	opts      Options
	allow     Allower
	runner    Runner
	messenger Messenger
	history   *storage.History // optional
	log       *zap.Logger

	mu     sync.Mutex
	active map[int64]bool // one bounded batch at a time per chat
}

// NewService wires the submission surface. history may be nil.
func NewService(opts Options, allow Allower, runner Runner, messenger Messenger, history *storage.History, log *zap.Logger) *Service {
	if opts.ProgressEvery < 1 {
		opts.ProgressEvery = 5
	}
	return &Service{
		opts:      opts,
		allow:     allow,
		runner:    runner,
		messenger: messenger,
		history:   history,
		log:       log,
		active:    map[int64]bool{},
	}
}

// SubmitBatch validates, runs, aggregates, and persists one batch, then
// delivers the summary and archive to chatID. The returned summary is nil
// only when the submission was rejected before any attempt ran.
func (s *Service) SubmitBatch(ctx context.Context, requester string, chatID int64, text string) (*batch.Summary, error) {
	if !s.allow.Allowed(requester) {
		return nil, ErrNotAllowed
	}

	if !s.acquire(chatID) {
		return nil, ErrBatchInFlight
	}
	defer s.release(chatID)

	outcomes := intake.ParseBatch(text)
	var records []intake.Record
	for _, out := range outcomes {
		if out.Valid() {
			records = append(records, *out.Record)
		}
	}
	if len(records) == 0 {
		return nil, ErrNoValidRecords
	}
	if s.opts.MaxRecords > 0 && len(records) > s.opts.MaxRecords {
		return nil, &ErrTooManyRecords{Got: len(records), Max: s.opts.MaxRecords}
	}

	batchID := uuid.NewString()
	s.log.Info("batch accepted",
		zap.String("batch_id", batchID),
		zap.String("requester", requester),
		zap.Int("valid", len(records)),
		zap.Int("invalid", len(outcomes)-len(records)))

	started := time.Now()
	results := s.runner.Run(ctx, records, func(res scheduler.Result, done, total int) {
		if done%s.opts.ProgressEvery == 0 && done < total {
			s.notify(ctx, chatID, fmt.Sprintf("Progress: %d/%d records checked", done, total))
		}
	})

	summary := batch.Aggregate(batchID, s.opts.Params, outcomes, results)
	summary.Requester = requester
	summary.Duration = time.Since(started)

	s.persistAndDeliver(ctx, chatID, &summary)
	return &summary, nil
}

// persistAndDeliver writes the workspace, records history, and sends the
// report. Storage problems are reported, never fatal: the results already
// exist in memory and go out as text regardless.
func (s *Service) persistAndDeliver(ctx context.Context, chatID int64, summary *batch.Summary) {
	s.notify(ctx, chatID, renderSummary(summary))

	dir, err := storage.Workspace(s.opts.OutputRoot, summary.BatchID)
	if err != nil {
		s.log.Error("workspace creation failed", zap.String("batch_id", summary.BatchID), zap.Error(err))
		return
	}
	for _, err := range storage.CollectArtifacts(dir, summary.Results) {
		s.log.Warn("artifact move failed", zap.Error(err))
	}
	if _, err := storage.WriteSummary(dir, *summary); err != nil {
		s.log.Error("summary write failed", zap.String("batch_id", summary.BatchID), zap.Error(err))
	}
	if s.history != nil {
		if err := s.history.Record(ctx, *summary); err != nil {
			s.log.Error("history record failed", zap.String("batch_id", summary.BatchID), zap.Error(err))
		}
	}

	archive, err := storage.PackageArchive(dir)
	if err != nil {
		var tooBig *storage.ErrArchiveTooLarge
		if errors.As(err, &tooBig) {
			s.notify(ctx, chatID, fmt.Sprintf("Results saved to %s but the archive is too large to deliver (%d bytes).", dir, tooBig.Size))
		} else {
			s.log.Error("archive packaging failed", zap.String("batch_id", summary.BatchID), zap.Error(err))
		}
		return
	}
	if err := s.messenger.SendDocument(ctx, chatID, archive, fmt.Sprintf("Batch %s results", shortID(summary.BatchID))); err != nil {
		s.log.Error("archive delivery failed", zap.String("batch_id", summary.BatchID), zap.Error(err))
	}
}

func (s *Service) notify(ctx context.Context, chatID int64, text string) {
	if err := s.messenger.SendText(ctx, chatID, text); err != nil {
		s.log.Warn("message delivery failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (s *Service) acquire(chatID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active[chatID] {
		return false
	}
	s.active[chatID] = true
	return true
}

func (s *Service) release(chatID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, chatID)
}

// shortID abbreviates a batch ID for chat messages. IDs shorter than the
// abbreviation pass through unchanged.
func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

// renderSummary formats the final report for the chat.
func renderSummary(s *batch.Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Batch %s complete in %s\n", shortID(s.BatchID), s.Duration.Round(time.Second))
	fmt.Fprintf(&b, "Records: %d valid, %d rejected\n", s.ValidCount, s.InvalidCount)
	fmt.Fprintf(&b, "Matched: %d  Mismatched: %d  Indeterminate: %d  Failed: %d\n",
		s.Counts.Matched, s.Counts.Mismatched, s.Counts.Indeterminate, s.Counts.Failed)
	for _, rej := range s.Rejected {
		fmt.Fprintf(&b, "line %d rejected: %s\n", rej.Index, rej.Reason())
	}
	for _, res := range s.Results {
		if res.Status == verify.StatusFailed {
			fmt.Fprintf(&b, "record %d failed after %d passes: %s\n", res.Index, res.Passes, res.Diagnostic)
		}
	}
	return b.String()
}
