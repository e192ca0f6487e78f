package bot

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/code-enforcerr/MyMutualAME/internal/batch"
	"github.com/code-enforcerr/MyMutualAME/internal/intake"
	"github.com/code-enforcerr/MyMutualAME/internal/scheduler"
	"github.com/code-enforcerr/MyMutualAME/internal/verify"
)

type allowAll struct{}

func (allowAll) Allowed(string) bool { return true }

type allowNone struct{}

func (allowNone) Allowed(string) bool { return false }

// stubRunner returns matched for every record, in reverse order to prove
// the aggregator re-sorts.
type stubRunner struct{}

func (stubRunner) Run(_ context.Context, records []intake.Record, progress scheduler.Progress) []scheduler.Result {
	results := make([]scheduler.Result, 0, len(records))
	for i := len(records) - 1; i >= 0; i-- {
		results = append(results, scheduler.Result{Index: records[i].Index, Status: verify.StatusMatched, Passes: 1})
	}
	for i, res := range results {
		if progress != nil {
			progress(res, i+1, len(records))
		}
	}
	return results
}

type memMessenger struct {
	mu    sync.Mutex
	texts []string
	docs  []string
}

func (m *memMessenger) SendText(_ context.Context, _ int64, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.texts = append(m.texts, text)
	return nil
}

func (m *memMessenger) SendDocument(_ context.Context, _ int64, path, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs = append(m.docs, path)
	return nil
}

func newTestService(t *testing.T, allow Allower, maxRecords int) (*Service, *memMessenger) {
	t.Helper()
	msgr := &memMessenger{}
	svc := NewService(Options{
		MaxRecords:    maxRecords,
		ProgressEvery: 2,
		OutputRoot:    t.TempDir(),
		Params:        scheduler.Params{Concurrency: 2, MaxRetries: 1},
	}, allow, stubRunner{}, msgr, nil, zap.NewNop())
	return svc, msgr
}

func TestSubmitBatch_HappyPath(t *testing.T) {
	svc, msgr := newTestService(t, allowAll{}, 70)

	summary, err := svc.SubmitBatch(context.Background(), "123", 123, "Martines,02/23/1961,30331,9631\nSmith,01/01/1990,10001,1234")
	require.NoError(t, err)
	assert.Equal(t, 2, summary.ValidCount)
	assert.Equal(t, 2, summary.Counts.Matched)
	// Re-sorted despite the runner completing in reverse.
	assert.Equal(t, 1, summary.Results[0].Index)
	assert.Equal(t, 2, summary.Results[1].Index)

	require.NotEmpty(t, msgr.texts)
	assert.Contains(t, msgr.texts[len(msgr.texts)-1], "2 valid, 0 rejected")
	require.Len(t, msgr.docs, 1)
	assert.True(t, strings.HasSuffix(msgr.docs[0], ".zip"))
}

func TestSubmitBatch_AllowListEnforcedBeforeAnyWork(t *testing.T) {
	svc, msgr := newTestService(t, allowNone{}, 70)

	summary, err := svc.SubmitBatch(context.Background(), "999", 999, "Martines,02/23/1961,30331,9631")
	assert.ErrorIs(t, err, ErrNotAllowed)
	assert.Nil(t, summary)
	assert.Empty(t, msgr.texts)
}

func TestSubmitBatch_NoValidRecords(t *testing.T) {
	svc, _ := newTestService(t, allowAll{}, 70)

	_, err := svc.SubmitBatch(context.Background(), "123", 123, "garbage\nmore garbage")
	assert.ErrorIs(t, err, ErrNoValidRecords)
}

func TestSubmitBatch_TooManyRecordsRejectedBeforeAnyAttempt(t *testing.T) {
	svc, msgr := newTestService(t, allowAll{}, 70)

	var lines []string
	for i := 0; i < 75; i++ {
		lines = append(lines, "Martines,02/23/1961,30331,9631")
	}
	_, err := svc.SubmitBatch(context.Background(), "123", 123, strings.Join(lines, "\n"))

	var tooMany *ErrTooManyRecords
	require.ErrorAs(t, err, &tooMany)
	assert.Equal(t, 75, tooMany.Got)
	assert.Equal(t, 70, tooMany.Max)
	assert.Empty(t, msgr.docs, "no attempt output expected")
}

func TestSubmitBatch_ProgressMessages(t *testing.T) {
	svc, msgr := newTestService(t, allowAll{}, 0)

	var lines []string
	for i := 0; i < 6; i++ {
		lines = append(lines, "Martines,02/23/1961,30331,9631")
	}
	_, err := svc.SubmitBatch(context.Background(), "123", 123, strings.Join(lines, "\n"))
	require.NoError(t, err)

	var progress []string
	for _, txt := range msgr.texts {
		if strings.HasPrefix(txt, "Progress:") {
			progress = append(progress, txt)
		}
	}
	// ProgressEvery=2 over 6 records: updates at 2 and 4; 6 is the final summary.
	assert.Equal(t, []string{"Progress: 2/6 records checked", "Progress: 4/6 records checked"}, progress)
}

func TestSubmitBatch_PerChatSerialization(t *testing.T) {
	svc, _ := newTestService(t, allowAll{}, 0)
	require.True(t, svc.acquire(7))
	defer svc.release(7)

	_, err := svc.SubmitBatch(context.Background(), "123", 7, "Martines,02/23/1961,30331,9631")
	assert.ErrorIs(t, err, ErrBatchInFlight)
}

func TestRenderSummary_ListsRejectionsAndFailures(t *testing.T) {
	outcomes := intake.ParseBatch("Martines,02/23/1961,30331,9631\nbadline")
	results := []scheduler.Result{{Index: 1, Status: verify.StatusFailed, Diagnostic: "timeout: no result within 30s", Passes: 3}}
	s := batch.Aggregate("0f2b3c4d-test", scheduler.Params{}, outcomes, results)

	text := renderSummary(&s)
	assert.Contains(t, text, "line 2 rejected")
	assert.Contains(t, text, "record 1 failed after 3 passes")
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "0f2b3c4d", shortID("0f2b3c4d-93a1-4a77-b0de-1f4f2f9ad001"))
	assert.Equal(t, "b7", shortID("b7"))
	assert.Equal(t, "", shortID(""))
}

func TestRenderSummary_ShortBatchID(t *testing.T) {
	outcomes := intake.ParseBatch("Martines,02/23/1961,30331,9631")
	results := []scheduler.Result{{Index: 1, Status: verify.StatusMatched, Passes: 1}}
	s := batch.Aggregate("b7", scheduler.Params{}, outcomes, results)

	assert.NotPanics(t, func() {
		assert.Contains(t, renderSummary(&s), "Batch b7 complete")
	})
}
