// Package scheduler runs verification attempts under a concurrency cap with
// per-attempt deadlines and a bounded retry budget. It owns admission,
// timing, and retries only; interaction and classification live in verify.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/code-enforcerr/MyMutualAME/internal/intake"
	"github.com/code-enforcerr/MyMutualAME/internal/verify"
)

// Attempter is the unit of work the pool dispatches. verify.Executor is
// the production implementation.
type Attempter interface {
	Attempt(ctx context.Context, rec intake.Record) verify.Outcome
}

// Params are the batch-wide execution knobs.
type Params struct {
	Concurrency    int
	AttemptTimeout time.Duration
	MaxRetries     int
	RetryDelay     time.Duration
}

// Result is the single terminal outcome for one record.
type Result struct {
	Index      int           `json:"index"`
	Status     verify.Status `json:"status"`
	Artifact   string        `json:"artifact,omitempty"`
	Diagnostic string        `json:"diagnostic,omitempty"`
	Passes     int           `json:"passes"`
}

// passState tracks one record through its retry loop.
type passState int

const (
	statePending passState = iota
	stateRunning
	stateRetryWait
	stateSucceeded
	stateFailed
)

// Progress is invoked once per terminal result, from a single goroutine.
type Progress func(res Result, done, total int)

// Pool is a bounded, work-conserving attempt runner.
type Pool struct {
	params    Params
	attempter Attempter
	log       *zap.Logger
}

// New validates params (clamping nonsense values) and builds a Pool.
func New(params Params, attempter Attempter, log *zap.Logger) *Pool {
	if params.Concurrency < 1 {
		params.Concurrency = 1
	}
	if params.MaxRetries < 0 {
		params.MaxRetries = 0
	}
	if params.AttemptTimeout <= 0 {
		params.AttemptTimeout = 90 * time.Second
	}
	return &Pool{params: params, attempter: attempter, log: log}
}

// Run executes every record and returns exactly one Result per record,
// sorted by index. Admission is FIFO in input order; completion order is
// whatever the network gives us. A record's total failure never aborts
// the batch.
func (p *Pool) Run(ctx context.Context, records []intake.Record, progress Progress) []Result {
	total := len(records)
	jobs := make(chan intake.Record)
	completions := make(chan Result, total)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < p.params.Concurrency; i++ {
		g.Go(func() error {
			for rec := range jobs {
				completions <- p.runRecord(gctx, rec)
			}
			return nil
		})
	}

	go func() {
		defer close(jobs)
		for _, rec := range records {
			select {
			case jobs <- rec:
			case <-gctx.Done():
				// Drain remaining records as cancelled so every record
				// still gets its one terminal result.
				completions <- Result{
					Index:      rec.Index,
					Status:     verify.StatusFailed,
					Diagnostic: fmt.Sprintf("batch cancelled: %v", gctx.Err()),
				}
			}
		}
	}()

	// Single writer over the shared batch state.
	results := make([]Result, 0, total)
	for done := 1; done <= total; done++ {
		res := <-completions
		results = append(results, res)
		if progress != nil {
			progress(res, done, total)
		}
	}
	_ = g.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].Index < results[j].Index })
	return results
}

// runRecord drives one record through the retry state machine. On exit the
// record is either Succeeded (any classification verdict) or Failed with
// the last diagnostic.
func (p *Pool) runRecord(ctx context.Context, rec intake.Record) Result {
	var last verify.Outcome
	passes := 0
	state := statePending

	for {
		switch state {
		case statePending:
			state = stateRunning

		case stateRetryWait:
			select {
			case <-time.After(p.params.RetryDelay):
				state = stateRunning
			case <-ctx.Done():
				last.Diagnostic = fmt.Sprintf("cancelled in retry wait: %v", ctx.Err())
				state = stateFailed
			}

		case stateRunning:
			passes++
			last = p.onePass(ctx, rec)
			switch {
			case last.Status != verify.StatusFailed:
				state = stateSucceeded
			case passes <= p.params.MaxRetries && ctx.Err() == nil:
				p.log.Info("retrying record",
					zap.Int("index", rec.Index),
					zap.Int("pass", passes),
					zap.String("reason", last.Diagnostic))
				state = stateRetryWait
			default:
				state = stateFailed
			}

		case stateSucceeded, stateFailed:
			return Result{
				Index:      rec.Index,
				Status:     last.Status,
				Artifact:   last.Artifact,
				Diagnostic: last.Diagnostic,
				Passes:     passes,
			}
		}
	}
}

// onePass races one attempt against the per-attempt deadline. If the
// deadline wins, the attempt keeps running on its own goroutine until the
// executor notices cancellation and releases its session; we stop waiting
// immediately.
func (p *Pool) onePass(ctx context.Context, rec intake.Record) verify.Outcome {
	attemptCtx, cancel := context.WithTimeout(ctx, p.params.AttemptTimeout)

	done := make(chan verify.Outcome, 1)
	go func() {
		done <- p.attempter.Attempt(attemptCtx, rec)
	}()

	select {
	case out := <-done:
		cancel()
		return out
	case <-attemptCtx.Done():
		go func() {
			// Drain the loser so its session teardown completes.
			<-done
			cancel()
		}()
		return verify.Outcome{
			Status:     verify.StatusFailed,
			Diagnostic: fmt.Sprintf("timeout: no result within %s", p.params.AttemptTimeout),
		}
	}
}
