// Package batch assembles per-record results into an ordered, countable
// summary. Aggregation is pure; persistence lives in storage.
package batch

import (
	"sort"
	"time"

	"github.com/code-enforcerr/MyMutualAME/internal/intake"
	"github.com/code-enforcerr/MyMutualAME/internal/scheduler"
	"github.com/code-enforcerr/MyMutualAME/internal/verify"
)

// Counts holds per-status tallies for one batch.
type Counts struct {
	Matched       int `json:"matched"`
	Mismatched    int `json:"mismatched"`
	Indeterminate int `json:"indeterminate"`
	Failed        int `json:"failed"`
}

// Summary is the persisted record of one batch run.
type Summary struct {
	BatchID      string             `json:"batch_id"`
	Requester    string             `json:"requester,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
	TotalLines   int                `json:"total_lines"`
	ValidCount   int                `json:"valid_count"`
	InvalidCount int                `json:"invalid_count"`
	Params       scheduler.Params   `json:"params"`
	Counts       Counts             `json:"counts"`
	Rejected     []intake.Rejection `json:"rejected,omitempty"`
	Results      []scheduler.Result `json:"results"`
	Duration     time.Duration      `json:"duration_ns"`
}

// Aggregate restores input order over the results and computes counts.
// Completion order is meaningless by the time we get here.
func Aggregate(batchID string, params scheduler.Params, outcomes []intake.ParseOutcome, results []scheduler.Result) Summary {
	sorted := make([]scheduler.Result, len(results))
	copy(sorted, results)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })

	s := Summary{
		BatchID:    batchID,
		CreatedAt:  time.Now().UTC(),
		TotalLines: len(outcomes),
		Params:     params,
		Results:    sorted,
	}
	for _, out := range outcomes {
		if out.Valid() {
			s.ValidCount++
		} else {
			s.InvalidCount++
			s.Rejected = append(s.Rejected, *out.Reject)
		}
	}
	for _, res := range sorted {
		switch res.Status {
		case verify.StatusMatched:
			s.Counts.Matched++
		case verify.StatusMismatched:
			s.Counts.Mismatched++
		case verify.StatusIndeterminate:
			s.Counts.Indeterminate++
		default:
			s.Counts.Failed++
		}
	}
	return s
}
