package verify

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/code-enforcerr/MyMutualAME/internal/intake"
)

// Status is the verdict for one record.
type Status string

const (
	StatusMatched       Status = "matched"
	StatusMismatched    Status = "mismatched"
	StatusIndeterminate Status = "indeterminate"
	StatusFailed        Status = "failed"
)

// Outcome is the result of a single attempt pass, before the scheduler
// attaches index and retry bookkeeping.
type Outcome struct {
	Status     Status
	Artifact   string
	Diagnostic string
}

// fieldSpec pairs a form field with its locator candidates, most specific
// first. The form markup shifts between deploys, so each field carries a
// fallback chain rather than a single selector.
type fieldSpec struct {
	name     string
	locators []string
	value    func(intake.Record) string
}

var fieldSpecs = []fieldSpec{
	{
		name: "last_name",
		locators: []string{
			`input[name="lastName"]`, `#lastName`,
			`input[autocomplete="family-name"]`, `input[placeholder*="Last Name"]`,
		},
		value: func(r intake.Record) string { return r.LastName },
	},
	{
		name: "dob",
		locators: []string{
			`input[name="dateOfBirth"]`, `#dateOfBirth`, `#dob`,
			`input[placeholder*="Date of Birth"]`, `input[placeholder*="MM/DD/YYYY"]`,
		},
		value: func(r intake.Record) string { return r.DOB },
	},
	{
		name: "zip",
		locators: []string{
			`input[name="zipCode"]`, `#zipCode`, `#zip`,
			`input[autocomplete="postal-code"]`, `input[placeholder*="ZIP"]`,
		},
		value: func(r intake.Record) string { return r.Zip },
	},
	{
		name: "last4",
		locators: []string{
			`input[name="ssnLast4"]`, `#ssnLast4`, `#last4`,
			`input[placeholder*="last 4"]`, `input[placeholder*="Last 4"]`,
		},
		value: func(r intake.Record) string { return r.Last4 },
	},
}

var submitLocators = []string{
	`button[type="submit"]`, `input[type="submit"]`,
	`#continue`, `button[name="continue"]`,
}

// mismatchVocabulary is checked before successVocabulary on every scan:
// a false "matched" is the costlier error, so mismatch evidence wins when
// both appear together.
var mismatchVocabulary = []string{
	"unable to confirm",
	"does not match",
	"no match",
	"could not verify",
	"not able to verify",
	"information you entered",
}

var successVocabulary = []string{
	"verified",
	"security code",
	"verification code",
	"has been confirmed",
}

// Executor runs one record through the form and classifies the result.
type Executor struct {
	factory      SessionFactory
	log          *zap.Logger
	artifactDir  string
	pollInterval time.Duration
	classifyFor  time.Duration
}

// NewExecutor builds an Executor. artifactDir receives one PNG per attempt.
func NewExecutor(factory SessionFactory, artifactDir string, log *zap.Logger) *Executor {
	return &Executor{
		factory:      factory,
		log:          log,
		artifactDir:  artifactDir,
		pollInterval: 250 * time.Millisecond,
		classifyFor:  15 * time.Second,
	}
}

// Attempt performs one full pass: fill, submit, classify, capture. Errors
// never propagate; every path returns an Outcome.
func (e *Executor) Attempt(ctx context.Context, rec intake.Record) Outcome {
	sess, err := e.factory.Probe(ctx)
	if err != nil {
		return Outcome{Status: StatusFailed, Diagnostic: fmt.Sprintf("open session: %v", err)}
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			e.log.Warn("session close failed", zap.Int("index", rec.Index), zap.Error(cerr))
		}
	}()

	out := e.drive(ctx, sess, rec)

	// Capture even on failure. A capture error is logged, never escalated.
	path := filepath.Join(e.artifactDir, fmt.Sprintf("attempt-%03d-%s.png", rec.Index, uuid.NewString()[:8]))
	if err := sess.CaptureArtifact(ctx, path); err != nil {
		e.log.Warn("artifact capture failed", zap.Int("index", rec.Index), zap.Error(err))
	} else {
		out.Artifact = path
	}
	return out
}

// drive performs fill, submit, and classification. A panic anywhere in the
// interaction surfaces as a failed Outcome.
func (e *Executor) drive(ctx context.Context, sess Session, rec intake.Record) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = Outcome{Status: StatusFailed, Diagnostic: fmt.Sprintf("attempt panic: %v", r)}
		}
	}()

	var filled []string
	for _, spec := range fieldSpecs {
		if !sess.FillField(ctx, spec.locators, spec.value(rec)) {
			return Outcome{
				Status:     StatusFailed,
				Diagnostic: fmt.Sprintf("fields_not_found: could not fill %s (filled: %s)", spec.name, joinOrNone(filled)),
			}
		}
		filled = append(filled, spec.name)
	}

	if !sess.ClickControl(ctx, submitLocators) {
		return Outcome{Status: StatusFailed, Diagnostic: "no_submit_control: no clickable submit element"}
	}

	return e.classify(ctx, sess)
}

// classify polls the page for verdict vocabulary until the deadline.
// Within one scan mismatch outranks success; across polls the first
// verdict wins.
func (e *Executor) classify(ctx context.Context, sess Session) Outcome {
	deadline := time.Now().Add(e.classifyFor)
	for {
		for _, phrase := range mismatchVocabulary {
			if sess.FindText(ctx, phrase) {
				return Outcome{Status: StatusMismatched, Diagnostic: fmt.Sprintf("matched mismatch text %q", phrase)}
			}
		}
		for _, phrase := range successVocabulary {
			if sess.FindText(ctx, phrase) {
				return Outcome{Status: StatusMatched, Diagnostic: fmt.Sprintf("matched success text %q", phrase)}
			}
		}
		if time.Now().After(deadline) {
			return Outcome{Status: StatusIndeterminate, Diagnostic: "no verdict text before deadline"}
		}
		select {
		case <-ctx.Done():
			return Outcome{Status: StatusFailed, Diagnostic: fmt.Sprintf("classification interrupted: %v", ctx.Err())}
		case <-time.After(e.pollInterval):
		}
	}
}

func joinOrNone(fields []string) string {
	if len(fields) == 0 {
		return "none"
	}
	return strings.Join(fields, ", ")
}
