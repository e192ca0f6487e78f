// Package intake parses raw batch text into verification records.
// Parsing is a pure function of the input: no I/O, no clock, no globals.
package intake

import "fmt"

// RejectKind identifies why a line was rejected.
type RejectKind string

const (
	RejectEmptyLine     RejectKind = "empty_line"
	RejectBadFieldCount RejectKind = "bad_field_count"
	RejectInvalidName   RejectKind = "invalid_lastname"
	RejectInvalidDOB    RejectKind = "invalid_dob"
	RejectInvalidZip    RejectKind = "invalid_zip"
	RejectInvalidLast4  RejectKind = "invalid_last4"
)

// Record is one validated input row, immutable once constructed.
// Index is the 1-based position among the batch's non-comment lines and
// is the stable sort key for results.
type Record struct {
	Index    int    `json:"index"`
	LastName string `json:"last_name"`
	DOB      string `json:"dob"` // canonical MM/DD/YYYY
	Zip      string `json:"zip"`
	Last4    string `json:"last4"`
}

// Rejection describes a line that failed validation. Value carries the
// offending raw field so the failure can be reproduced from the report.
type Rejection struct {
	Index  int        `json:"index"`
	Raw    string     `json:"raw"`
	Kind   RejectKind `json:"kind"`
	Field  string     `json:"field,omitempty"`
	Value  string     `json:"value,omitempty"`
	Detail string     `json:"detail,omitempty"`
}

// Reason renders a human-readable rejection message.
func (r Rejection) Reason() string {
	switch r.Kind {
	case RejectEmptyLine:
		return "empty line"
	case RejectBadFieldCount:
		return fmt.Sprintf("expected 4 fields, %s", r.Detail)
	case RejectInvalidName:
		return fmt.Sprintf("invalid last name %q", r.Value)
	case RejectInvalidDOB:
		return fmt.Sprintf("unparseable date of birth %q", r.Value)
	case RejectInvalidZip:
		return fmt.Sprintf("invalid ZIP code %q", r.Value)
	case RejectInvalidLast4:
		return fmt.Sprintf("invalid SSN last-4 %q", r.Value)
	}
	return string(r.Kind)
}

// ParseOutcome is the result of parsing one input line. Exactly one of
// Record or Reject is set.
type ParseOutcome struct {
	Index  int        `json:"index"`
	Raw    string     `json:"raw"`
	Record *Record    `json:"record,omitempty"`
	Reject *Rejection `json:"reject,omitempty"`
}

// Valid reports whether the line produced a usable Record.
func (o ParseOutcome) Valid() bool { return o.Record != nil }
