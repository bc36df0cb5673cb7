// Package types defines core data structures for deskflow.
package types

import (
	"fmt"
	"strings"
)

// IdentityColumns lists the columns that may carry a row's identity key,
// in lookup order.
var IdentityColumns = []string{"emailaddress", "email", "Email"}

// Row is one source record keyed by column name. A nil value means the
// column is absent for this row.
type Row map[string]any

// Get returns the value of a column, or nil when the column is absent.
// Byte slices (as returned by some SQL drivers for text) come back as strings.
func (r Row) Get(col string) any {
	v, ok := r[col]
	if !ok {
		return nil
	}
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

// String returns the column value as text, or "" when absent.
func (r Row) String(col string) string {
	v := r.Get(col)
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Email returns the row's identity key, or "" if none of the identity
// columns hold a value.
func (r Row) Email() string {
	for _, col := range IdentityColumns {
		if s := r.String(col); s != "" {
			return s
		}
	}
	return ""
}

// Choice is one selectable option of a form question.
type Choice struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Question is one entry of the form definition's question block.
type Question struct {
	Type    string       `json:"type"`
	Kind    QuestionKind `json:"-"`
	Choices []Choice     `json:"choices,omitempty"`
}

// QuestionMap maps question ID to its definition.
type QuestionMap map[string]Question

// QuestionKind is the closed set of answer shapes a question accepts.
type QuestionKind int

const (
	KindUnknown QuestionKind = iota
	KindText
	KindDate
	KindSingleChoice
	KindMultiChoice
)

// ParseQuestionKind maps a Jira Forms type tag onto a QuestionKind.
func ParseQuestionKind(tag string) QuestionKind {
	switch strings.TrimSpace(tag) {
	case "ts", "te", "pg", "text":
		return KindText
	case "da":
		return KindDate
	case "cs":
		return KindSingleChoice
	case "cm":
		return KindMultiChoice
	default:
		return KindUnknown
	}
}

func (k QuestionKind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindDate:
		return "date"
	case KindSingleChoice:
		return "single-choice"
	case KindMultiChoice:
		return "multi-choice"
	default:
		return "unknown"
	}
}

// RunSummary holds the result of one pipeline run.
type RunSummary struct {
	RunID       string `json:"run_id"`
	Fetched     int    `json:"fetched"`
	Eligible    int    `json:"eligible"`
	Submitted   int    `json:"submitted"`
	Skipped     int    `json:"skipped"`
	Flagged     int    `json:"flagged"`
	Failed      int    `json:"failed"`
	DryRun      bool   `json:"dry_run,omitempty"`
	LastRunDate string `json:"last_run_date,omitempty"`
}

// Outcome is what happened to a single row.
type Outcome int

const (
	OutcomeSkipped Outcome = iota
	OutcomeSubmitted
	OutcomeFlagged
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSubmitted:
		return "submitted"
	case OutcomeFlagged:
		return "flagged"
	case OutcomeFailed:
		return "failed"
	default:
		return "skipped"
	}
}

