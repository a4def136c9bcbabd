// Package recovery corrects misspelled literals in failed queries by matching
// them against the values actually stored in the referenced column.
package recovery

import (
	"strings"
)

// ColumnRef identifies one value domain. It is compared case-sensitively and
// never aliased across tables.
type ColumnRef struct {
	Table  string `json:"table"`
	Column string `json:"column"`
}

// Key returns "table.column".
func (c ColumnRef) Key() string {
	return c.Table + "." + c.Column
}

func (c ColumnRef) String() string { return c.Key() }

// PredicateForm is the shape of the predicate a literal appears in.
type PredicateForm string

const (
	Equality PredicateForm = "equality" // column = 'value'
	Like     PredicateForm = "like"     // column LIKE '%value%'
	ILike    PredicateForm = "ilike"    // column ILIKE '%value%'
)

// Span is a half-open byte range into the query text.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Valid reports whether the span lies inside query and covers exactly text.
func (s Span) Valid(query, text string) bool {
	if s.Start < 0 || s.End < s.Start || s.End > len(query) {
		return false
	}
	return query[s.Start:s.End] == text
}

// ExtractedLiteral is a quoted value found in a predicate on a known column.
type ExtractedLiteral struct {
	RawValue string
	Column   ColumnRef
	Form     PredicateForm
	Context  string
	Span     Span
}

// Value returns the literal with SQL quote escaping removed.
func (l ExtractedLiteral) Value() string {
	return strings.ReplaceAll(l.RawValue, "''", "'")
}

// MatchCandidate is a stored value proposed as a correction.
type MatchCandidate struct {
	Value string `json:"value"`
	Score int    `json:"score"`
}

// Suggestion groups the ranked candidates for one extracted literal.
type Suggestion struct {
	ColumnRef
	Original string           `json:"original"`
	Context  string           `json:"context"`
	Form     PredicateForm    `json:"form"`
	Span     Span             `json:"-"`
	Matches  []MatchCandidate `json:"matches"`
}

// Best returns the top-ranked candidate.
func (s Suggestion) Best() (MatchCandidate, bool) {
	if len(s.Matches) == 0 {
		return MatchCandidate{}, false
	}
	return s.Matches[0], true
}

// Result is the outcome of one recovery attempt.
type Result struct {
	RewrittenQuery string                `json:"rewritten_query"`
	Suggestions    map[string]Suggestion `json:"suggestions"`
	ErrorMessage   string                `json:"error,omitempty"`

	// every suggestion in query order, including repeats of the same column
	ordered []Suggestion
}

// Recovered reports whether any literal was corrected.
func (r *Result) Recovered() bool {
	return r != nil && len(r.ordered) > 0
}

// Ordered returns the suggestions in the order their literals appear in the query.
func (r *Result) Ordered() []Suggestion {
	if r == nil {
		return nil
	}
	return r.ordered
}

// Ranks returns how many alternative rewrites the result supports.
func (r *Result) Ranks() int {
	ranks := 0
	for _, s := range r.Ordered() {
		ranks = max(ranks, len(s.Matches))
	}
	return ranks
}
