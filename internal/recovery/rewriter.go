package recovery

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// CasePolicy decides the casing of a replacement value.
type CasePolicy string

const (
	// CasePolicyStored writes the candidate exactly as stored.
	CasePolicyStored CasePolicy = "stored"
	// CasePolicyLiteral recases the candidate to the literal's style when the
	// literal is all upper, all lower or title case.
	CasePolicyLiteral CasePolicy = "literal"
)

// ParseCasePolicy accepts "stored", "literal" or the empty string (stored).
func ParseCasePolicy(s string) (CasePolicy, error) {
	switch CasePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", CasePolicyStored:
		return CasePolicyStored, nil
	case CasePolicyLiteral:
		return CasePolicyLiteral, nil
	default:
		return "", fmt.Errorf("unknown case policy %q (want %q or %q)", s, CasePolicyStored, CasePolicyLiteral)
	}
}

// Rewriter substitutes corrected values into query text.
type Rewriter struct {
	CasePolicy CasePolicy
}

// Rewrite applies the best candidate of every suggestion.
func (r Rewriter) Rewrite(query string, suggestions []Suggestion) string {
	return r.RewriteRank(query, suggestions, 0)
}

// RewriteRank applies the candidate at rank of every suggestion, or its best
// candidate when it has fewer matches.
//
// A suggestion whose span still covers its original text is replaced in place,
// so an identical literal on another column is left alone. Spans are applied
// from the end of the query backwards and overlapping spans are skipped.
// Suggestions without a usable span fall back to replacing every quoted and
// wildcard occurrence of the original.
func (r Rewriter) RewriteRank(query string, suggestions []Suggestion, rank int) string {
	type edit struct {
		span        Span
		replacement string
	}
	var anchored []edit
	var global []Suggestion

	for _, s := range suggestions {
		if len(s.Matches) == 0 {
			continue
		}
		switch {
		case s.Original == "":
		case s.Span.Valid(query, s.Original):
			anchored = append(anchored, edit{span: s.Span, replacement: r.replacement(s, rank)})
		default:
			global = append(global, s)
		}
	}

	sort.SliceStable(anchored, func(i, j int) bool {
		return anchored[i].span.Start > anchored[j].span.Start
	})
	limit := len(query)
	for _, e := range anchored {
		if e.span.End > limit {
			continue
		}
		query = query[:e.span.Start] + e.replacement + query[e.span.End:]
		limit = e.span.Start
	}

	for _, s := range global {
		query = replaceEverywhere(query, s.Original, r.replacement(s, rank))
	}
	return query
}

// replacement returns the SQL-escaped text for the chosen candidate.
func (r Rewriter) replacement(s Suggestion, rank int) string {
	if rank < 0 || rank >= len(s.Matches) {
		rank = 0
	}
	value := s.Matches[rank].Value
	if r.CasePolicy == CasePolicyLiteral {
		value = matchCase(unescape(s.Original), value)
	}
	return strings.ReplaceAll(value, "'", "''")
}

// replaceEverywhere swaps 'original' and the LIKE/ILIKE '%original%' forms
// anywhere in query.
func replaceEverywhere(query, original, replacement string) string {
	query = strings.ReplaceAll(query, "'"+original+"'", "'"+replacement+"'")

	wildcard := regexp.MustCompile(`(?i)(\bI?LIKE\s*)'%` + regexp.QuoteMeta(original) + `%'`)
	return wildcard.ReplaceAllString(query, "${1}'%"+strings.ReplaceAll(replacement, "$", "$$")+"%'")
}

// matchCase transfers the casing style of literal onto value. Casers are
// stateful, so each call builds its own.
func matchCase(literal, value string) string {
	if strings.ToUpper(literal) == strings.ToLower(literal) {
		return value
	}
	upperCaser := cases.Upper(language.Und)
	lowerCaser := cases.Lower(language.Und)
	titleCaser := cases.Title(language.Und)
	switch literal {
	case upperCaser.String(literal):
		return upperCaser.String(value)
	case lowerCaser.String(literal):
		return lowerCaser.String(value)
	case titleCaser.String(literal):
		return titleCaser.String(value)
	}
	return value
}

func unescape(raw string) string {
	return strings.ReplaceAll(raw, "''", "'")
}
