package recovery

import (
	"fmt"
	"regexp"
	"sort"
	"sync"
)

// Rule recognises literals constraining one column in one predicate form.
// Value must capture the literal in its first group. Context matches the
// surrounding WHERE/AND clause.
type Rule struct {
	Table   string
	Column  string
	Form    PredicateForm
	Value   *regexp.Regexp
	Context *regexp.Regexp
}

// Ref returns the column the rule constrains.
func (r Rule) Ref() ColumnRef {
	return ColumnRef{Table: r.Table, Column: r.Column}
}

// quotedLiteral accepts SQL-escaped quotes inside the literal.
const quotedLiteral = `'((?:[^']|'')*)'`

// wildcardLiteral is '%value%' with no further wildcards inside.
const wildcardLiteral = `'%((?:[^'%]|'')+)%'`

// NewRule builds the value and context patterns for column in the given form.
// The column may be qualified by a table or alias and must stand alone as a
// word, so "name" does not match "first_name".
func NewRule(table, column string, form PredicateForm) Rule {
	col := `(?:\w+\.)?\b` + regexp.QuoteMeta(column)

	var predicate string
	switch form {
	case Like:
		predicate = col + `\s+LIKE\s*` + wildcardLiteral
	case ILike:
		predicate = col + `\s+ILIKE\s*` + wildcardLiteral
	default:
		form = Equality
		predicate = col + `\s*=\s*` + quotedLiteral
	}

	return Rule{
		Table:   table,
		Column:  column,
		Form:    form,
		Value:   regexp.MustCompile(`(?i)` + predicate),
		Context: regexp.MustCompile(`(?i)\b(?:WHERE|AND)\s+` + predicate),
	}
}

// ColumnRules returns the equality, LIKE and ILIKE rules for one column.
func ColumnRules(table, column string) []Rule {
	return []Rule{
		NewRule(table, column, Equality),
		NewRule(table, column, Like),
		NewRule(table, column, ILike),
	}
}

// DefaultRules covers the free-text columns of the dvdrental sample database.
func DefaultRules() []Rule {
	var rules []Rule
	for _, ref := range []ColumnRef{
		{Table: "film", Column: "title"},
		{Table: "customer", Column: "first_name"},
		{Table: "customer", Column: "last_name"},
		{Table: "category", Column: "name"},
	} {
		rules = append(rules, ColumnRules(ref.Table, ref.Column)...)
	}
	return rules
}

// Extractor finds literals in query text using a registry of rules.
type Extractor struct {
	mu    sync.RWMutex
	rules []Rule
}

func NewExtractor(rules ...Rule) *Extractor {
	e := &Extractor{}
	e.Register(rules...)
	return e
}

// Register adds rules. Rules without a value pattern are ignored.
func (e *Extractor) Register(rules ...Rule) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, r := range rules {
		if r.Value == nil {
			continue
		}
		e.rules = append(e.rules, r)
	}
}

// Rules returns a copy of the registered rules.
func (e *Extractor) Rules() []Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]Rule(nil), e.rules...)
}

// Refs returns the distinct columns covered by the registry, in registration order.
func (e *Extractor) Refs() []ColumnRef {
	seen := make(map[ColumnRef]bool)
	var refs []ColumnRef
	for _, r := range e.Rules() {
		if !seen[r.Ref()] {
			seen[r.Ref()] = true
			refs = append(refs, r.Ref())
		}
	}
	return refs
}

// Extract returns every literal matched by a rule, in query order.
func (e *Extractor) Extract(query string) []ExtractedLiteral {
	type key struct {
		ref  ColumnRef
		span Span
	}
	seen := make(map[key]bool)

	var literals []ExtractedLiteral
	for _, rule := range e.Rules() {
		var contexts [][]int
		if rule.Context != nil {
			contexts = rule.Context.FindAllStringIndex(query, -1)
		}

		for _, m := range rule.Value.FindAllStringSubmatchIndex(query, -1) {
			if len(m) < 4 || m[2] < 0 {
				continue
			}
			span := Span{Start: m[2], End: m[3]}
			k := key{ref: rule.Ref(), span: span}
			if seen[k] {
				continue
			}
			seen[k] = true

			literals = append(literals, ExtractedLiteral{
				RawValue: query[span.Start:span.End],
				Column:   rule.Ref(),
				Form:     rule.Form,
				Context:  enclosingContext(query, contexts, m[0], m[1]),
				Span:     span,
			})
		}
	}

	sort.SliceStable(literals, func(i, j int) bool {
		return literals[i].Span.Start < literals[j].Span.Start
	})
	return literals
}

// enclosingContext picks the clause match covering [start, end), falling back
// to the predicate itself.
func enclosingContext(query string, contexts [][]int, start, end int) string {
	for _, c := range contexts {
		if c[0] <= start && c[1] >= end {
			return query[c[0]:c[1]]
		}
	}
	return query[start:end]
}

func (r Rule) String() string {
	return fmt.Sprintf("%s[%s]", r.Ref().Key(), r.Form)
}
