/*
 * Copyright 2025 Google LLC
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *    https://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */
package recovery

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
)

// Options configures a Helper. Zero values select the defaults.
type Options struct {
	Rules      []Rule // nil means DefaultRules
	Threshold  *int   // nil means DefaultThreshold; 0 keeps every candidate
	MaxMatches int
	CacheTTL   time.Duration
	CasePolicy CasePolicy
	Logger     *zap.Logger
}

// Helper composes extraction, value lookup, matching and rewriting. One Helper
// owns one value cache and may be shared between goroutines.
type Helper struct {
	extractor *Extractor
	cache     *ValueCache
	matcher   Matcher
	rewriter  Rewriter
	logger    *zap.Logger
}

func New(source ValueSource, opts Options) *Helper {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	rules := opts.Rules
	if rules == nil {
		rules = DefaultRules()
	}
	matcher := DefaultMatcher()
	if opts.Threshold != nil {
		matcher.Threshold = *opts.Threshold
	}
	if opts.MaxMatches > 0 {
		matcher.MaxMatches = opts.MaxMatches
	}
	policy := opts.CasePolicy
	if policy == "" {
		policy = CasePolicyStored
	}

	return &Helper{
		extractor: NewExtractor(rules...),
		cache:     NewValueCache(source, WithTTL(opts.CacheTTL), WithLogger(logger)),
		matcher:   matcher,
		rewriter:  Rewriter{CasePolicy: policy},
		logger:    logger,
	}
}

func (h *Helper) Cache() *ValueCache { return h.cache }

func (h *Helper) Extractor() *Extractor { return h.extractor }

// Recover extracts the literals of failedQuery, matches each against its
// column's stored values and rewrites the query with the best candidates.
// A literal whose values cannot be read or that has no candidate is skipped.
// When nothing is corrected the query is returned unchanged with no
// suggestions. errorMessage is recorded but does not influence matching.
func (h *Helper) Recover(ctx context.Context, failedQuery string, errorMessage string) *Result {
	result := &Result{
		RewrittenQuery: failedQuery,
		Suggestions:    map[string]Suggestion{},
		ErrorMessage:   errorMessage,
	}
	h.logger.Debug("recovering query", zap.String("error", errorMessage))

	literals := h.extractor.Extract(failedQuery)
	if len(literals) == 0 {
		h.logger.Debug("no recoverable literals in query")
		return result
	}

	for _, lit := range literals {
		key := lit.Column.Key()
		lookup := h.cache.Lookup(ctx, lit.Column)
		if lookup.Status != Found {
			h.logger.Debug("skipping literal", zap.String("column", key), zap.Stringer("lookup", lookup.Status))
			continue
		}

		matches := h.matcher.Match(lit.Value(), lookup.Values)
		if len(matches) == 0 {
			h.logger.Debug("no candidate above threshold",
				zap.String("column", key),
				zap.String("literal", lit.RawValue),
				zap.Int("threshold", h.matcher.Threshold))
			continue
		}

		s := Suggestion{
			ColumnRef: lit.Column,
			Original:  lit.RawValue,
			Context:   lit.Context,
			Form:      lit.Form,
			Span:      lit.Span,
			Matches:   matches,
		}
		result.Suggestions[key] = s
		result.ordered = append(result.ordered, s)
		h.logger.Info("literal corrected",
			zap.String("column", key),
			zap.String("original", lit.RawValue),
			zap.String("best", matches[0].Value),
			zap.Int("score", matches[0].Score))
	}

	if len(result.ordered) > 0 {
		result.RewrittenQuery = h.rewriter.Rewrite(failedQuery, result.ordered)
	}
	return result
}

// RewriteRank rewrites query with the candidates at rank of a previous result.
// Rank 0 reproduces result.RewrittenQuery.
func (h *Helper) RewriteRank(query string, result *Result, rank int) string {
	return h.rewriter.RewriteRank(query, result.Ordered(), rank)
}

// FormatResultAsText renders a result for terminal output.
func FormatResultAsText(result *Result) string {
	if result == nil || len(result.Suggestions) == 0 {
		return "No recoverable literals found.\n"
	}

	var buffer bytes.Buffer
	buffer.WriteString("--- Rewritten query ---\n")
	buffer.WriteString(result.RewrittenQuery)
	buffer.WriteString("\n\n--- Suggestions ---\n")

	keys := make([]string, 0, len(result.Suggestions))
	for key := range result.Suggestions {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		s := result.Suggestions[key]
		buffer.WriteString(fmt.Sprintf("  Column: %s\n", key))
		buffer.WriteString(fmt.Sprintf("  Original: '%s'\n", s.Original))
		buffer.WriteString(fmt.Sprintf("  Context: %s\n", s.Context))
		for i, m := range s.Matches {
			buffer.WriteString(fmt.Sprintf("    %d. %s (%d)\n", i+1, m.Value, m.Score))
		}
	}
	return buffer.String()
}
