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
	"sort"
	"strings"

	"github.com/GoogleCloudPlatform/db-query-recovery/internal/fuzz"
)

const (
	DefaultThreshold  = 50
	DefaultMaxMatches = 5
)

// Matcher scores a literal against a column's known values.
type Matcher struct {
	Threshold  int // minimum score, 0-100
	MaxMatches int // zero or less means DefaultMaxMatches
}

// DefaultMatcher returns a matcher with threshold 50 and at most 5 matches.
func DefaultMatcher() Matcher {
	return Matcher{Threshold: DefaultThreshold, MaxMatches: DefaultMaxMatches}
}

// Match scores value against universe with the default match limit.
func Match(value string, universe []string, threshold int) []MatchCandidate {
	return Matcher{Threshold: threshold, MaxMatches: DefaultMaxMatches}.Match(value, universe)
}

// Match returns candidates ordered by descending score, ties kept in universe order.
//
// Entries sharing a whole word with value are scored with the token sort ratio
// first; if any of them reaches the threshold the remaining entries are not
// considered. Otherwise every entry is scored with the best of the four metrics.
// Comparison is case-insensitive, candidates keep their stored casing.
func (m Matcher) Match(value string, universe []string) []MatchCandidate {
	if value == "" || len(universe) == 0 {
		return nil
	}

	upperValue := strings.ToUpper(value)
	tokens := make(map[string]bool)
	for _, tok := range strings.Fields(upperValue) {
		tokens[tok] = true
	}

	var candidates []MatchCandidate
	for _, entry := range universe {
		upperEntry := strings.ToUpper(entry)
		if !sharesToken(tokens, upperEntry) {
			continue
		}
		if score := fuzz.TokenSortRatio(upperValue, upperEntry); score >= m.Threshold {
			candidates = append(candidates, MatchCandidate{Value: entry, Score: score})
		}
	}
	if len(candidates) > 0 {
		return m.rank(candidates)
	}

	for _, entry := range universe {
		if score := fuzz.Best(upperValue, strings.ToUpper(entry)); score >= m.Threshold {
			candidates = append(candidates, MatchCandidate{Value: entry, Score: score})
		}
	}
	return m.rank(candidates)
}

func (m Matcher) rank(candidates []MatchCandidate) []MatchCandidate {
	if len(candidates) == 0 {
		return nil
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})

	limit := m.MaxMatches
	if limit <= 0 {
		limit = DefaultMaxMatches
	}
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates
}

func sharesToken(tokens map[string]bool, entry string) bool {
	for _, tok := range strings.Fields(entry) {
		if tokens[tok] {
			return true
		}
	}
	return false
}
