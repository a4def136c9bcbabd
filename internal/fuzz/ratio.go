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

// Package fuzz implements string similarity metrics on an integer 0-100 scale.
//
// Ratio is the indel similarity 2*LCS/(len(a)+len(b)). The token variants
// normalise their input first: lowercase, every rune that is not a letter,
// digit or underscore becomes a space, surrounding space is trimmed.
package fuzz

import (
	"sort"
	"strings"
	"unicode"
)

// Ratio returns the character-level similarity of a and b.
func Ratio(a, b string) int {
	if a == b {
		return 100
	}
	return ratio([]rune(a), []rune(b))
}

// PartialRatio returns the best Ratio between the shorter string and every
// window of the same length in the longer string.
func PartialRatio(a, b string) int {
	if a == b {
		return 100
	}
	shorter, longer := []rune(a), []rune(b)
	if len(shorter) > len(longer) {
		shorter, longer = longer, shorter
	}
	if len(shorter) == 0 {
		return 0
	}

	best := 0
	for start := 0; start+len(shorter) <= len(longer); start++ {
		score := ratio(shorter, longer[start:start+len(shorter)])
		if score == 100 {
			return 100
		}
		if score > best {
			best = score
		}
	}
	return best
}

// TokenSortRatio compares a and b after sorting their tokens, so word order
// does not matter.
func TokenSortRatio(a, b string) int {
	pa, pb := process(a), process(b)
	if pa == "" || pb == "" {
		return 0
	}
	return Ratio(sortedTokens(strings.Fields(pa)), sortedTokens(strings.Fields(pb)))
}

// TokenSetRatio compares the shared tokens of a and b against each side's
// shared-plus-remaining tokens and returns the best of the three pairings.
func TokenSetRatio(a, b string) int {
	pa, pb := process(a), process(b)
	if pa == "" || pb == "" {
		return 0
	}

	setA := tokenSet(pa)
	setB := tokenSet(pb)

	var shared, onlyA, onlyB []string
	for tok := range setA {
		if setB[tok] {
			shared = append(shared, tok)
		} else {
			onlyA = append(onlyA, tok)
		}
	}
	for tok := range setB {
		if !setA[tok] {
			onlyB = append(onlyB, tok)
		}
	}

	sect := sortedTokens(shared)
	combinedA := strings.TrimSpace(sect + " " + sortedTokens(onlyA))
	combinedB := strings.TrimSpace(sect + " " + sortedTokens(onlyB))

	return max(
		Ratio(sect, combinedA),
		Ratio(sect, combinedB),
		Ratio(combinedA, combinedB),
	)
}

// Best returns the highest of the four metrics.
func Best(a, b string) int {
	return max(Ratio(a, b), PartialRatio(a, b), TokenSortRatio(a, b), TokenSetRatio(a, b))
}

func ratio(a, b []rune) int {
	total := len(a) + len(b)
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	return scale(2*lcsLength(a, b), total)
}

// scale maps num/den onto 0-100, rounding half up.
func scale(num, den int) int {
	return (200*num + den) / (2 * den)
}

func lcsLength(a, b []rune) int {
	if len(a) < len(b) {
		a, b = b, a
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			switch {
			case a[i-1] == b[j-1]:
				curr[j] = prev[j-1] + 1
			case prev[j] >= curr[j-1]:
				curr[j] = prev[j]
			default:
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

// process lowercases s and turns every rune that is not a letter, digit or '_'
// into a space. Letters outside ASCII are kept.
func process(s string) string {
	mapped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			return unicode.ToLower(r)
		}
		return ' '
	}, s)
	return strings.TrimSpace(mapped)
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range strings.Fields(s) {
		set[tok] = true
	}
	return set
}

func sortedTokens(tokens []string) string {
	sorted := append([]string(nil), tokens...)
	sort.Strings(sorted)
	return strings.Join(sorted, " ")
}
