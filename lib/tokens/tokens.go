// Copyright 2026 The Vern Authors
// SPDX-License-Identifier: Apache-2.0

// Package tokens estimates token counts for budget checks before a
// provider call. The estimate is a Unicode-aware heuristic, not a real
// tokenizer: ASCII text runs roughly four characters per token while
// non-ASCII scripts (CJK, Cyrillic, emoji) run closer to one character
// per token, so the two classes are weighted differently. The result
// errs on the conservative side, which is the right direction for a
// pre-flight ceiling.
package tokens

// Estimate returns the approximate token count for text.
func Estimate(text string) int {
	weight := 0
	for _, r := range text {
		if r <= 127 {
			weight += 1 // ~4 ASCII chars per token
		} else {
			weight += 4 // ~1 non-ASCII char per token, conservatively
		}
	}
	return (weight + 3) / 4
}

// EstimateAll returns the approximate token count for a set of texts,
// typically the contents of every message in a conversation context.
func EstimateAll(texts ...string) int {
	total := 0
	for _, text := range texts {
		total += Estimate(text)
	}
	return total
}
