// Copyright 2026 The Vern Authors
// SPDX-License-Identifier: Apache-2.0

package tokens

import "testing"

func TestEstimate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		text string
		want int
	}{
		{name: "empty", text: "", want: 0},
		{name: "four ascii chars is one token", text: "abcd", want: 1},
		{name: "rounds up", text: "abcde", want: 2},
		{name: "cjk chars weigh a token each", text: "你好", want: 2},
		{name: "mixed", text: "ok你好", want: 3}, // 2 ascii + 8 weight, ceil(10/4)
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			if got := Estimate(test.text); got != test.want {
				t.Errorf("Estimate(%q) = %d, want %d", test.text, got, test.want)
			}
		})
	}
}

func TestEstimateAll(t *testing.T) {
	t.Parallel()
	if got := EstimateAll("abcd", "abcd"); got != 2 {
		t.Errorf("EstimateAll = %d, want 2", got)
	}
	if got := EstimateAll(); got != 0 {
		t.Errorf("EstimateAll() = %d, want 0", got)
	}
}
