package queue

import (
	"sort"
	"testing"
)

func TestNextRank(t *testing.T) {
	if got := NextRank(""); got != "U" {
		t.Fatalf("NextRank(\"\") = %q, want %q", got, "U")
	}
	if got := NextRank("U"); got != "UU" {
		t.Fatalf("NextRank(\"U\") = %q, want %q", got, "UU")
	}
}

func TestNextRank_SequenceSortsInOrder(t *testing.T) {
	ranks := make([]string, 0, 32)
	prev := ""
	for i := 0; i < 32; i++ {
		prev = NextRank(prev)
		ranks = append(ranks, prev)
	}

	if !sort.StringsAreSorted(ranks) {
		t.Fatalf("successive ranks are not sorted: %v", ranks)
	}
}
