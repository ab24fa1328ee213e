package pricing

import "testing"

func TestPosition(t *testing.T) {
	cases := []struct {
		name   string
		own    string
		top    string
		rank   int
		margin string
	}{
		{"holding minimum", "4.99", "4.99", RankFirst, "0"},
		{"sub-cent noise", "4.995", "4.99", RankFirst, "0"},
		{"competitor cheaper", "5.50", "5.00", RankSecond, "0.50"},
		{"stale minimum", "4.00", "4.50", RankAnomaly, "-0.50"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Position(d(tc.own), d(tc.top))
			if got.Rank != tc.rank {
				t.Fatalf("rank = %d, want %d", got.Rank, tc.rank)
			}
			if !got.Margin.Equal(d(tc.margin)) {
				t.Fatalf("margin = %s, want %s", got.Margin, tc.margin)
			}
			if got.Label() == "" {
				t.Fatal("empty label")
			}
		})
	}
}
