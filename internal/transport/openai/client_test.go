package openai

import (
	"math"
	"testing"
)

func TestParseScores(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []float64
	}{
		{
			name: "plain array",
			raw:  "[0.9, 0.1, 0.5]",
			want: []float64{0.9, 0.1, 0.5},
		},
		{
			name: "markdown fence",
			raw:  "```json\n[0.2, 0.8]\n```",
			want: []float64{0.2, 0.8},
		},
		{
			name: "surrounding prose",
			raw:  "Here are the scores: [1, 0] as requested.",
			want: []float64{1, 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseScores(tt.raw)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if math.Abs(got[i]-tt.want[i]) > 1e-9 {
					t.Errorf("score %d = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestParseScores_Errors(t *testing.T) {
	for _, raw := range []string{"", "no array here", "[0.5", "[\"a\"]"} {
		if _, err := parseScores(raw); err == nil {
			t.Errorf("expected error for %q", raw)
		}
	}
}
