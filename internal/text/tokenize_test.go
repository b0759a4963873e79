package text

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestTokenize exercises lowercasing, punctuation splits, stopword removal
// and the short-token filter in one table.
func TestTokenize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "lowercases and splits on punctuation",
			input: "Great product, FAST delivery!",
			want:  []string{"great", "product", "fast", "delivery"},
		},
		{
			name:  "drops stopwords",
			input: "the quality of the battery is very poor",
			want:  []string{"quality", "battery", "poor"},
		},
		{
			name:  "drops tokens shorter than three characters",
			input: "it is ok to go",
			want:  []string{},
		},
		{
			name:  "keeps numeric tokens",
			input: "waited 100 days for refund",
			want:  []string{"waited", "100", "days", "refund"},
		},
		{
			name:  "hyphenated words split",
			input: "top-notch support",
			want:  []string{"top", "notch", "support"},
		},
		{
			name:  "empty input",
			input: "",
			want:  []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Tokenize(tt.input))
		})
	}
}
