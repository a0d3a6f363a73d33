package ingestion

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/factrag/backend/internal/errs"
)

func TestSplitText(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		length int
		want   []string
	}{
		{name: "empty", text: "", length: 4, want: []string{}},
		{name: "shorter than length", text: "abc", length: 4, want: []string{"abc"}},
		{name: "exact multiple", text: "abcdefgh", length: 4, want: []string{"abcd", "efgh"}},
		{name: "remainder", text: "abcdefghij", length: 4, want: []string{"abcd", "efgh", "ij"}},
		{name: "length one", text: "xyz", length: 1, want: []string{"x", "y", "z"}},
		{name: "multibyte counted as characters", text: "héllo wörld", length: 5, want: []string{"héllo", " wörl", "d"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SplitText(tt.text, tt.length)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSplitText_InvalidLength(t *testing.T) {
	for _, length := range []int{0, -1} {
		_, err := SplitText("text", length)
		assert.ErrorIs(t, err, errs.ErrInvalidChunkLength)
	}
}

func TestSplitText_Completeness(t *testing.T) {
	text := strings.Repeat("The passport office is open Monday to Friday. ", 397) + "Ünïcode tail ✓"

	for _, length := range []int{1, 7, 100, 4000, 10000} {
		chunks, err := SplitText(text, length)
		require.NoError(t, err)

		assert.Equal(t, text, strings.Join(chunks, ""), "length %d", length)
		for i, c := range chunks {
			if i < len(chunks)-1 {
				assert.Equal(t, length, utf8.RuneCountInString(c), "chunk %d of length %d", i, length)
			} else {
				assert.LessOrEqual(t, utf8.RuneCountInString(c), length)
				assert.NotEmpty(t, c)
			}
		}
	}
}
