package ingestion

import (
	"fmt"

	"github.com/factrag/backend/internal/errs"
)

const DefaultChunkLength = 4000

// SplitText cuts text into consecutive pieces of exactly length characters,
// except the last which may be shorter. Concatenating the result gives back
// the input.
func SplitText(text string, length int) ([]string, error) {
	if length <= 0 {
		return nil, fmt.Errorf("%w: %d", errs.ErrInvalidChunkLength, length)
	}

	runes := []rune(text)
	chunks := make([]string, 0, (len(runes)+length-1)/length)
	for start := 0; start < len(runes); start += length {
		end := start + length
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks, nil
}
