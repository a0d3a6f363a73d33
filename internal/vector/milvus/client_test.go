package milvus

import (
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcde", truncate("abcdefgh", 5))

	// "é" is two bytes; cutting inside it backs off to the rune start.
	got := truncate("aé", 2)
	assert.Equal(t, "a", got)
	assert.True(t, utf8.ValidString(got))
}
