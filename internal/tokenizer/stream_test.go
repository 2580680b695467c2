package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStreamDecoderHoldsSplitCharacter(t *testing.T) {
	// "é" is 0xC3 0xA9, split across two tokens.
	tok := newTestTokenizer(t, map[int]string{1: "\xc3", 2: "\xa9", 3: "ok"})
	d := NewStreamDecoder(tok)

	text, ok := d.Push(3)
	assert.True(t, ok)
	assert.Equal(t, "ok", text)

	text, ok = d.Push(1)
	assert.False(t, ok)
	assert.Empty(t, text)
	assert.Equal(t, 1, d.Pending())

	text, ok = d.Push(2)
	assert.True(t, ok)
	assert.Equal(t, "é", text)
	assert.NotContains(t, text, string(ReplacementChar))
	assert.Zero(t, d.Pending())
}

func TestStreamDecoderFlush(t *testing.T) {
	tok := newTestTokenizer(t, map[int]string{1: "\xe6", 2: "\x97"})
	d := NewStreamDecoder(tok)

	_, ok := d.Push(1)
	assert.False(t, ok)
	_, ok = d.Push(2)
	assert.False(t, ok)

	assert.Contains(t, d.Flush(), string(ReplacementChar))
	assert.Zero(t, d.Pending())
	assert.Empty(t, d.Flush())

	d.Push(1)
	d.Reset()
	assert.Zero(t, d.Pending())
}
