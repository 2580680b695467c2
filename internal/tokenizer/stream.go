package tokenizer

import "strings"

// ReplacementChar is what Decode substitutes for malformed UTF-8.
const ReplacementChar = '\uFFFD'

// StreamDecoder turns a token stream into displayable text without ever
// emitting half of a multi-byte character. Tokens are buffered until their
// concatenated bytes decode cleanly.
//
// A byte stream that never becomes valid keeps growing the buffer, so the
// caller must bound the number of pushed tokens.
type StreamDecoder struct {
	tok     Tokenizer
	pending []int
}

func NewStreamDecoder(tok Tokenizer) *StreamDecoder {
	return &StreamDecoder{tok: tok}
}

// Push appends id and returns the decoded text once the buffer holds no
// incomplete sequence. ok is false while the decoder is still waiting.
func (d *StreamDecoder) Push(id int) (string, bool) {
	d.pending = append(d.pending, id)
	text := d.tok.Decode(d.pending)
	if strings.ContainsRune(text, ReplacementChar) {
		return "", false
	}
	d.pending = d.pending[:0]
	return text, true
}

// Pending returns the number of buffered tokens.
func (d *StreamDecoder) Pending() int { return len(d.pending) }

// Flush decodes whatever is buffered, replacement characters included, and
// empties the buffer.
func (d *StreamDecoder) Flush() string {
	if len(d.pending) == 0 {
		return ""
	}
	text := d.tok.Decode(d.pending)
	d.pending = d.pending[:0]
	return text
}

func (d *StreamDecoder) Reset() { d.pending = d.pending[:0] }
