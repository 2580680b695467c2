package tokenizer

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoMatch is returned by EncodeBytes when no vocabulary entry starts at
// some input offset. It means the vocabulary does not cover every byte
// value and should be treated as fatal.
var ErrNoMatch = errors.New("tokenizer: no vocabulary entry matches input")

// TrieTokenizer is a greedy longest-match byte tokenizer over a Vocabulary.
type TrieTokenizer struct {
	vocab *Vocabulary
	root  *trieNode
}

// NewTrieTokenizer builds the prefix tree for v.
func NewTrieTokenizer(v *Vocabulary) (*TrieTokenizer, error) {
	if v == nil {
		return nil, fmt.Errorf("%w: nil vocabulary", ErrVocabIntegrity)
	}
	root := &trieNode{}
	for id, b := range v.All() {
		if err := root.insert(b, id); err != nil {
			return nil, err
		}
	}
	return &TrieTokenizer{vocab: v, root: root}, nil
}

// Vocabulary returns the backing vocabulary.
func (t *TrieTokenizer) Vocabulary() *Vocabulary { return t.vocab }

// VocabSize returns the logits width the vocabulary requires.
func (t *TrieTokenizer) VocabSize() int { return t.vocab.Size() }

// EncodeBytes splits src into the longest vocabulary entries, left to right.
func (t *TrieTokenizer) EncodeBytes(src []byte) ([]int, error) {
	ids := make([]int, 0, len(src)/3+1)
	for off := 0; off < len(src); {
		val, end, ok := t.root.findLongest(src, off)
		if !ok {
			return ids, fmt.Errorf("%w: offset %d byte 0x%02x", ErrNoMatch, off, src[off])
		}
		ids = append(ids, val.id)
		off = end
	}
	return ids, nil
}

// DecodeBytes concatenates the byte strings of ids. Ids outside the
// vocabulary contribute nothing.
func (t *TrieTokenizer) DecodeBytes(ids []int) []byte {
	n := 0
	for _, id := range ids {
		b, _ := t.vocab.Bytes(id)
		n += len(b)
	}
	out := make([]byte, 0, n)
	for _, id := range ids {
		b, _ := t.vocab.Bytes(id)
		out = append(out, b...)
	}
	return out
}

// Encode tokenizes the UTF-8 bytes of text.
func (t *TrieTokenizer) Encode(text string) ([]int, error) {
	return t.EncodeBytes([]byte(text))
}

// Decode returns the text for ids. Invalid or incomplete UTF-8 runs become
// U+FFFD; StreamDecoder relies on that to detect split characters.
func (t *TrieTokenizer) Decode(ids []int) string {
	return strings.ToValidUTF8(string(t.DecodeBytes(ids)), string(ReplacementChar))
}

// TokenString returns the raw text of a single token, or "" if unknown.
func (t *TrieTokenizer) TokenString(id int) string {
	b, _ := t.vocab.Bytes(id)
	return string(b)
}

// TokenBytes returns the byte string of id.
func (t *TrieTokenizer) TokenBytes(id int) ([]byte, bool) { return t.vocab.Bytes(id) }

// Lookup returns the id whose byte string is exactly b.
func (t *TrieTokenizer) Lookup(b []byte) (int, bool) { return t.vocab.Lookup(b) }
