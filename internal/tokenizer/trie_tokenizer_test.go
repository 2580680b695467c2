package tokenizer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTokenizer(t *testing.T, tokens map[int]string) *TrieTokenizer {
	t.Helper()
	entries := make([]Entry, 0, len(tokens))
	for id, s := range tokens {
		entries = append(entries, Entry{ID: id, Bytes: []byte(s)})
	}
	v, err := NewVocabulary(entries)
	require.NoError(t, err)
	tok, err := NewTrieTokenizer(v)
	require.NoError(t, err)
	return tok
}

// byteVocab covers every byte value so any input encodes.
func byteVocab(extra map[int]string) map[int]string {
	m := make(map[int]string, 256+len(extra))
	for b := 0; b < 256; b++ {
		m[b+1] = string([]byte{byte(b)})
	}
	for id, s := range extra {
		m[id] = s
	}
	return m
}

func TestEncodeLongestMatch(t *testing.T) {
	tok := newTestTokenizer(t, map[int]string{0: "a", 1: "b", 2: "ab"})

	ids, err := tok.Encode("ab")
	require.NoError(t, err)
	assert.Equal(t, []int{2}, ids)

	ids, err = tok.Encode("abba")
	require.NoError(t, err)
	assert.Equal(t, []int{2, 1, 0}, ids)
}

func TestEncodeBacksOffToLastTerminal(t *testing.T) {
	// "abc" is a prefix path but only "a" and "abcd" are entries.
	tok := newTestTokenizer(t, map[int]string{1: "a", 2: "b", 3: "c", 4: "abcd"})

	ids, err := tok.Encode("abcx")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoMatch)
	assert.Equal(t, []int{1, 2, 3}, ids)

	ids, err = tok.Encode("abcdabc")
	require.NoError(t, err)
	assert.Equal(t, []int{4, 1, 2, 3}, ids)
}

func TestEncodeEmpty(t *testing.T) {
	tok := newTestTokenizer(t, map[int]string{1: "a"})
	ids, err := tok.Encode("")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestEncodeUncoveredByte(t *testing.T) {
	tok := newTestTokenizer(t, map[int]string{1: "a"})
	_, err := tok.Encode("ba")
	assert.ErrorIs(t, err, ErrNoMatch)
}

func TestDecodeIgnoresUnknownIDs(t *testing.T) {
	tok := newTestTokenizer(t, map[int]string{1: "he", 2: "llo"})
	assert.Equal(t, "hello", tok.Decode([]int{1, 99, -4, 2}))
}

func TestDecodeSubstitutesInvalidUTF8(t *testing.T) {
	tok := newTestTokenizer(t, map[int]string{1: "\xc3", 2: "\xa9", 3: "x"})

	assert.Equal(t, "é", tok.Decode([]int{1, 2}))
	assert.True(t, strings.ContainsRune(tok.Decode([]int{1}), ReplacementChar))
	assert.Equal(t, "x�", tok.Decode([]int{3, 2}))
}

func TestEveryEntryRoundTrips(t *testing.T) {
	tok := newTestTokenizer(t, byteVocab(map[int]string{
		300: "hello",
		301: " world",
		302: "\n\n",
		303: "héllo",
		304: "日本",
	}))

	for id, b := range tok.Vocabulary().All() {
		text := tok.Decode([]int{id})
		if strings.ContainsRune(text, ReplacementChar) {
			continue
		}
		ids, err := tok.Encode(text)
		require.NoError(t, err)
		assert.Equal(t, []int{id}, ids, "entry %d %q", id, b)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tok := newTestTokenizer(t, byteVocab(map[int]string{300: "hello", 301: " wor", 302: "ld"}))
	for _, s := range []string{"hello world", "héllo 日本語 ✓", "", "\n\n\t"} {
		ids, err := tok.Encode(s)
		require.NoError(t, err)
		assert.Equal(t, s, tok.Decode(ids))
	}
}

func TestNewVocabularyRejectsDuplicates(t *testing.T) {
	_, err := NewVocabulary([]Entry{{ID: 1, Bytes: []byte("a")}, {ID: 2, Bytes: []byte("a")}})
	assert.ErrorIs(t, err, ErrVocabIntegrity)

	_, err = NewVocabulary([]Entry{{ID: 1, Bytes: []byte("a")}, {ID: 1, Bytes: []byte("b")}})
	assert.ErrorIs(t, err, ErrVocabIntegrity)

	_, err = NewVocabulary([]Entry{{ID: 1, Bytes: nil}})
	assert.ErrorIs(t, err, ErrVocabIntegrity)
}

func TestTrieInsertRejectsSecondTerminal(t *testing.T) {
	root := &trieNode{}
	require.NoError(t, root.insert([]byte("ab"), 1))
	err := root.insert([]byte("ab"), 2)
	assert.ErrorIs(t, err, ErrVocabIntegrity)
}

func TestVocabularyFingerprint(t *testing.T) {
	a := newTestTokenizer(t, map[int]string{1: "a", 2: "b"}).Vocabulary()
	b := newTestTokenizer(t, map[int]string{1: "a", 2: "b"}).Vocabulary()
	c := newTestTokenizer(t, map[int]string{1: "a", 3: "b"}).Vocabulary()

	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())
}
