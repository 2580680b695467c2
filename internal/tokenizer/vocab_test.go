package tokenizer

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVocabulary(t *testing.T) {
	src := strings.Join([]string{
		`1 '\x00' 1`,
		`2 b'\xff' 1`,
		`3 ' ' 1`,
		`4 '\n\n' 2`,
		`5 "it's" 4`,
		`6 'é' 2`,
		`7 b'\xe6\x97' 2`,
		`8 '日' 3`,
		`9 '\\' 1`,
		`10 '\xe0' 2`,
		"",
	}, "\n")

	v, err := ParseVocabulary(strings.NewReader(src))
	require.NoError(t, err)
	assert.Equal(t, 10, v.Len())
	assert.Equal(t, 11, v.Size())

	cases := map[int][]byte{
		1:  {0x00},
		2:  {0xff},
		3:  []byte(" "),
		4:  []byte("\n\n"),
		5:  []byte("it's"),
		6:  []byte("é"),
		7:  {0xe6, 0x97},
		8:  []byte("日"),
		9:  []byte(`\`),
		10: []byte("à"),
	}
	for id, want := range cases {
		got, ok := v.Bytes(id)
		require.True(t, ok, "id %d", id)
		assert.Equal(t, want, got, "id %d", id)
	}

	id, ok := v.Lookup([]byte("\n\n"))
	require.True(t, ok)
	assert.Equal(t, 4, id)
}

func TestParseVocabularyErrors(t *testing.T) {
	cases := map[string]string{
		"length mismatch":     `1 'ab' 3`,
		"unquoted literal":    `1 ab 2`,
		"expression":          `1 'a'+'b' 2`,
		"non-ascii bytes":     `1 b'é' 2`,
		"bad index":           `x 'a' 1`,
		"missing length":      `1 'a'`,
		"truncated hex":       `1 '\x4' 1`,
		"duplicate bytes":     "1 'a' 1\n2 'a' 1",
		"surrogate codepoint": `1 '\ud800' 3`,
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseVocabulary(strings.NewReader(src))
			assert.ErrorIs(t, err, ErrVocabIntegrity)
		})
	}
}

func TestLoadVocabulary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vocab.txt")
	require.NoError(t, os.WriteFile(path, []byte("1 'a' 1\n2 'b' 1\n3 'ab' 2\n"), 0o644))

	v, err := LoadVocabulary(path)
	require.NoError(t, err)
	tok, err := NewTrieTokenizer(v)
	require.NoError(t, err)

	ids, err := tok.Encode("abab")
	require.NoError(t, err)
	assert.Equal(t, []int{3, 3}, ids)

	_, err = LoadVocabulary(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}

func TestControlTokens(t *testing.T) {
	tok := newTestTokenizer(t, map[int]string{11: "\n", 261: "\n\n", 5: "a"})
	c := ResolveControlTokens(tok.Vocabulary(), UnsetControlTokens())
	assert.Equal(t, ControlTokens{EndOfText: 0, EndOfLine: 11, DoubleEndOfLine: 261}, c)

	pinned := ResolveControlTokens(tok.Vocabulary(), ControlTokens{EndOfText: 7, EndOfLine: -1, DoubleEndOfLine: 9})
	assert.Equal(t, ControlTokens{EndOfText: 7, EndOfLine: 11, DoubleEndOfLine: 9}, pinned)

	assert.Equal(t, []int{5, 11, 11}, SplitLastEndOfLine([]int{5, 261}, c))
	assert.Equal(t, []int{261, 5}, SplitLastEndOfLine([]int{261, 5}, c))
	assert.Empty(t, SplitLastEndOfLine(nil, c))
}
