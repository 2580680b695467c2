package tokenizer

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"strconv"
	"strings"

	"github.com/zeebo/blake3"
)

// ErrVocabIntegrity reports a vocabulary that cannot back a tokenizer:
// duplicate ids, duplicate byte strings, empty entries or a length
// mismatch in the vocabulary file.
var ErrVocabIntegrity = errors.New("tokenizer: vocabulary integrity")

// Entry is a single vocabulary item.
type Entry struct {
	ID    int
	Bytes []byte
}

// Vocabulary is an immutable bijection between token ids and raw byte
// strings. Ids may be sparse; id 0 is commonly reserved for end-of-text
// and absent from the file.
type Vocabulary struct {
	tokens  [][]byte
	byBytes map[string]int
	count   int
}

// NewVocabulary validates entries and builds a Vocabulary. The entries'
// byte slices are copied.
func NewVocabulary(entries []Entry) (*Vocabulary, error) {
	maxID := -1
	for _, e := range entries {
		if e.ID < 0 {
			return nil, fmt.Errorf("%w: negative id %d", ErrVocabIntegrity, e.ID)
		}
		maxID = max(maxID, e.ID)
	}

	v := &Vocabulary{
		tokens:  make([][]byte, maxID+1),
		byBytes: make(map[string]int, len(entries)),
	}
	for _, e := range entries {
		if len(e.Bytes) == 0 {
			return nil, fmt.Errorf("%w: id %d has no bytes", ErrVocabIntegrity, e.ID)
		}
		if v.tokens[e.ID] != nil {
			return nil, fmt.Errorf("%w: duplicate id %d", ErrVocabIntegrity, e.ID)
		}
		key := string(e.Bytes)
		if prev, ok := v.byBytes[key]; ok {
			return nil, fmt.Errorf("%w: ids %d and %d share bytes %q", ErrVocabIntegrity, prev, e.ID, key)
		}
		v.tokens[e.ID] = []byte(key)
		v.byBytes[key] = e.ID
		v.count++
	}
	return v, nil
}

// Len returns the number of entries.
func (v *Vocabulary) Len() int { return v.count }

// Size returns the largest id plus one, which is the minimum logits width a
// model must produce for this vocabulary.
func (v *Vocabulary) Size() int { return len(v.tokens) }

// Bytes returns the byte string for id. The returned slice must not be
// modified.
func (v *Vocabulary) Bytes(id int) ([]byte, bool) {
	if id < 0 || id >= len(v.tokens) || v.tokens[id] == nil {
		return nil, false
	}
	return v.tokens[id], true
}

// Lookup returns the id whose byte string is exactly b.
func (v *Vocabulary) Lookup(b []byte) (int, bool) {
	id, ok := v.byBytes[string(b)]
	return id, ok
}

// All iterates entries in ascending id order.
func (v *Vocabulary) All() iter.Seq2[int, []byte] {
	return func(yield func(int, []byte) bool) {
		for id, b := range v.tokens {
			if b == nil {
				continue
			}
			if !yield(id, b) {
				return
			}
		}
	}
}

// Fingerprint is a BLAKE3 digest over every (id, bytes) pair. Session
// snapshots record it so they are never restored against a different
// vocabulary.
func (v *Vocabulary) Fingerprint() [32]byte {
	h := blake3.New()
	var hdr [16]byte
	for id, b := range v.All() {
		binary.LittleEndian.PutUint64(hdr[:8], uint64(id))
		binary.LittleEndian.PutUint64(hdr[8:], uint64(len(b)))
		_, _ = h.Write(hdr[:])
		_, _ = h.Write(b)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// LoadVocabulary reads a vocabulary file from disk.
func LoadVocabulary(path string) (*Vocabulary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	v, err := ParseVocabulary(f)
	if err != nil {
		return nil, fmt.Errorf("load vocabulary %s: %w", path, err)
	}
	return v, nil
}

// ParseVocabulary parses the line format
//
//	<index> <literal> <byte length>
//
// where literal is a quoted string ('..' or "..", UTF-8 encoded) or a byte
// string (b'..' or b".."). The decoded literal must be exactly byte length
// bytes long.
func ParseVocabulary(r io.Reader) (*Vocabulary, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var entries []Entry
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimRight(sc.Text(), "\r\n")
		if strings.TrimSpace(line) == "" {
			continue
		}
		e, err := parseVocabLine(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return NewVocabulary(entries)
}

func parseVocabLine(line string) (Entry, error) {
	first := strings.IndexByte(line, ' ')
	last := strings.LastIndexByte(line, ' ')
	if first < 0 || last <= first {
		return Entry{}, fmt.Errorf("%w: malformed entry %q", ErrVocabIntegrity, line)
	}
	id, err := strconv.Atoi(line[:first])
	if err != nil {
		return Entry{}, fmt.Errorf("%w: bad index: %v", ErrVocabIntegrity, err)
	}
	want, err := strconv.Atoi(strings.TrimSpace(line[last+1:]))
	if err != nil {
		return Entry{}, fmt.Errorf("%w: bad length: %v", ErrVocabIntegrity, err)
	}
	b, err := parseLiteral(strings.TrimSpace(line[first+1 : last]))
	if err != nil {
		return Entry{}, fmt.Errorf("%w: id %d: %v", ErrVocabIntegrity, id, err)
	}
	if len(b) != want {
		return Entry{}, fmt.Errorf("%w: id %d decodes to %d bytes, want %d", ErrVocabIntegrity, id, len(b), want)
	}
	return Entry{ID: id, Bytes: b}, nil
}
