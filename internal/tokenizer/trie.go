package tokenizer

import (
	"fmt"
	"sort"
)

// trieNode is one byte position in the vocabulary prefix tree. Children are
// kept sorted by byte so lookups are a binary search; a dense 256-slot table
// per node costs several hundred megabytes for a 65k-entry vocabulary.
type trieNode struct {
	ch       byte
	keys     []byte
	children []*trieNode
	terminal *trieValue
}

type trieValue struct {
	bytes []byte
	id    int
}

func (n *trieNode) child(b byte) *trieNode {
	i := sort.Search(len(n.keys), func(i int) bool { return n.keys[i] >= b })
	if i < len(n.keys) && n.keys[i] == b {
		return n.children[i]
	}
	return nil
}

func (n *trieNode) childOrCreate(b byte) *trieNode {
	i := sort.Search(len(n.keys), func(i int) bool { return n.keys[i] >= b })
	if i < len(n.keys) && n.keys[i] == b {
		return n.children[i]
	}
	c := &trieNode{ch: b}
	n.keys = append(n.keys, 0)
	n.children = append(n.children, nil)
	copy(n.keys[i+1:], n.keys[i:])
	copy(n.children[i+1:], n.children[i:])
	n.keys[i] = b
	n.children[i] = c
	return c
}

// insert adds key with the given id. A node may carry a single terminal; a
// second one is a vocabulary integrity error.
func (n *trieNode) insert(key []byte, id int) error {
	u := n
	for _, b := range key {
		u = u.childOrCreate(b)
	}
	if u.terminal != nil {
		return fmt.Errorf("%w: ids %d and %d end at the same trie node", ErrVocabIntegrity, u.terminal.id, id)
	}
	u.terminal = &trieValue{bytes: key, id: id}
	return nil
}

// findLongest walks src from start and returns the deepest terminal passed.
// ok is false when no terminal was reached.
func (n *trieNode) findLongest(src []byte, start int) (value *trieValue, end int, ok bool) {
	u := n
	for i := start; i < len(src); i++ {
		u = u.child(src[i])
		if u == nil {
			break
		}
		if u.terminal != nil {
			value, end, ok = u.terminal, i+1, true
		}
	}
	return value, end, ok
}
