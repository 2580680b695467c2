// Package session keeps named snapshots ("threads") of working contexts so a
// conversation can be branched, retried and reset without re-evaluating
// tokens.
package session

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/samcharles93/strand/internal/inference"
	"github.com/samcharles93/strand/internal/logger"
)

// ErrThreadNotFound is returned when branching from a name that was never
// committed. The store is left untouched.
var ErrThreadNotFound = errors.New("session: thread not found")

// Context is the unit stored per thread.
type Context = inference.Context

// Thread names used by the chat loop.
const (
	ThreadChatInit = "chat_init" // after the init prompt; target of +reset
	ThreadChat     = "chat"      // after the last bot reply
	ThreadChatPre  = "chat_pre"  // after the last user message, before the reply
	ThreadGen0     = "gen_0"     // free generation prompt
	ThreadGen1     = "gen_1"     // free generation prompt plus output
)

// Store maps thread names to deep copies of contexts. Values never alias:
// a branched context can be mutated freely and a committed one is frozen
// until the next commit to the same name.
type Store struct {
	mu      sync.Mutex
	threads map[string]*Context
	log     logger.Logger
}

// NewStore returns an empty store. A nil logger discards.
func NewStore(log logger.Logger) *Store {
	if log == nil {
		log = logger.Discard()
	}
	return &Store{threads: make(map[string]*Context), log: log}
}

// Branch returns a private copy of the named thread.
func (s *Store) Branch(name string) (*Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.threads[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrThreadNotFound, name)
	}
	return c.Clone(), nil
}

// Commit stores a copy of c under name, replacing any previous value.
func (s *Store) Commit(name string, c *Context) {
	cp := c.Clone()
	s.mu.Lock()
	s.threads[name] = cp
	s.mu.Unlock()
	s.log.Debug("thread committed", "thread", name, "tokens", len(cp.History))
}

// Reset makes chat a copy of chat_init.
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.threads[ThreadChatInit]
	if !ok {
		return fmt.Errorf("%w: %q", ErrThreadNotFound, ThreadChatInit)
	}
	s.threads[ThreadChat] = c.Clone()
	s.log.Debug("chat reset", "tokens", len(c.History))
	return nil
}

func (s *Store) Has(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.threads[name]
	return ok
}

// Names returns the committed thread names in sorted order.
func (s *Store) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Sorted(maps.Keys(s.threads))
}

// Delete removes name and reports whether it existed.
func (s *Store) Delete(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.threads[name]
	delete(s.threads, name)
	return ok
}

// snapshot copies every thread under the lock.
func (s *Store) snapshot() map[string]*Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]*Context, len(s.threads))
	for name, c := range s.threads {
		out[name] = c.Clone()
	}
	return out
}
