package inference

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/samcharles93/strand/internal/logits"
)

// ErrModel wraps every failure reported by a Model. Model failures are
// fatal for the turn; the generator never retries.
var ErrModel = errors.New("inference: model evaluation failed")

// State is the recurrent model state. Its layout belongs to the model; the
// generator only threads it between calls and copies it on request.
type State []float32

// Clone returns a deep copy. Cloning a nil state yields nil.
func (s State) Clone() State {
	if s == nil {
		return nil
	}
	return slices.Clone(s)
}

// Model evaluates one token against a recurrent state.
//
// A nil state means the empty state. The returned logits and state are
// owned by the caller and must not alias anything the model keeps.
// Eval is deterministic for fixed weights and inputs.
type Model interface {
	Eval(ctx context.Context, token int, state State) ([]float32, State, error)
}

// Context is a working context: the tokens fed so far together with the
// logits and state they produced. The zero value is the empty context.
type Context struct {
	History []int
	Logits  []float32
	State   State
}

// Clone returns a deep copy sharing no memory with c.
func (c *Context) Clone() *Context {
	if c == nil {
		return &Context{}
	}
	return &Context{
		History: slices.Clone(c.History),
		Logits:  slices.Clone(c.Logits),
		State:   c.State.Clone(),
	}
}

// StreamFunc receives decoded text as it becomes displayable.
type StreamFunc func(text string)

// StopReason records why Generate returned.
type StopReason string

const (
	StopEOS       StopReason = "eos"
	StopMatched   StopReason = "stop"
	StopLength    StopReason = "length"
	StopCancelled StopReason = "cancelled"
)

// GenerateParams configures one Generate call.
type GenerateParams struct {
	Sampling  logits.Params
	MaxTokens int
	// Stop is evaluated on the decoded text of the turn after every
	// displayable chunk. Nil never stops.
	Stop StopFunc
}

// Result is the outcome of Generate.
type Result struct {
	// Tokens are the sampled ids, excluding a terminating end of text.
	Tokens []int
	// Text is the decoded turn, cut at the stop position when one matched.
	Text   string
	Reason StopReason
	Stats  Stats
}

type Stats struct {
	TokensGenerated int
	Duration        time.Duration
	TPS             float64
}

func (s *Stats) finish(start time.Time) {
	s.Duration = time.Since(start)
	if s.Duration.Seconds() > 0 {
		s.TPS = float64(s.TokensGenerated) / s.Duration.Seconds()
	}
}
