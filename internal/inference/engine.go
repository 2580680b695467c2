package inference

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/samcharles93/strand/internal/logger"
	"github.com/samcharles93/strand/internal/logits"
	"github.com/samcharles93/strand/internal/tokenizer"
)

// ErrEmptyContext is returned by Generate when the context has never been
// fed, so there are no logits to sample from.
var ErrEmptyContext = errors.New("inference: context has no logits")

// Generator feeds tokens through a Model and samples continuations. All of
// its mutation goes through a caller-owned *Context; the generator itself
// keeps no per-turn state and is not safe for concurrent use because the
// sampler holds scratch buffers.
type Generator struct {
	Model     Model
	Sampler   *logits.Sampler
	Tokenizer tokenizer.Tokenizer
	Control   tokenizer.ControlTokens
	Logger    logger.Logger
}

func (g *Generator) log() logger.Logger {
	if g.Logger == nil {
		return logger.Discard()
	}
	return g.Logger
}

// Feed evaluates tokens one at a time, threading the state and appending to
// the history. When controlBias is non-zero it is added to the end of line
// logit afterwards, which is how a chat turn keeps the reply from starting
// with a blank line.
//
// Cancellation is honoured between tokens; wc then holds every token fed so
// far and stays consistent.
func (g *Generator) Feed(ctx context.Context, wc *Context, tokens []int, controlBias float64) error {
	if wc == nil {
		return errors.New("inference: nil context")
	}
	for _, id := range tokens {
		if err := ctx.Err(); err != nil {
			return err
		}
		l, s, err := g.eval(ctx, id, wc.State)
		if err != nil {
			return err
		}
		wc.Logits, wc.State = l, s
		wc.History = append(wc.History, id)
	}
	if controlBias != 0 {
		eol := g.Control.EndOfLine
		if eol >= 0 && eol < len(wc.Logits) {
			wc.Logits[eol] += float32(controlBias)
		}
	}
	return nil
}

// Generate samples up to p.MaxTokens tokens from wc, feeding each one back
// so that wc always ends in a state consistent with its history.
//
// An end of text token is not fed and ends the turn with StopEOS. When p.Stop
// fires the turn ends with StopMatched and Result.Text is cut where the stop
// function says; text already streamed is not retracted. Running out of
// tokens is StopLength and is not an error. Cancellation is checked between
// tokens and returns ctx.Err() with reason StopCancelled.
func (g *Generator) Generate(ctx context.Context, wc *Context, p GenerateParams, emit StreamFunc) (Result, error) {
	var res Result
	if wc == nil || len(wc.Logits) == 0 {
		return res, ErrEmptyContext
	}
	if p.MaxTokens <= 0 {
		return res, fmt.Errorf("%w: max tokens %d must be positive", logits.ErrInvalidParams, p.MaxTokens)
	}
	if err := p.Sampling.Validate(); err != nil {
		return res, err
	}
	stop := p.Stop
	if stop == nil {
		stop = NoStop
	}
	if emit == nil {
		emit = func(string) {}
	}

	start := time.Now()
	dec := tokenizer.NewStreamDecoder(g.Tokenizer)
	counts := make(map[int]int)
	var text strings.Builder

	for range p.MaxTokens {
		if err := ctx.Err(); err != nil {
			res.Reason = StopCancelled
			res.Text = text.String()
			res.Stats.finish(start)
			return res, err
		}

		id, err := g.Sampler.Sample(wc.Logits, p.Sampling, counts)
		if err != nil {
			return res, err
		}
		if id == g.Control.EndOfText {
			res.Reason = StopEOS
			break
		}
		counts[id]++

		if err := g.Feed(ctx, wc, []int{id}, 0); err != nil {
			res.Text = text.String()
			res.Stats.finish(start)
			if ctx.Err() != nil {
				res.Reason = StopCancelled
			}
			return res, err
		}
		res.Tokens = append(res.Tokens, id)
		res.Stats.TokensGenerated++

		chunk, ok := dec.Push(id)
		if !ok {
			continue
		}
		prev := text.Len()
		text.WriteString(chunk)
		if end, hit := stop(text.String()); hit {
			full := text.String()
			end = min(max(end, 0), len(full))
			if end > prev {
				emit(full[prev:end])
			}
			res.Text = full[:end]
			res.Reason = StopMatched
			res.Stats.finish(start)
			g.logTurn(res)
			return res, nil
		}
		emit(chunk)
	}

	if res.Reason == "" {
		res.Reason = StopLength
	}
	if rest := dec.Flush(); rest != "" {
		text.WriteString(rest)
		emit(rest)
	}
	res.Text = text.String()
	res.Stats.finish(start)
	g.logTurn(res)
	return res, nil
}

func (g *Generator) logTurn(res Result) {
	g.log().Debug("generation finished",
		"tokens", res.Stats.TokensGenerated,
		"reason", string(res.Reason),
		"duration", res.Stats.Duration,
		"tps", res.Stats.TPS,
	)
}

// eval calls the model and converts failures, panics included, into
// ErrModel.
func (g *Generator) eval(ctx context.Context, token int, state State) (out []float32, next State, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, next = nil, nil
			err = fmt.Errorf("%w: panic in Eval: %v", ErrModel, r)
		}
	}()
	out, next, err = g.Model.Eval(ctx, token, state)
	if err != nil {
		if errors.Is(err, ErrModel) {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("%w: token %d: %w", ErrModel, token, err)
	}
	return out, next, nil
}
