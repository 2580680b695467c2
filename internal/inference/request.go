package inference

import (
	"fmt"
	"math"

	"github.com/samcharles93/strand/internal/logits"
)

// Defaults are configured generation defaults. Nil fields fall back to the
// built-in values.
type Defaults struct {
	Temperature      *float64
	TopP             *float64
	PresencePenalty  *float64
	FrequencyPenalty *float64
	MaxTokens        *int
}

// RequestOptions are per-request overrides. Nil fields keep the default.
type RequestOptions struct {
	Temperature      *float64
	TopP             *float64
	PresencePenalty  *float64
	FrequencyPenalty *float64
	MaxTokens        *int
	Stop             []string
	LogitBias        map[int]float64
}

// Request is a fully resolved generation request.
type Request struct {
	Sampling  logits.Params
	MaxTokens int
	Stop      []string
}

// Built-in defaults used by the chat loop and the server.
const (
	DefaultTemperature      = 0.8
	DefaultTopP             = 0.5
	DefaultPresencePenalty  = 0.2
	DefaultFrequencyPenalty = 0.2
	DefaultMaxTokens        = 1000
	MaxTokensLimit          = 102400
	MaxLogitBias            = 100
)

// ResolveRequest layers opts over defaults over the built-in values. Values
// are not range checked here; out of range configuration surfaces through
// Validate instead of being replaced.
func ResolveRequest(opts RequestOptions, defaults Defaults) Request {
	req := Request{
		Sampling: logits.Params{
			Temperature:      DefaultTemperature,
			TopP:             DefaultTopP,
			PresencePenalty:  DefaultPresencePenalty,
			FrequencyPenalty: DefaultFrequencyPenalty,
		},
		MaxTokens: DefaultMaxTokens,
	}

	if defaults.Temperature != nil {
		req.Sampling.Temperature = *defaults.Temperature
	}
	if defaults.TopP != nil {
		req.Sampling.TopP = *defaults.TopP
	}
	if defaults.PresencePenalty != nil {
		req.Sampling.PresencePenalty = *defaults.PresencePenalty
	}
	if defaults.FrequencyPenalty != nil {
		req.Sampling.FrequencyPenalty = *defaults.FrequencyPenalty
	}
	if defaults.MaxTokens != nil {
		req.MaxTokens = *defaults.MaxTokens
	}

	if opts.Temperature != nil {
		req.Sampling.Temperature = *opts.Temperature
	}
	if opts.TopP != nil {
		req.Sampling.TopP = *opts.TopP
	}
	if opts.PresencePenalty != nil {
		req.Sampling.PresencePenalty = *opts.PresencePenalty
	}
	if opts.FrequencyPenalty != nil {
		req.Sampling.FrequencyPenalty = *opts.FrequencyPenalty
	}
	if opts.MaxTokens != nil {
		req.MaxTokens = *opts.MaxTokens
	}
	req.Stop = opts.Stop
	req.Sampling.LogitBias = opts.LogitBias

	return req
}

// Validate applies the server's accepted ranges.
func (r Request) Validate() error {
	if err := r.Sampling.Validate(); err != nil {
		return err
	}
	if r.Sampling.Temperature > 2 {
		return fmt.Errorf("%w: temperature %v must be <= 2", logits.ErrInvalidParams, r.Sampling.Temperature)
	}
	for name, v := range map[string]float64{
		"presence_penalty":  r.Sampling.PresencePenalty,
		"frequency_penalty": r.Sampling.FrequencyPenalty,
	} {
		if v < -2 || v > 2 {
			return fmt.Errorf("%w: %s %v must be in [-2, 2]", logits.ErrInvalidParams, name, v)
		}
	}
	for id, b := range r.Sampling.LogitBias {
		if id < 0 {
			return fmt.Errorf("%w: logit_bias token %d is negative", logits.ErrInvalidParams, id)
		}
		if math.IsNaN(b) || b < -MaxLogitBias || b > MaxLogitBias {
			return fmt.Errorf("%w: logit_bias %v for token %d must be in [-%d, %d]", logits.ErrInvalidParams, b, id, MaxLogitBias, MaxLogitBias)
		}
	}
	if r.MaxTokens <= 0 || r.MaxTokens > MaxTokensLimit {
		return fmt.Errorf("%w: max_tokens %d must be in [1, %d]", logits.ErrInvalidParams, r.MaxTokens, MaxTokensLimit)
	}
	return nil
}

// Params converts the request into Generate parameters.
func (r Request) Params() GenerateParams {
	return GenerateParams{
		Sampling:  r.Sampling,
		MaxTokens: r.MaxTokens,
		Stop:      StopOnAny(r.Stop...),
	}
}
