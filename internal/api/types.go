package api

import (
	"fmt"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/samcharles93/strand/internal/inference"
)

// SamplingFields are the generation knobs shared by both endpoints.
type SamplingFields struct {
	Model            string    `json:"model,omitempty"`
	Temperature      *float64  `json:"temperature,omitempty"`
	TopP             *float64  `json:"top_p,omitempty"`
	PresencePenalty  *float64  `json:"presence_penalty,omitempty"`
	FrequencyPenalty *float64  `json:"frequency_penalty,omitempty"`
	MaxTokens        *int      `json:"max_tokens,omitempty"`
	Stop             StopValue `json:"stop,omitempty"`
	Stream           bool      `json:"stream,omitempty"`
	// LogitBias maps token ids, as JSON object keys, to a bias in [-100, 100].
	LogitBias map[string]float64 `json:"logit_bias,omitempty"`
}

func (f SamplingFields) options() (inference.RequestOptions, error) {
	opts := inference.RequestOptions{
		Temperature:      f.Temperature,
		TopP:             f.TopP,
		PresencePenalty:  f.PresencePenalty,
		FrequencyPenalty: f.FrequencyPenalty,
		MaxTokens:        f.MaxTokens,
		Stop:             f.Stop,
	}
	if len(f.LogitBias) > 0 {
		opts.LogitBias = make(map[int]float64, len(f.LogitBias))
		for key, bias := range f.LogitBias {
			id, err := strconv.Atoi(key)
			if err != nil {
				return opts, newInvalidRequest(fmt.Sprintf("logit_bias key %q is not a token id", key))
			}
			opts.LogitBias[id] = bias
		}
	}
	return opts, nil
}

// CompletionRequest is the body of POST /v1/completions.
type CompletionRequest struct {
	SamplingFields
	Prompt string `json:"prompt"`
}

// ChatCompletionRequest is the body of POST /v1/chat/completions.
type ChatCompletionRequest struct {
	SamplingFields
	Messages []inference.Message `json:"messages"`
}

// StopValue accepts either a single string or a list of strings.
type StopValue []string

func (s *StopValue) UnmarshalJSON(b []byte) error {
	if len(b) == 0 || string(b) == "null" {
		*s = nil
		return nil
	}
	switch b[0] {
	case '"':
		var one string
		if err := json.Unmarshal(b, &one); err != nil {
			return fmt.Errorf("stop: %w", err)
		}
		*s = StopValue{one}
		return nil
	case '[':
		var many []string
		if err := json.Unmarshal(b, &many); err != nil {
			return fmt.Errorf("stop: %w", err)
		}
		*s = many
		return nil
	default:
		return fmt.Errorf("stop: expected string or array of strings")
	}
}

// Usage reports token counts for one request.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// CompletionChoice is a choice of a text_completion object. FinishReason is
// nil on intermediate stream chunks.
type CompletionChoice struct {
	Index        int     `json:"index"`
	Text         string  `json:"text"`
	FinishReason *string `json:"finish_reason"`
}

type CompletionResponse struct {
	ID      string             `json:"id"`
	Object  string             `json:"object"`
	Created int64              `json:"created"`
	Model   string             `json:"model"`
	Choices []CompletionChoice `json:"choices"`
	Usage   *Usage             `json:"usage,omitempty"`
}

// ChatMessage is the assistant message or stream delta of a chat choice.
type ChatMessage struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content"`
}

type ChatChoice struct {
	Index        int          `json:"index"`
	Message      *ChatMessage `json:"message,omitempty"`
	Delta        *ChatMessage `json:"delta,omitempty"`
	FinishReason *string      `json:"finish_reason"`
}

type ChatCompletionResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []ChatChoice `json:"choices"`
	Usage   *Usage       `json:"usage,omitempty"`
}

type Model struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

type ModelList struct {
	Object string  `json:"object"`
	Data   []Model `json:"data"`
}

// ResponseError is the body of every error response, wrapped as
// {"error": {...}}.
type ResponseError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Param   string `json:"param,omitempty"`
	Code    string `json:"code,omitempty"`
}

// finishReason maps a generation outcome onto the OpenAI vocabulary.
func finishReason(r inference.StopReason) *string {
	s := "stop"
	if r == inference.StopLength {
		s = "length"
	}
	return &s
}
