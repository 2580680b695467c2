package api

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/labstack/echo/v5"

	"github.com/samcharles93/strand/internal/inference"
	"github.com/samcharles93/strand/internal/tokenizer"
)

const (
	endpointCompletions = "completions"
	endpointChat        = "chat_completions"
)

// chunkFunc builds one stream event. finish is nil for content chunks and
// set on the closing chunk.
type chunkFunc func(text string, finish *string) any

func (s *Server) handleCompletions(c *echo.Context) error {
	req, err := decodeJSON[CompletionRequest](c.Request().Body)
	if err != nil {
		return s.reject(c, endpointCompletions, newInvalidRequest(err.Error()))
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return s.reject(c, endpointCompletions, newInvalidRequest("prompt is required"))
	}
	params, err := s.prepare(req.SamplingFields)
	if err != nil {
		return s.reject(c, endpointCompletions, err)
	}

	prompt := inference.WrapCompletionPrompt(req.Prompt, s.names)
	id := "cmpl-" + uuid.NewString()
	created := s.clock().Unix()
	model := s.modelName(req.Model)

	if req.Stream {
		return s.stream(c, endpointCompletions, prompt, params, func(text string, finish *string) any {
			return CompletionResponse{
				ID:      id,
				Object:  "text_completion",
				Created: created,
				Model:   model,
				Choices: []CompletionChoice{{Text: text, FinishReason: finish}},
			}
		})
	}

	res, usage, err := s.generate(c.Request().Context(), endpointCompletions, prompt, params, nil)
	if err != nil {
		return s.reject(c, endpointCompletions, err)
	}
	s.observe(endpointCompletions, http.StatusOK)
	return writeJSON(c, http.StatusOK, CompletionResponse{
		ID:      id,
		Object:  "text_completion",
		Created: created,
		Model:   model,
		Choices: []CompletionChoice{{Text: res.Text, FinishReason: finishReason(res.Reason)}},
		Usage:   &usage,
	})
}

func (s *Server) handleChatCompletions(c *echo.Context) error {
	req, err := decodeJSON[ChatCompletionRequest](c.Request().Body)
	if err != nil {
		return s.reject(c, endpointChat, newInvalidRequest(err.Error()))
	}
	if len(req.Messages) == 0 {
		return s.reject(c, endpointChat, newInvalidRequest("messages is required and must not be empty"))
	}
	prompt, err := inference.RenderChatPrompt(req.Messages, s.names)
	if err != nil {
		return s.reject(c, endpointChat, err)
	}
	params, err := s.prepare(req.SamplingFields)
	if err != nil {
		return s.reject(c, endpointChat, err)
	}

	id := "chatcmpl-" + uuid.NewString()
	created := s.clock().Unix()
	model := s.modelName(req.Model)

	if req.Stream {
		first := true
		return s.stream(c, endpointChat, prompt, params, func(text string, finish *string) any {
			delta := &ChatMessage{Content: text}
			if first {
				delta.Role = "assistant"
				first = false
			}
			return ChatCompletionResponse{
				ID:      id,
				Object:  "chat.completion.chunk",
				Created: created,
				Model:   model,
				Choices: []ChatChoice{{Delta: delta, FinishReason: finish}},
			}
		})
	}

	res, usage, err := s.generate(c.Request().Context(), endpointChat, prompt, params, nil)
	if err != nil {
		return s.reject(c, endpointChat, err)
	}
	s.observe(endpointChat, http.StatusOK)
	return writeJSON(c, http.StatusOK, ChatCompletionResponse{
		ID:      id,
		Object:  "chat.completion",
		Created: created,
		Model:   model,
		Choices: []ChatChoice{{
			Message:      &ChatMessage{Role: "assistant", Content: strings.TrimSpace(res.Text)},
			FinishReason: finishReason(res.Reason),
		}},
		Usage: &usage,
	})
}

// prepare resolves and validates the sampling fields of a request.
func (s *Server) prepare(f SamplingFields) (inference.GenerateParams, error) {
	opts, err := f.options()
	if err != nil {
		return inference.GenerateParams{}, err
	}
	req := inference.ResolveRequest(opts, s.defaults)
	if len(req.Stop) == 0 {
		req.Stop = s.stop
	}
	if err := req.Validate(); err != nil {
		return inference.GenerateParams{}, err
	}
	return req.Params(), nil
}

// generate evaluates prompt from an empty context and samples a completion.
// Requests never share state; only the generation slot is shared.
func (s *Server) generate(ctx context.Context, endpoint, prompt string, p inference.GenerateParams, emit inference.StreamFunc) (inference.Result, Usage, error) {
	var usage Usage
	tokens, err := s.promptTokens(prompt)
	if err != nil {
		return inference.Result{}, usage, err
	}

	release, err := s.acquire(ctx)
	if err != nil {
		return inference.Result{}, usage, err
	}
	defer release()

	start := time.Now()
	wc := &inference.Context{}
	if err := s.gen.Feed(ctx, wc, tokens, 0); err != nil {
		return inference.Result{}, usage, err
	}
	mTokensTotal.WithLabelValues("prompt").Add(float64(len(tokens)))

	res, err := s.gen.Generate(ctx, wc, p, emit)
	mTokensTotal.WithLabelValues("completion").Add(float64(len(res.Tokens)))
	mGenerationSeconds.Observe(time.Since(start).Seconds())
	usage = Usage{
		PromptTokens:     len(tokens),
		CompletionTokens: len(res.Tokens),
		TotalTokens:      len(tokens) + len(res.Tokens),
	}
	if err != nil {
		return res, usage, err
	}
	s.log.Info("completion finished",
		"endpoint", endpoint,
		"prompt_tokens", usage.PromptTokens,
		"completion_tokens", usage.CompletionTokens,
		"reason", string(res.Reason),
		"duration", time.Since(start),
	)
	return res, usage, nil
}

// promptTokens encodes prompt for feeding. A trailing double line break
// token is fed as two single ones, which is how the model saw it in
// training.
func (s *Server) promptTokens(prompt string) ([]int, error) {
	tokens, err := s.gen.Tokenizer.Encode(prompt)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, newInvalidRequest("prompt encodes to no tokens")
	}
	return tokenizer.SplitLastEndOfLine(tokens, s.gen.Control), nil
}

// stream runs a generation as server-sent events. Errors before the first
// event are answered with a JSON error body; later ones are sent in-band.
func (s *Server) stream(c *echo.Context, endpoint, prompt string, p inference.GenerateParams, chunk chunkFunc) error {
	w, err := NewSSEStreamWriter(c)
	if err != nil {
		return s.reject(c, endpoint, newInvalidRequest(err.Error()))
	}

	res, _, err := s.generate(c.Request().Context(), endpoint, prompt, p, func(text string) {
		w.Send(chunk(text, nil))
	})
	if err != nil {
		if !w.Started() {
			return s.reject(c, endpoint, err)
		}
		status, errType := statusFor(err)
		s.observe(endpoint, status)
		s.log.Warn("stream failed", "endpoint", endpoint, "error", err)
		w.Fail(errType, err)
		return w.Done()
	}
	w.Send(chunk("", finishReason(res.Reason)))
	s.observe(endpoint, http.StatusOK)
	return w.Done()
}

func (s *Server) reject(c *echo.Context, endpoint string, err error) error {
	status, errType := statusFor(err)
	s.observe(endpoint, status)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", "endpoint", endpoint, "error", err)
	}
	return writeError(c, status, errType, err.Error(), "")
}

func (s *Server) observe(endpoint string, status int) {
	mRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
}

func (s *Server) modelName(requested string) string {
	if requested != "" {
		return requested
	}
	return s.model
}

func decodeJSON[T any](r io.Reader) (T, error) {
	var out T
	dec := json.NewDecoder(r)
	if err := dec.Decode(&out); err != nil {
		return out, err
	}
	return out, nil
}
