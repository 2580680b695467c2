package api

import (
	"fmt"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v5"
)

// SSEStreamWriter writes OpenAI-style "data: <json>" events and the final
// "data: [DONE]" sentinel.
type SSEStreamWriter struct {
	w       http.ResponseWriter
	flusher func()
	begun   bool
	err     error
}

func NewSSEStreamWriter(c *echo.Context) (*SSEStreamWriter, error) {
	res := c.Response()
	flusher, ok := res.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming unsupported")
	}
	return &SSEStreamWriter{w: res, flusher: flusher.Flush}, nil
}

// begin sends the event-stream headers. It is deferred until the first event
// so that errors found before generation starts can still be plain JSON.
func (s *SSEStreamWriter) begin() {
	if s.begun {
		return
	}
	s.begun = true
	h := s.w.Header()
	h.Set(echo.HeaderContentType, "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	s.w.WriteHeader(http.StatusOK)
}

func (s *SSEStreamWriter) Started() bool {
	return s.begun
}

// Send writes one event. After the first write error all further events are
// dropped; Err reports it.
func (s *SSEStreamWriter) Send(payload any) {
	if s.err != nil {
		return
	}
	s.begin()
	b, err := json.Marshal(payload)
	if err != nil {
		s.err = err
		return
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", b); err != nil {
		s.err = err
		return
	}
	s.flush()
}

// Fail reports err in-band once the stream has started.
func (s *SSEStreamWriter) Fail(errType string, err error) {
	s.Send(map[string]any{"error": ResponseError{Message: err.Error(), Type: errType}})
}

func (s *SSEStreamWriter) Done() error {
	if s.err != nil {
		return s.err
	}
	s.begin()
	if _, err := fmt.Fprint(s.w, "data: [DONE]\n\n"); err != nil {
		return err
	}
	s.flush()
	return nil
}

func (s *SSEStreamWriter) Err() error {
	return s.err
}

func (s *SSEStreamWriter) flush() {
	if s.flusher != nil {
		s.flusher()
	}
}
