// Package api serves a Generator over OpenAI-shaped completion endpoints.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"golang.org/x/sync/semaphore"

	"github.com/samcharles93/strand/internal/inference"
	"github.com/samcharles93/strand/internal/logger"
	"github.com/samcharles93/strand/internal/webui"
)

// DefaultSystemPrompt opens every chat completion without a system message.
const DefaultSystemPrompt = "Hi. I am your assistant and I will provide expert full response in full details. Please feel free to ask any question and I will always answer it"

// DefaultStop ends a completion when the model starts a new user turn.
const DefaultStop = "\n\nUser"

type Config struct {
	Generator *inference.Generator
	// Defaults overrides the built-in sampling defaults for every request.
	Defaults inference.Defaults
	// Names label the transcript turns. Zero values use User, Bot and
	// DefaultSystemPrompt.
	Names inference.PromptNames
	// Stop is used when a request names no stop strings.
	Stop []string
	// ModelName is reported by /v1/models and echoed in responses.
	ModelName string
	Logger    logger.Logger
	Clock     func() time.Time
}

type Server struct {
	gen      *inference.Generator
	defaults inference.Defaults
	names    inference.PromptNames
	stop     []string
	model    string
	log      logger.Logger
	clock    func() time.Time
	// sem admits one generation at a time; the generator and its sampler
	// are not safe for concurrent use.
	sem *semaphore.Weighted
}

func NewServer(cfg Config) (*Server, error) {
	if cfg.Generator == nil {
		return nil, errors.New("api: generator is required")
	}
	if err := inference.ResolveRequest(inference.RequestOptions{}, cfg.Defaults).Validate(); err != nil {
		return nil, fmt.Errorf("api: default sampling: %w", err)
	}
	names := cfg.Names
	if names.User == "" {
		names.User = "User"
	}
	if names.Bot == "" {
		names.Bot = "Bot"
	}
	if names.System == "" {
		names.System = DefaultSystemPrompt
	}
	stop := cfg.Stop
	if len(stop) == 0 {
		stop = []string{DefaultStop}
	}
	model := cfg.ModelName
	if model == "" {
		model = "strand"
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Discard()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Server{
		gen:      cfg.Generator,
		defaults: cfg.Defaults,
		names:    names,
		stop:     stop,
		model:    model,
		log:      log,
		clock:    clock,
		sem:      semaphore.NewWeighted(1),
	}, nil
}

func (s *Server) Register(e *echo.Echo) {
	for _, prefix := range []string{"/v1", ""} {
		e.POST(prefix+"/completions", s.handleCompletions)
		e.POST(prefix+"/chat/completions", s.handleChatCompletions)
	}
	e.GET("/v1/models", s.handleListModels)
	e.GET("/healthz", s.handleHealth)
	e.GET("/metrics", s.handleMetrics)
	e.GET("/", s.handleUI)
}

func (s *Server) handleUI(c *echo.Context) error {
	webui.Handler().ServeHTTP(c.Response(), c.Request())
	return nil
}

func (s *Server) handleListModels(c *echo.Context) error {
	return writeJSON(c, http.StatusOK, ModelList{
		Object: "list",
		Data: []Model{{
			ID:      s.model,
			Object:  "model",
			Created: s.clock().Unix(),
			OwnedBy: "local",
		}},
	})
}

func (s *Server) handleHealth(c *echo.Context) error {
	return writeJSON(c, http.StatusOK, map[string]string{"status": "ok"})
}

// acquire waits for the generation slot. It gives up when ctx ends, which
// is how a disconnected client leaves the queue.
func (s *Server) acquire(ctx context.Context) (release func(), err error) {
	mQueued.Inc()
	defer mQueued.Dec()
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { s.sem.Release(1) }, nil
}
