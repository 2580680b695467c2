package api

import (
	"github.com/labstack/echo/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	mRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "strand_api_requests_total",
		Help: "Completion requests by endpoint and HTTP status.",
	}, []string{"endpoint", "code"})

	mTokensTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "strand_api_tokens_total",
		Help: "Tokens evaluated for prompts and sampled for completions.",
	}, []string{"kind"})

	mGenerationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "strand_api_generation_seconds",
		Help:    "Wall time of one prompt evaluation plus generation.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	})

	mQueued = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "strand_api_queued_requests",
		Help: "Requests waiting for the generation slot.",
	})
)

func (s *Server) handleMetrics(c *echo.Context) error {
	promhttp.Handler().ServeHTTP(c.Response(), c.Request())
	return nil
}
