// Package metrics exposes the agent's own internal health as Prometheus
// counters and a histogram, the self-telemetry layer SPEC_FULL.md adds on top of
// spec.md's plugin-sampling core (spec.md's Non-goals exclude plugin-level
// metrics exposition, not the agent's own ambient observability).
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	log "github.com/cihub/seelog"
)

var (
	// SamplesTotal counts every successful plugin Sample call.
	SamplesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mf_agent_samples_total",
		Help: "Total number of successful plugin samples, by plugin.",
	}, []string{"plugin"})

	// SampleErrorsTotal counts Sample calls that returned an error.
	SampleErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mf_agent_sample_errors_total",
		Help: "Total number of failed plugin samples, by plugin.",
	}, []string{"plugin"})

	// PublishFailuresTotal counts batches dropped after a failed publish.
	PublishFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mf_agent_publish_failures_total",
		Help: "Total number of batches dropped after a failed publish, by plugin.",
	}, []string{"plugin"})

	// BatchDurationSeconds observes how long a publish call took.
	BatchDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mf_agent_batch_duration_seconds",
		Help:    "Duration of batch publish calls, by plugin.",
		Buckets: prometheus.DefBuckets,
	}, []string{"plugin"})
)

// Server exposes the above metrics on /metrics over HTTP.
type Server struct {
	httpServer *http.Server
}

// NewServer builds a metrics Server bound to addr (e.g. ":9110"); call
// Start to begin serving.
func NewServer(addr string) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &Server{httpServer: &http.Server{Addr: addr, Handler: mux}}
}

// Start serves /metrics until Stop is called, logging (not panicking) on
// listener failure so a metrics-port conflict never takes the whole agent
// down.
func (s *Server) Start() {
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("metrics: server exited: %v", err)
		}
	}()
}

// Stop gracefully shuts the metrics server down.
func (s *Server) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		log.Warnf("metrics: shutdown error: %v", err)
	}
}
