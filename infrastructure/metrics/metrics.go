// Package metrics provides Prometheus instrumentation for the bot and the audio pipeline.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors registered on a private registry
type Metrics struct {
	registry *prometheus.Registry

	updates       *prometheus.CounterVec
	stageTotal    *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
}

// New creates and registers all collectors
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: reg,
		updates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tonebot_updates_total",
			Help: "Incoming messages by handler",
		}, []string{"handler"}),
		stageTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tonebot_pipeline_stage_total",
			Help: "Pipeline stage executions by stage and outcome (done, cached, failed)",
		}, []string{"stage", "outcome"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tonebot_pipeline_stage_duration_seconds",
			Help:    "Duration of pipeline stages that did work",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"stage"}),
	}
	reg.MustRegister(m.updates, m.stageTotal, m.stageDuration)
	return m
}

// ObserveUpdate counts an incoming message routed to handler
func (m *Metrics) ObserveUpdate(handler string) {
	m.updates.WithLabelValues(handler).Inc()
}

// ObserveStage records the outcome of a pipeline stage. Durations are only
// recorded for stages that produced a new file.
func (m *Metrics) ObserveStage(stage string, cached bool, d time.Duration, err error) {
	outcome := "done"
	switch {
	case err != nil:
		outcome = "failed"
	case cached:
		outcome = "cached"
	}
	m.stageTotal.WithLabelValues(stage, outcome).Inc()
	if err == nil && !cached {
		m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
	}
}

// Registry exposes the underlying registry (for testing)
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the /metrics HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled
func (m *Metrics) Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics server listening", slog.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
