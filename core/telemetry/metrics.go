package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tristendillon/delombok/core/logger"
)

// Metrics counts pipeline runs. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	Runs            *prometheus.CounterVec
	FilesExcluded   prometheus.Counter
	FilesReconciled prometheus.Counter
	ToolDuration    prometheus.Histogram
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "delombok",
			Name:      "runs_total",
			Help:      "Pipeline runs by outcome.",
		}, []string{"outcome"}),
		FilesExcluded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "delombok",
			Name:      "files_excluded_total",
			Help:      "Files copied verbatim instead of transformed.",
		}),
		FilesReconciled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "delombok",
			Name:      "files_reconciled_total",
			Help:      "Output files moved back under their source path.",
		}),
		ToolDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "delombok",
			Name:      "tool_duration_seconds",
			Help:      "Wall time of the external delombok process.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
		}),
	}
	m.registry.MustRegister(m.Runs, m.FilesExcluded, m.FilesReconciled, m.ToolDuration)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) ObserveRun(outcome string, excluded, reconciled int, tool time.Duration) {
	if m == nil {
		return
	}
	m.Runs.WithLabelValues(outcome).Inc()
	m.FilesExcluded.Add(float64(excluded))
	m.FilesReconciled.Add(float64(reconciled))
	if tool > 0 {
		m.ToolDuration.Observe(tool.Seconds())
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string, m *Metrics) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("Serving metrics on %s/metrics", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
