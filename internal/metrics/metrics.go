// Package metrics exposes run and context store activity as Prometheus metrics.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ShayCichocki/forge/internal/memory"
	"github.com/ShayCichocki/forge/internal/notify"
)

const namespace = "forge"

var (
	_ notify.Notifier = (*Collector)(nil)
	_ memory.Observer = (*Collector)(nil)
)

// Collector records run events and store usage. Each Collector owns its
// registry, so several can coexist in one process (tests, embedded runs).
//
// Metrics:
//   - forge_phase_transitions_total{phase}
//   - forge_run_phase{phase} (1 for the current phase)
//   - forge_tasks_started_total{unit}
//   - forge_tasks_finished_total{unit,outcome} (outcome: completed, failed, blocked)
//   - forge_task_duration_seconds{unit}
//   - forge_tasks_inflight
//   - forge_memory_tokens, forge_memory_max_tokens
//   - forge_memory_entries{state} (state: active, archived)
//   - forge_memory_evictions_total, forge_memory_archived_total, forge_memory_tokens_freed_total
type Collector struct {
	registry *prometheus.Registry

	phases       *prometheus.CounterVec
	phase        *prometheus.GaugeVec
	started      *prometheus.CounterVec
	finished     *prometheus.CounterVec
	taskDuration *prometheus.HistogramVec
	inflight     prometheus.Gauge

	memTokens    prometheus.Gauge
	memMaxTokens prometheus.Gauge
	memEntries   *prometheus.GaugeVec
	evictions    prometheus.Counter
	archived     prometheus.Counter
	tokensFreed  prometheus.Counter
}

// New creates a Collector with a private registry.
func New() *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		phases: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "phase_transitions_total",
			Help:      "Total number of run phase transitions",
		}, []string{"phase"}),
		phase: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_phase",
			Help:      "Current run phase",
		}, []string{"phase"}),
		started: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_started_total",
			Help:      "Total number of tasks dispatched to a unit",
		}, []string{"unit"}),
		finished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_finished_total",
			Help:      "Total number of tasks reaching a terminal state",
		}, []string{"unit", "outcome"}),
		taskDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_duration_seconds",
			Help:      "Duration of unit execution in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"unit"}),
		inflight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tasks_inflight",
			Help:      "Number of tasks currently executing",
		}),
		memTokens: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "memory_tokens",
			Help:      "Estimated tokens held by the active context store",
		}),
		memMaxTokens: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "memory_max_tokens",
			Help:      "Token budget of the context store",
		}),
		memEntries: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "memory_entries",
			Help:      "Number of context entries by state",
		}, []string{"state"}),
		evictions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memory_evictions_total",
			Help:      "Total number of context entries evicted by pruning",
		}),
		archived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memory_archived_total",
			Help:      "Total number of evicted entries retained in the archive",
		}),
		tokensFreed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memory_tokens_freed_total",
			Help:      "Total estimated tokens released by pruning",
		}),
	}
}

// Notify records a run event.
func (c *Collector) Notify(e notify.Event) {
	unit := string(e.UnitType)
	switch e.Type {
	case notify.EventPhaseChanged:
		c.phases.WithLabelValues(e.Phase).Inc()
		c.phase.Reset()
		c.phase.WithLabelValues(e.Phase).Set(1)
	case notify.EventTaskStarted:
		c.started.WithLabelValues(unit).Inc()
		c.inflight.Inc()
	case notify.EventTaskCompleted:
		c.finished.WithLabelValues(unit, "completed").Inc()
		c.taskDuration.WithLabelValues(unit).Observe(e.Duration.Seconds())
		c.inflight.Dec()
	case notify.EventTaskFailed:
		if e.Blocked {
			// Blocked tasks never started.
			c.finished.WithLabelValues(unit, "blocked").Inc()
			return
		}
		c.finished.WithLabelValues(unit, "failed").Inc()
		c.taskDuration.WithLabelValues(unit).Observe(e.Duration.Seconds())
		c.inflight.Dec()
	}
}

// ObservePrune records a prune cycle.
func (c *Collector) ObservePrune(r memory.PruneResult) {
	c.evictions.Add(float64(r.Evicted))
	c.archived.Add(float64(r.Archived))
	c.tokensFreed.Add(float64(r.TokensFreed))
}

// ObserveUsage records current store occupancy.
func (c *Collector) ObserveUsage(s memory.Stats) {
	c.memTokens.Set(float64(s.TotalTokens))
	c.memMaxTokens.Set(float64(s.MaxTokens))
	c.memEntries.WithLabelValues("active").Set(float64(s.ActiveEntries))
	c.memEntries.WithLabelValues("archived").Set(float64(s.ArchiveEntries))
}

// Registry returns the registry holding the collector's metrics.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the collector's metrics in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (c *Collector) Serve(ctx context.Context, addr string, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics endpoint listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}
