// Package metrics exposes Prometheus collectors for the scheduler and the
// per-user task manager.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	jobsExecuted  *prometheus.CounterVec
	jobDuration   *prometheus.HistogramVec
	dueJobsTotal  prometheus.Counter
	activeJobs    prometheus.Gauge
	batches       prometheus.Counter
	coalescedMsgs prometheus.Counter
	supersessions prometheus.Counter
}

// New creates metrics registered on a fresh private registry.
func New(namespace string) *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		jobsExecuted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cron_jobs_executed_total",
				Help:      "Total number of cron job executions",
			},
			[]string{"status"},
		),
		jobDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "cron_job_duration_seconds",
				Help:      "Duration of cron job executions",
				Buckets:   []float64{.5, 1, 5, 10, 30, 60, 120, 300, 600},
			},
			[]string{"status"},
		),
		dueJobsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cron_due_jobs_total",
				Help:      "Total number of jobs selected as due by the tick loop",
			},
		),
		activeJobs: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "cron_jobs",
				Help:      "Number of jobs in the store",
			},
		),
		batches: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "debounce_batches_total",
				Help:      "Total number of debounced batches handed to a handler",
			},
		),
		coalescedMsgs: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "debounce_messages_total",
				Help:      "Total number of messages swept into debounced batches",
			},
		),
		supersessions: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "debounce_supersessions_total",
				Help:      "Total number of tasks cancelled by a newer message",
			},
		),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		m.jobsExecuted,
		m.jobDuration,
		m.dueJobsTotal,
		m.activeJobs,
		m.batches,
		m.coalescedMsgs,
		m.supersessions,
	)

	return m
}

// RecordJobExecution records one completed job execution.
func (m *Metrics) RecordJobExecution(status string, duration time.Duration) {
	m.jobsExecuted.WithLabelValues(status).Inc()
	m.jobDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordDueJobs records how many jobs a tick selected as due.
func (m *Metrics) RecordDueJobs(n int) {
	m.dueJobsTotal.Add(float64(n))
}

// SetJobCount records the current store size.
func (m *Metrics) SetJobCount(n int) {
	m.activeJobs.Set(float64(n))
}

// RecordBatch records a debounced batch of n messages reaching a handler.
func (m *Metrics) RecordBatch(n int) {
	m.batches.Inc()
	m.coalescedMsgs.Add(float64(n))
}

// RecordSupersession records a task cancelled by a newer message.
func (m *Metrics) RecordSupersession() {
	m.supersessions.Inc()
}

// Handler returns an HTTP handler serving the private registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve runs a metrics HTTP listener on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
