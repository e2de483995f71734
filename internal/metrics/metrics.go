// Package metrics exposes retry behaviour to Prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vvka-141/mboxdb/internal/retry"
	"github.com/vvka-141/mboxdb/pkg/mboxdb"
)

const namespace = "mboxdb"

// Operation outcomes recorded by the outcome counter.
const (
	OutcomeSuccess        = "success"
	OutcomeFatal          = "fatal"
	OutcomeRetryExhausted = "retry_exhausted"
	OutcomeCancelled      = "cancelled"
)

// Metrics owns a private registry and the HTTP server that exposes it.
type Metrics struct {
	Registry *prometheus.Registry
	Server   *http.Server

	attempts *prometheus.HistogramVec
	outcomes *prometheus.CounterVec
}

// New creates the registry with Go and process collectors. The server is
// not started; see Serve.
func New(address string) *Metrics {
	if address == "" {
		address = mboxdb.DefaultMetricsAddress
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	attempts := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "operation_attempts",
		Help:      "Attempts needed per executed operation, including the first.",
		Buckets:   []float64{1, 2, 3, 4, 5, 7, 10},
	}, []string{"backend"})

	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "operations_total",
		Help:      "Executed operations by final outcome.",
	}, []string{"backend", "outcome"})

	registry.MustRegister(attempts, outcomes)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))

	return &Metrics{
		Registry: registry,
		Server: &http.Server{
			Addr:              address,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		attempts: attempts,
		outcomes: outcomes,
	}
}

// RegisterRetryCounter exports c as mboxdb_retries_total{backend=...}.
// The value is read from the counter at scrape time.
func (m *Metrics) RegisterRetryCounter(backend string, c *retry.Counter) error {
	return m.Registry.Register(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace:   namespace,
		Name:        "retries_total",
		Help:        "Retries performed after transient database errors.",
		ConstLabels: prometheus.Labels{"backend": backend},
	}, func() float64 {
		return float64(c.Load())
	}))
}

// Observe returns an on-complete hook recording attempts and outcome.
func (m *Metrics) Observe(backend string) func(attempts int, err error) {
	attempts := m.attempts.WithLabelValues(backend)
	return func(n int, err error) {
		if n > 0 {
			attempts.Observe(float64(n))
		}
		m.outcomes.WithLabelValues(backend, Outcome(err)).Inc()
	}
}

// Instrument registers the executor's counter and returns a copy of the
// executor reporting every operation.
func (m *Metrics) Instrument(backend string, e *retry.Executor) (*retry.Executor, error) {
	if err := m.RegisterRetryCounter(backend, e.Counter()); err != nil {
		return nil, err
	}
	return e.WithOnComplete(m.Observe(backend)), nil
}

// Outcome names the final result of an operation.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return OutcomeCancelled
	case errors.Is(err, mboxdb.ErrRetryLimitExceeded):
		return OutcomeRetryExhausted
	default:
		return OutcomeFatal
	}
}

// Serve runs the HTTP server until ctx is cancelled, then shuts it down.
func (m *Metrics) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- m.Server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := m.Server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
