// Package metrics exposes prometheus instrumentation for objective functions.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cwbudde/imagebench/internal/objective"
)

const namespace = "imagebench"

// Collector holds the evaluation metrics, labelled by function name.
type Collector struct {
	evaluations *prometheus.CounterVec
	failures    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	bestCost    *prometheus.GaugeVec
}

// NewCollector creates the metrics and registers them with reg.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluations_total",
			Help:      "Objective function evaluations, including failed ones.",
		}, []string{"function"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluation_failures_total",
			Help:      "Objective function evaluations that returned an error.",
		}, []string{"function"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "evaluation_duration_seconds",
			Help:      "Time spent in a single objective function evaluation.",
			Buckets:   prometheus.ExponentialBuckets(1e-5, 4, 10),
		}, []string{"function"}),
		bestCost: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "best_cost",
			Help:      "Best cost reported by the running optimizer.",
		}, []string{"function"}),
	}
	for _, m := range []prometheus.Collector{c.evaluations, c.failures, c.duration, c.bestCost} {
		if err := reg.Register(m); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Instrument wraps fn so every Evaluate call is counted and timed.
func (c *Collector) Instrument(fn objective.Function) *Instrumented {
	name := fn.Name()
	return &Instrumented{
		Function:    fn,
		evaluations: c.evaluations.WithLabelValues(name),
		failures:    c.failures.WithLabelValues(name),
		duration:    c.duration.WithLabelValues(name),
	}
}

// SetBestCost records the optimizer's current best cost for a function.
func (c *Collector) SetBestCost(function string, cost float64) {
	c.bestCost.WithLabelValues(function).Set(cost)
}

// Instrumented is an objective.Function that reports to a Collector.
type Instrumented struct {
	objective.Function
	evaluations prometheus.Counter
	failures    prometheus.Counter
	duration    prometheus.Observer
}

func (i *Instrumented) Evaluate(x []float64) (float64, error) {
	start := time.Now()
	v, err := i.Function.Evaluate(x)
	i.duration.Observe(time.Since(start).Seconds())
	i.evaluations.Inc()
	if err != nil {
		i.failures.Inc()
	}
	return v, err
}

// Unwrap returns the wrapped function.
func (i *Instrumented) Unwrap() objective.Function { return i.Function }

// Handler serves the metrics of gatherer under /metrics.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return mux
}

// Serve exposes the metrics of gatherer on addr until ctx is done.
func Serve(ctx context.Context, addr string, gatherer prometheus.Gatherer) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           Handler(gatherer),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Serving metrics", "addr", addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
