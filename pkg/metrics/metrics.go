// Package metrics exposes Prometheus metrics for estimation runs.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// stageOutcomesTotal counts stage completions.
	// Labels:
	//   - stage: pipeline state reached or attempted (e.g. "velocities_fetched")
	//   - status: "ok", "degraded" or "fatal"
	stageOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "etabot_stage_outcomes_total",
			Help: "Total number of pipeline stage outcomes",
		},
		[]string{"stage", "status"},
	)

	// stageDuration records how long each stage took.
	stageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "etabot_stage_duration_seconds",
			Help:    "Duration of pipeline stages in seconds",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 15, 60, 300},
		},
		[]string{"stage"},
	)

	// degradedEntitiesTotal counts entities replaced by a placeholder report
	// or dropped from serialization.
	degradedEntitiesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "etabot_degraded_entities_total",
			Help: "Total number of entities reported with substituted data",
		},
		[]string{"reason"},
	)

	// runsTotal counts runs by final state ("done" or "failed").
	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "etabot_runs_total",
			Help: "Total number of estimation runs by final state",
		},
		[]string{"state"},
	)
)

func init() {
	prometheus.MustRegister(stageOutcomesTotal)
	prometheus.MustRegister(stageDuration)
	prometheus.MustRegister(degradedEntitiesTotal)
	prometheus.MustRegister(runsTotal)
}

// RecordStage records the outcome and duration of one stage.
func RecordStage(stage, status string, d time.Duration) {
	stageOutcomesTotal.WithLabelValues(stage, status).Inc()
	stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// RecordDegradedEntity records one substituted entity.
func RecordDegradedEntity(reason string) {
	degradedEntitiesTotal.WithLabelValues(reason).Inc()
}

// RecordRun records a finished run.
func RecordRun(state string) {
	runsTotal.WithLabelValues(state).Inc()
}

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
