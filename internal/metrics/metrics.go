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
)

var (
	// BarsFetched counts bars returned by a data source (cache hits excluded).
	BarsFetched = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quantbench",
		Name:      "bars_fetched_total",
		Help:      "Bars fetched from a remote data source.",
	}, []string{"source"})

	// CacheHits counts series served from the local bar cache.
	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "quantbench",
		Name:      "cache_hits_total",
		Help:      "Series served from the local bar cache.",
	})

	// SymbolsSkipped counts symbols dropped by skip-and-continue error handling.
	SymbolsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quantbench",
		Name:      "symbols_skipped_total",
		Help:      "Symbols skipped after a recoverable failure.",
	}, []string{"stage"})

	// Observations counts symbols evaluated by the observe loop.
	Observations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "quantbench",
		Name:      "observations_total",
		Help:      "Symbols evaluated by the observe loop.",
	})

	// Transitions counts hysteresis state changes seen in observe mode.
	Transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quantbench",
		Name:      "transitions_total",
		Help:      "Hysteresis state transitions.",
	}, []string{"action"})

	// TickDuration observes how long one observe tick took.
	TickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "quantbench",
		Name:      "observe_tick_seconds",
		Help:      "Duration of one observe tick.",
		Buckets:   prometheus.DefBuckets,
	})
)

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	zap.S().Infof("metrics listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
