// Package metrics exposes the Prometheus metrics recorded by the term sync
// packages. All metrics are defined in their respective packages (client,
// pagination, store, dispatch, queue, worker) via promauto to keep the
// packages independent of each other.
//
// This package provides the HTTP handler and documentation for all metrics.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Registry is the default Prometheus registry used by the term sync packages.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Handler serves /metrics from the default gatherer and a plain /health probe.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "OK")
	})
	return mux
}

// Serve runs the metrics listener on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, logger zerolog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("Metrics listener started")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics listener: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - termsync_http_requests_total{path, status} (Counter): Remote requests by path and HTTP status
//   - termsync_http_request_duration_seconds{path} (Histogram): Remote request duration
//   - termsync_http_errors_total{class} (Counter): Errors by class (client, server, network)
//
// Pagination Metrics (pkg/pagination):
//   - termsync_pages_fetched_total{source} (Counter): Pages fetched by source (termset-children, term-children, taxonomy-list)
//
// Store Metrics (pkg/store):
//   - termsync_upserts_total{procedure, status} (Counter): Stored procedure executions by outcome
//
// Dispatch Metrics (pkg/dispatch):
//   - termsync_dispatch_attempts_total{result} (Counter): Submission attempts (ok, error)
//   - termsync_dispatch_retries_total (Counter): Submission retries
//   - termsync_dispatch_backoff_seconds (Histogram): Delay before each retry
//   - termsync_dispatch_items_total{state} (Counter): Items by terminal state
//   - termsync_dispatch_inflight (Gauge): Attempts currently holding a permit
//
// Queue Metrics (pkg/queue):
//   - termsync_queue_enqueued_total{queue} (Counter): Items pushed
//   - termsync_queue_duplicates_total{queue} (Counter): Adds skipped for a known reference
//   - termsync_queue_dequeued_total{queue} (Counter): Items handed to workers
//   - termsync_queue_errors_total{operation} (Counter): Queue operation errors
//
// Worker Metrics (pkg/worker):
//   - termsync_jobs_total{kind, outcome} (Counter): Processed jobs (succeeded, skipped, failed)
//   - termsync_job_duration_seconds{kind} (Histogram): Job processing time
//
// Example Prometheus Queries:
//
//   # Jobs skipped in the last day
//   increase(termsync_jobs_total{outcome="skipped"}[1d])
//
//   # Failed upsert ratio
//   sum(rate(termsync_upserts_total{status="error"}[1h])) / sum(rate(termsync_upserts_total[1h]))
//
//   # P95 remote latency
//   histogram_quantile(0.95, rate(termsync_http_request_duration_seconds_bucket[5m]))
