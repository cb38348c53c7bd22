package workers

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 5 * time.Second

// MetricsServerWorker exposes the Prometheus registry on /metrics and a
// liveness probe on /healthz.
type MetricsServerWorker struct {
	log     *slog.Logger
	address string
	handler http.Handler
}

func NewMetricsServerWorker(log *slog.Logger, address string, gatherer prometheus.Gatherer) *MetricsServerWorker {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return &MetricsServerWorker{log: log, address: address, handler: mux}
}

func (w *MetricsServerWorker) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              w.address,
		Handler:           w.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		w.log.Info("Starting metrics server", "address", w.address)
		errChan <- server.ListenAndServe()
	}()

	select {
	case err := <-errChan:
		if stdErrors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server error: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}
