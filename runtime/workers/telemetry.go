package workers

import (
	"context"
	"courier/observability"
	"log/slog"
	"time"
)

// TelemetryWorker logs a snapshot of the router counters at a fixed interval.
type TelemetryWorker struct {
	log            *slog.Logger
	metricInterval time.Duration
	metrics        *observability.RouterMetrics
}

func NewTelemetryWorker(log *slog.Logger, metricInterval time.Duration, metrics *observability.RouterMetrics) *TelemetryWorker {
	return &TelemetryWorker{log: log, metricInterval: metricInterval, metrics: metrics}
}

func (w TelemetryWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.metricInterval)
	defer ticker.Stop()

	var last observability.RouterStats
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			stats := w.metrics.Snapshot()
			if stats == last {
				continue
			}
			last = stats
			w.log.Info("Router stats",
				"routed", stats.Routed,
				"delivered", stats.Delivered,
				"delivery_dropped", stats.DeliveryDropped,
				"failures", stats.Failures,
				"sessions", stats.Sessions)
		}
	}
}
