package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/harunnryd/lexturn/pkg/config"
	"github.com/harunnryd/lexturn/pkg/logging"
	"github.com/harunnryd/lexturn/pkg/metrics"
	"github.com/harunnryd/lexturn/pkg/observers"
)

// telemetry is the observer chain plus what has to happen on shutdown.
type telemetry struct {
	metrics.Observer
	async  *metrics.AsyncObserver
	multi  *observers.MultiObserver
	closer []func() error
	server *http.Server
	log    *slog.Logger
}

// newTelemetry builds sampling -> async -> (logger, latency, timeline, usage, prometheus).
func newTelemetry(cfg config.ObservabilityConfig, base *slog.Logger) (*telemetry, error) {
	log := logging.NewComponentLogger(base, "observability")
	t := &telemetry{log: log}

	sinks := []metrics.Observer{
		observers.NewLoggerObserver(log, metrics.EventSoundLevel),
		observers.NewLatencyObserver(log),
	}
	if cfg.TimelineDir != "" {
		if ret := cfg.Retention(); ret > 0 {
			n, err := observers.PurgeTimelines(cfg.TimelineDir, ret)
			if err != nil {
				return nil, err
			}
			log.Info("timelines_purged", "dir", cfg.TimelineDir, "removed", n)
		}
		tl := observers.NewTimelineObserver(cfg.TimelineDir)
		sinks = append(sinks, tl)
		t.closer = append(t.closer, tl.Close)
	}
	if cfg.UsageDir != "" {
		if ret := cfg.Retention(); ret > 0 {
			n, err := observers.PurgeArtifacts(cfg.UsageDir, ret, observers.UsageSuffix)
			if err != nil {
				return nil, err
			}
			log.Info("usage_purged", "dir", cfg.UsageDir, "removed", n)
		}
		sinks = append(sinks, observers.NewUsageObserver(cfg.UsageDir))
	}
	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		sinks = append(sinks, observers.NewPrometheusObserver(reg))
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		t.server = &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	}

	t.multi = observers.NewMultiObserver(sinks...)
	t.async = metrics.NewAsyncObserver(t.multi, cfg.AsyncBuffer)
	sampled := cfg.SampledEvents
	if len(sampled) == 0 {
		sampled = []string{metrics.EventSoundLevel}
	}
	t.Observer = metrics.NewSamplingObserver(t.async, cfg.SampleRate, sampled...)
	return t, nil
}

// serveMetrics exposes /metrics until ctx is done.
func (t *telemetry) serveMetrics(ctx context.Context) {
	if t.server == nil {
		return
	}
	go func() {
		t.log.Info("metrics_listening", "addr", t.server.Addr)
		if err := t.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.log.Error("metrics_server_failed", "error", err.Error())
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = t.server.Shutdown(shutdownCtx)
	}()
}

// Flush writes per-conversation summaries without closing anything.
func (t *telemetry) Flush() error {
	return t.multi.Flush()
}

// Close drains pending events, then flushes and closes the sinks.
func (t *telemetry) Close() error {
	t.async.Close()
	if d := t.async.Dropped(); d > 0 {
		t.log.Warn("metrics_dropped", "count", d)
	}
	errs := []error{t.multi.Flush()}
	for _, c := range t.closer {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}
