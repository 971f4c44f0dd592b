package observers

import (
	"context"
	"errors"
	"log/slog"

	"github.com/harunnryd/lexturn/pkg/metrics"
)

// LoggerObserver mirrors events into the structured log. Turn lifecycle
// events are logged at info, everything else at debug.
type LoggerObserver struct {
	log  *slog.Logger
	skip map[string]bool
}

// NewLoggerObserver drops the events named in skip, typically the per-chunk
// sound levels.
func NewLoggerObserver(log *slog.Logger, skip ...string) *LoggerObserver {
	if log == nil {
		log = slog.Default()
	}
	o := &LoggerObserver{log: log, skip: make(map[string]bool, len(skip))}
	for _, name := range skip {
		o.skip[name] = true
	}
	return o
}

func eventLevel(name string) slog.Level {
	switch name {
	case metrics.EventTurnStarted, metrics.EventTurnState, metrics.EventContinuationSpent:
		return slog.LevelInfo
	}
	return slog.LevelDebug
}

func (o *LoggerObserver) RecordEvent(ev metrics.MetricsEvent) {
	if o.skip[ev.Name] {
		return
	}
	ctx := context.Background()
	level := eventLevel(ev.Name)
	if !o.log.Enabled(ctx, level) {
		return
	}
	attrs := make([]slog.Attr, 0, 4)
	attrs = append(attrs, slog.String("event", ev.Name), slog.Float64("value", ev.Value))
	if len(ev.Tags) > 0 {
		tags := make([]any, 0, len(ev.Tags))
		for k, v := range ev.Tags {
			tags = append(tags, slog.String(k, v))
		}
		attrs = append(attrs, slog.Group("tags", tags...))
	}
	if len(ev.Fields) > 0 {
		fields := make([]any, 0, len(ev.Fields))
		for k, v := range redactFields(ev.Fields) {
			fields = append(fields, slog.Any(k, v))
		}
		attrs = append(attrs, slog.Group("fields", fields...))
	}
	o.log.LogAttrs(ctx, level, "metrics", attrs...)
}

// MultiObserver fans events out to several observers; nil entries are skipped.
type MultiObserver struct {
	list []metrics.Observer
}

func NewMultiObserver(list ...metrics.Observer) *MultiObserver {
	kept := make([]metrics.Observer, 0, len(list))
	for _, obs := range list {
		if obs != nil {
			kept = append(kept, obs)
		}
	}
	return &MultiObserver{list: kept}
}

func (m *MultiObserver) RecordEvent(ev metrics.MetricsEvent) {
	for _, obs := range m.list {
		obs.RecordEvent(ev)
	}
}

// Flush flushes every observer that supports it.
func (m *MultiObserver) Flush() error {
	var errs []error
	for _, obs := range m.list {
		if f, ok := obs.(metrics.Flusher); ok {
			errs = append(errs, f.Flush())
		}
	}
	return errors.Join(errs...)
}
