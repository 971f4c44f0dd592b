package observers

import (
	"log/slog"
	"sync"
	"time"

	"github.com/harunnryd/lexturn/pkg/metrics"
)

// LatencyObserver logs how long each turn spent capturing audio and waiting
// for the bot once the turn reaches its outcome.
type LatencyObserver struct {
	mu    sync.Mutex
	turns map[string]*turnTrace
	log   *slog.Logger
}

type turnTrace struct {
	started     time.Time
	captureDone time.Time
	responded   time.Time
	mode        string
}

func NewLatencyObserver(log *slog.Logger) *LatencyObserver {
	if log == nil {
		log = slog.Default()
	}
	return &LatencyObserver{turns: make(map[string]*turnTrace), log: log}
}

func (o *LatencyObserver) RecordEvent(ev metrics.MetricsEvent) {
	conv := ev.Tags[metrics.TagConversationID]
	if conv == "" {
		return
	}
	key := conv + "/" + ev.Tags[metrics.TagTurn]
	o.mu.Lock()
	defer o.mu.Unlock()
	t := o.turns[key]
	if t == nil {
		t = &turnTrace{}
		o.turns[key] = t
	}
	switch ev.Name {
	case metrics.EventTurnStarted:
		t.started = ev.Time
		t.mode = ev.Tags[metrics.TagMode]
	case metrics.EventCaptureDone:
		t.captureDone = ev.Time
	case metrics.EventTransportRequest:
		t.responded = ev.Time
	case metrics.EventTurnState:
		o.log.Info("turn_latency",
			metrics.TagConversationID, conv,
			metrics.TagTurn, ev.Tags[metrics.TagTurn],
			metrics.TagMode, t.mode,
			metrics.TagState, ev.Tags[metrics.TagState],
			"capture_ms", durationMs(t.started, t.captureDone),
			"response_ms", durationMs(firstSet(t.captureDone, t.started), t.responded),
			"total_ms", durationMs(t.started, ev.Time),
		)
		delete(o.turns, key)
	}
}

// Pending reports how many turns are still open.
func (o *LatencyObserver) Pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.turns)
}

func firstSet(a, b time.Time) time.Time {
	if !a.IsZero() {
		return a
	}
	return b
}

func durationMs(a, b time.Time) int64 {
	if a.IsZero() || b.IsZero() {
		return -1
	}
	return b.Sub(a).Milliseconds()
}
