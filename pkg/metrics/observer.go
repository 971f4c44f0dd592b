package metrics

import "time"

// Event names emitted by the capture and turn layers.
const (
	EventVADStartpoint     = "vad_startpoint"
	EventVADEndpoint       = "vad_endpoint"
	EventSoundLevel        = "capture_sound_level"
	EventCaptureDone       = "capture_done"
	EventTurnStarted       = "turn_started"
	EventTurnState         = "turn_state"
	EventTransportRequest  = "transport_request"
	EventContinuationSpent = "continuation_spent"
)

// Common tag keys.
const (
	TagConversationID = "conversation_id"
	TagTurn           = "turn"
	TagState          = "state"
	TagTransport      = "transport"
	TagMode           = "mode"
	TagOutcome        = "outcome"
)

type MetricsEvent struct {
	Name   string
	Time   time.Time
	Value  float64
	Tags   map[string]string
	Fields map[string]any
}

type Observer interface {
	RecordEvent(ev MetricsEvent)
}

type Flusher interface {
	Flush() error
}

type NoopObserver struct{}

func (NoopObserver) RecordEvent(MetricsEvent) {}

// Record sends a timestamped event to obs; a nil observer is ignored.
func Record(obs Observer, name string, value float64, tags map[string]string) {
	if obs == nil {
		return
	}
	obs.RecordEvent(MetricsEvent{Name: name, Time: time.Now(), Value: value, Tags: tags})
}

// OrNoop returns obs, or a NoopObserver when obs is nil.
func OrNoop(obs Observer) Observer {
	if obs == nil {
		return NoopObserver{}
	}
	return obs
}
