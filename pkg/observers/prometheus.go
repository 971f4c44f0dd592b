package observers

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/harunnryd/lexturn/pkg/metrics"
)

// PrometheusObserver turns events into counters and histograms registered on reg.
type PrometheusObserver struct {
	vadTransitions   *prometheus.CounterVec
	turnsStarted     *prometheus.CounterVec
	turnOutcomes     *prometheus.CounterVec
	captureSeconds   prometheus.Histogram
	transportLatency *prometheus.HistogramVec
	spent            *prometheus.CounterVec
}

func NewPrometheusObserver(reg prometheus.Registerer) *PrometheusObserver {
	f := promauto.With(reg)
	return &PrometheusObserver{
		vadTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lexturn_vad_transitions_total",
			Help: "VAD state transitions",
		}, []string{"state"}),
		turnsStarted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lexturn_turns_started_total",
			Help: "Turns sent to the bot",
		}, []string{"mode"}),
		turnOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lexturn_turn_outcomes_total",
			Help: "Turn outcomes by final state",
		}, []string{"state"}),
		captureSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "lexturn_capture_seconds",
			Help:    "Audio captured per turn",
			Buckets: prometheus.ExponentialBuckets(0.25, 1.6, 10),
		}),
		transportLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lexturn_transport_request_seconds",
			Help:    "Bot service round trip",
			Buckets: prometheus.ExponentialBuckets(0.05, 1.6, 12),
		}, []string{"transport", "outcome"}),
		spent: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lexturn_continuations_total",
			Help: "Continuations consumed by method",
		}, []string{"mode"}),
	}
}

func (p *PrometheusObserver) RecordEvent(ev metrics.MetricsEvent) {
	switch ev.Name {
	case metrics.EventVADStartpoint, metrics.EventVADEndpoint:
		p.vadTransitions.WithLabelValues(ev.Tags[metrics.TagState]).Inc()
	case metrics.EventTurnStarted:
		p.turnsStarted.WithLabelValues(ev.Tags[metrics.TagMode]).Inc()
	case metrics.EventTurnState:
		p.turnOutcomes.WithLabelValues(ev.Tags[metrics.TagState]).Inc()
	case metrics.EventCaptureDone:
		p.captureSeconds.Observe(ev.Value)
	case metrics.EventTransportRequest:
		p.transportLatency.WithLabelValues(ev.Tags[metrics.TagTransport], ev.Tags[metrics.TagOutcome]).Observe(ev.Value)
	case metrics.EventContinuationSpent:
		p.spent.WithLabelValues(ev.Tags[metrics.TagMode]).Inc()
	}
}

var _ metrics.Observer = (*PrometheusObserver)(nil)
