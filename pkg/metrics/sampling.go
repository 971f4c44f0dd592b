package metrics

import (
	"math"
	"sync"
	"sync/atomic"
)

// SamplingObserver forwards one in every N occurrences of the named events
// and everything else untouched. Sound levels arrive once per capture chunk,
// which is far more than most sinks need. Counting is per event name.
type SamplingObserver struct {
	inner Observer
	every uint64 // 0 drops every sampled event
	names map[string]bool

	counters sync.Map // event name -> *atomic.Uint64
}

// NewSamplingObserver keeps about rate (clamped to 0..1) of the events named
// in names. With no names every event is sampled.
func NewSamplingObserver(inner Observer, rate float64, names ...string) *SamplingObserver {
	s := &SamplingObserver{inner: OrNoop(inner), names: make(map[string]bool, len(names))}
	if rate = math.Min(1, rate); rate > 0 {
		s.every = max(1, uint64(math.Round(1/rate)))
	}
	for _, n := range names {
		s.names[n] = true
	}
	return s
}

func (s *SamplingObserver) RecordEvent(ev MetricsEvent) {
	if len(s.names) > 0 && !s.names[ev.Name] {
		s.inner.RecordEvent(ev)
		return
	}
	switch s.every {
	case 0:
		return
	case 1:
		s.inner.RecordEvent(ev)
		return
	}
	c, _ := s.counters.LoadOrStore(ev.Name, new(atomic.Uint64))
	if c.(*atomic.Uint64).Add(1)%s.every == 0 {
		s.inner.RecordEvent(ev)
	}
}
