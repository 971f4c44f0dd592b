package metrics

import (
	"sync"
	"sync/atomic"
)

// AsyncObserver hands events to inner on its own goroutine so a slow sink
// never stalls the capture loop. When the buffer is full the event is
// dropped and counted.
type AsyncObserver struct {
	inner Observer
	queue chan MetricsEvent
	done  chan struct{}

	// mu guards closing queue against concurrent sends.
	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
	dropped   atomic.Int64
}

func NewAsyncObserver(inner Observer, buffer int) *AsyncObserver {
	if buffer <= 0 {
		buffer = 256
	}
	a := &AsyncObserver{
		inner: OrNoop(inner),
		queue: make(chan MetricsEvent, buffer),
		done:  make(chan struct{}),
	}
	go func() {
		defer close(a.done)
		for ev := range a.queue {
			a.inner.RecordEvent(ev)
		}
	}()
	return a
}

// RecordEvent never blocks. Events after Close are ignored.
func (a *AsyncObserver) RecordEvent(ev MetricsEvent) {
	if a == nil {
		return
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return
	}
	select {
	case a.queue <- ev:
	default:
		a.dropped.Add(1)
	}
}

// Dropped is the number of events lost to a full buffer.
func (a *AsyncObserver) Dropped() int64 { return a.dropped.Load() }

// Close stops intake and returns once queued events reached inner.
func (a *AsyncObserver) Close() {
	if a == nil {
		return
	}
	a.closeOnce.Do(func() {
		a.mu.Lock()
		a.closed = true
		close(a.queue)
		a.mu.Unlock()
	})
	<-a.done
}
