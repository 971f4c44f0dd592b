package runner

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// ErrDrainTimeout is returned by Run and Stop when drainers outlive the timeout.
var ErrDrainTimeout = errors.New("runner: drain timeout")

var errAlreadyStarted = errors.New("runner: already started")

// LifecycleRunner owns a long-running serve loop: OnStart, wait for
// cancellation, then drain every Drainer in order under one deadline.
type LifecycleRunner struct {
	hooks    Hooks
	drainers []Drainer
	timeout  time.Duration
	// Banner, when set, receives the startup banner.
	Banner io.Writer

	state    atomic.Int32
	mu       sync.Mutex
	cancel   context.CancelFunc
	stopOnce sync.Once
	stopErr  error
}

func NewLifecycleRunner(hooks Hooks, timeout time.Duration, drainers ...Drainer) *LifecycleRunner {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	r := &LifecycleRunner{hooks: hooks, drainers: drainers, timeout: timeout}
	r.state.Store(int32(StateNew))
	return r
}

// Run blocks until ctx is done or Stop is called, then drains. A failing
// OnStart drains immediately and its error is returned.
func (r *LifecycleRunner) Run(ctx context.Context) error {
	if !r.state.CompareAndSwap(int32(StateNew), int32(StateStarting)) {
		return errAlreadyStarted
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if r.Banner != nil {
		PrintBanner(r.Banner, false)
	}
	runCtx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()

	if r.hooks.OnStart != nil {
		if err := r.hooks.OnStart(runCtx); err != nil {
			cancel()
			_ = r.shutdown()
			return err
		}
	}
	r.state.Store(int32(StateRunning))
	<-runCtx.Done()
	return r.shutdown()
}

// Stop cancels Run and drains. Safe to call more than once and before Run.
func (r *LifecycleRunner) Stop() error {
	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
	}
	r.mu.Unlock()
	return r.shutdown()
}

func (r *LifecycleRunner) State() State { return State(r.state.Load()) }

func (r *LifecycleRunner) shutdown() error {
	r.stopOnce.Do(func() {
		r.state.Store(int32(StateDraining))
		r.stopErr = r.drain()
		if r.hooks.OnStop != nil {
			r.hooks.OnStop()
		}
		r.state.Store(int32(StateStopped))
	})
	return r.stopErr
}

func (r *LifecycleRunner) drain() error {
	if len(r.drainers) == 0 {
		return nil
	}
	done := make(chan error, 1)
	go func() {
		var errs []error
		for _, d := range r.drainers {
			errs = append(errs, d.Drain())
		}
		done <- errors.Join(errs...)
	}()
	timer := time.NewTimer(r.timeout)
	defer timer.Stop()
	select {
	case err := <-done:
		return err
	case <-timer.C:
		return ErrDrainTimeout
	}
}
