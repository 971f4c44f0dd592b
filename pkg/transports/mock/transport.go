package mock

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/harunnryd/lexturn/pkg/lex"
	"github.com/harunnryd/lexturn/pkg/request"
	"github.com/harunnryd/lexturn/pkg/transports"
)

// ErrUnscripted is returned when a request arrives with no scripted step left.
var ErrUnscripted = errors.New("mock: no scripted response")

// Step is one scripted reply.
type Step struct {
	Response *lex.Response
	Err      error
	// Hold, when set, blocks the reply until it is closed or ctx is done.
	Hold <-chan struct{}
}

// Recorded is a request as the mock saw it, with its body read out.
type Recorded struct {
	Request *request.Request
	Body    []byte
}

// Transport is an in-memory transport that replays scripted steps in order.
type Transport struct {
	mu       sync.Mutex
	steps    []Step
	requests []Recorded
}

var _ transports.Transport = (*Transport)(nil)

func New(steps ...Step) *Transport {
	return &Transport{steps: steps}
}

// Factory lets the registry build an empty mock.
func Factory(map[string]any, transports.Options) (transports.Transport, error) {
	return New(), nil
}

func (t *Transport) Name() string { return "mock" }

// Enqueue appends scripted steps.
func (t *Transport) Enqueue(steps ...Step) {
	t.mu.Lock()
	t.steps = append(t.steps, steps...)
	t.mu.Unlock()
}

func (t *Transport) PostContent(ctx context.Context, req *request.Request) (*lex.Response, error) {
	var body []byte
	if r := req.Body(); r != nil {
		b, err := io.ReadAll(r)
		if err != nil {
			return nil, err
		}
		body = b
	}

	t.mu.Lock()
	t.requests = append(t.requests, Recorded{Request: req, Body: body})
	if len(t.steps) == 0 {
		t.mu.Unlock()
		return nil, ErrUnscripted
	}
	step := t.steps[0]
	t.steps = t.steps[1:]
	t.mu.Unlock()

	if step.Hold != nil {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-step.Hold:
		}
	}
	if step.Err != nil {
		return nil, step.Err
	}
	return step.Response, nil
}

// Requests returns the requests received so far.
func (t *Transport) Requests() []Recorded {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Recorded, len(t.requests))
	copy(out, t.requests)
	return out
}

// Remaining reports how many scripted steps are left.
func (t *Transport) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.steps)
}
