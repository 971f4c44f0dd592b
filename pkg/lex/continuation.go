package lex

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/harunnryd/lexturn/pkg/errorsx"
	"github.com/harunnryd/lexturn/pkg/metrics"
)

// Continuation is the single-use token a prompt hands to the caller. It owns
// its session attributes until one of the Continue methods or Cancel consumes it.
type Continuation struct {
	client       Client
	requestMode  Mode
	responseMode Mode

	mu                sync.Mutex
	sessionAttributes map[string]string
	requestAttributes map[string]string

	consumed atomic.Bool

	obs  metrics.Observer
	tags map[string]string
}

// NewContinuation copies sessionAttributes; later changes to the argument do not leak in.
func NewContinuation(client Client, sessionAttributes map[string]string, requestMode, responseMode Mode) *Continuation {
	return &Continuation{
		client:            client,
		requestMode:       requestMode,
		responseMode:      responseMode,
		sessionAttributes: copyAttributes(sessionAttributes),
		requestAttributes: map[string]string{},
	}
}

func (c *Continuation) RequestMode() Mode  { return c.requestMode }
func (c *Continuation) ResponseMode() Mode { return c.responseMode }

// Consumed reports whether the continuation has been used.
func (c *Continuation) Consumed() bool { return c.consumed.Load() }

// SessionAttribute returns the value for key and whether it is set.
func (c *Continuation) SessionAttribute(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.sessionAttributes[key]
	return v, ok
}

func (c *Continuation) SetSessionAttribute(key, value string) {
	c.mu.Lock()
	c.sessionAttributes[key] = value
	c.mu.Unlock()
}

// SetSessionAttributes replaces the whole attribute set.
func (c *Continuation) SetSessionAttributes(attrs map[string]string) {
	c.mu.Lock()
	c.sessionAttributes = copyAttributes(attrs)
	c.mu.Unlock()
}

// SessionAttributes returns a copy of the current attributes.
func (c *Continuation) SessionAttributes() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return copyAttributes(c.sessionAttributes)
}

// SetRequestAttribute sets a per-request attribute sent with the next turn only.
func (c *Continuation) SetRequestAttribute(key, value string) {
	c.mu.Lock()
	c.requestAttributes[key] = value
	c.mu.Unlock()
}

func (c *Continuation) ContinueWithTextInForTextOut(ctx context.Context, text string) error {
	session, request, err := c.consume("text_text")
	if err != nil {
		return err
	}
	return c.client.TextInForTextOut(ctx, text, session, request)
}

func (c *Continuation) ContinueWithTextInForAudioOut(ctx context.Context, text string) error {
	session, request, err := c.consume("text_audio")
	if err != nil {
		return err
	}
	return c.client.TextInForAudioOut(ctx, text, session, request)
}

func (c *Continuation) ContinueWithAudioInForTextOut(ctx context.Context) error {
	session, request, err := c.consume("audio_text")
	if err != nil {
		return err
	}
	return c.client.AudioInForTextOut(ctx, session, request)
}

func (c *Continuation) ContinueWithAudioInForAudioOut(ctx context.Context) error {
	session, request, err := c.consume("audio_audio")
	if err != nil {
		return err
	}
	return c.client.AudioInForAudioOut(ctx, session, request)
}

// ContinueWithCurrentMode continues audio in, audio out. Any other mode pair is
// refused with ErrModeMismatch and the continuation stays usable. A spent
// continuation always reports ErrContinuationConsumed.
func (c *Continuation) ContinueWithCurrentMode(ctx context.Context) error {
	if c.consumed.Load() {
		return errorsx.Wrap(ErrContinuationConsumed, errorsx.ReasonInvalidParameter)
	}
	if c.requestMode != ModeAudio || c.responseMode != ModeAudio {
		return errorsx.Wrap(ErrModeMismatch, errorsx.ReasonInvalidParameter)
	}
	return c.ContinueWithAudioInForAudioOut(ctx)
}

// Cancel tells the client to abandon the conversation. No attributes are sent.
func (c *Continuation) Cancel() error {
	if !c.consumed.CompareAndSwap(false, true) {
		return errorsx.Wrap(ErrContinuationConsumed, errorsx.ReasonInvalidParameter)
	}
	if c.client == nil {
		return errorsx.New(errorsx.ReasonInvalidParameter, "lex: continuation has no client")
	}
	c.spent("cancel")
	return c.client.Cancel()
}

// consume marks the continuation spent and snapshots the attributes handed to the client.
func (c *Continuation) consume(mode string) (map[string]string, map[string]string, error) {
	if !c.consumed.CompareAndSwap(false, true) {
		return nil, nil, errorsx.Wrap(ErrContinuationConsumed, errorsx.ReasonInvalidParameter)
	}
	if c.client == nil {
		return nil, nil, errorsx.New(errorsx.ReasonInvalidParameter, "lex: continuation has no client")
	}
	c.spent(mode)
	c.mu.Lock()
	defer c.mu.Unlock()
	return copyAttributes(c.sessionAttributes), copyAttributes(c.requestAttributes), nil
}

func (c *Continuation) spent(mode string) {
	if c.obs == nil {
		return
	}
	tags := copyAttributes(c.tags)
	tags[metrics.TagMode] = mode
	metrics.Record(c.obs, metrics.EventContinuationSpent, 1, tags)
}

func copyAttributes(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
