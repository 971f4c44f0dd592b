package lex

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/harunnryd/lexturn/pkg/errorsx"
)

type call struct {
	method  string
	text    string
	session map[string]string
	request map[string]string
}

type recordingClient struct {
	mu    sync.Mutex
	calls []call
	err   error
}

func (r *recordingClient) record(c call) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, c)
	return r.err
}

func (r *recordingClient) TextInForTextOut(_ context.Context, text string, s, q map[string]string) error {
	return r.record(call{method: "TextInForTextOut", text: text, session: s, request: q})
}

func (r *recordingClient) TextInForAudioOut(_ context.Context, text string, s, q map[string]string) error {
	return r.record(call{method: "TextInForAudioOut", text: text, session: s, request: q})
}

func (r *recordingClient) AudioInForTextOut(_ context.Context, s, q map[string]string) error {
	return r.record(call{method: "AudioInForTextOut", session: s, request: q})
}

func (r *recordingClient) AudioInForAudioOut(_ context.Context, s, q map[string]string) error {
	return r.record(call{method: "AudioInForAudioOut", session: s, request: q})
}

func (r *recordingClient) Cancel() error {
	return r.record(call{method: "Cancel"})
}

func (r *recordingClient) last() call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[len(r.calls)-1]
}

func (r *recordingClient) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func TestContinuationSingleUse(t *testing.T) {
	ctx := context.Background()
	uses := map[string]func(*Continuation) error{
		"text_text":   func(c *Continuation) error { return c.ContinueWithTextInForTextOut(ctx, "hi") },
		"text_audio":  func(c *Continuation) error { return c.ContinueWithTextInForAudioOut(ctx, "hi") },
		"audio_text":  func(c *Continuation) error { return c.ContinueWithAudioInForTextOut(ctx) },
		"audio_audio": func(c *Continuation) error { return c.ContinueWithAudioInForAudioOut(ctx) },
		"current":     func(c *Continuation) error { return c.ContinueWithCurrentMode(ctx) },
		"cancel":      func(c *Continuation) error { return c.Cancel() },
	}
	for name, use := range uses {
		client := &recordingClient{}
		cont := NewContinuation(client, nil, ModeAudio, ModeAudio)
		if err := use(cont); err != nil {
			t.Fatalf("%s: first use: %v", name, err)
		}
		for other, again := range uses {
			err := again(cont)
			if !errors.Is(err, ErrContinuationConsumed) {
				t.Fatalf("%s then %s: expected ErrContinuationConsumed, got %v", name, other, err)
			}
			if !errorsx.HasReason(err, errorsx.ReasonInvalidParameter) {
				t.Fatalf("%s then %s: expected invalid parameter reason", name, other)
			}
		}
		if client.count() != 1 {
			t.Fatalf("%s: expected exactly one client call, got %d", name, client.count())
		}
	}
}

func TestContinueWithCurrentModeGuard(t *testing.T) {
	ctx := context.Background()
	for _, modes := range [][2]Mode{{ModeText, ModeAudio}, {ModeAudio, ModeText}, {ModeText, ModeText}} {
		client := &recordingClient{}
		cont := NewContinuation(client, nil, modes[0], modes[1])
		err := cont.ContinueWithCurrentMode(ctx)
		if !errors.Is(err, ErrModeMismatch) || !errorsx.HasReason(err, errorsx.ReasonInvalidParameter) {
			t.Fatalf("modes %s/%s: expected mode mismatch, got %v", modes[0], modes[1], err)
		}
		if cont.Consumed() || client.count() != 0 {
			t.Fatalf("modes %s/%s: refused call must not consume", modes[0], modes[1])
		}
		if err := cont.ContinueWithTextInForTextOut(ctx, "fallback"); err != nil {
			t.Fatalf("expected continuation still usable: %v", err)
		}
		if err := cont.ContinueWithCurrentMode(ctx); !errors.Is(err, ErrContinuationConsumed) {
			t.Fatalf("modes %s/%s: reuse must report consumed, got %v", modes[0], modes[1], err)
		}
	}

	client := &recordingClient{}
	cont := NewContinuation(client, map[string]string{"k": "v"}, ModeAudio, ModeAudio)
	if err := cont.ContinueWithCurrentMode(ctx); err != nil {
		t.Fatalf("audio/audio: %v", err)
	}
	if got := client.last(); got.method != "AudioInForAudioOut" || got.session["k"] != "v" {
		t.Fatalf("expected AudioInForAudioOut with attributes, got %+v", got)
	}
}

func TestSessionAttributes(t *testing.T) {
	src := map[string]string{"a": "1"}
	client := &recordingClient{}
	cont := NewContinuation(client, src, ModeText, ModeText)
	src["a"] = "mutated"

	if v, ok := cont.SessionAttribute("a"); !ok || v != "1" {
		t.Fatalf("expected copied attribute, got %q %v", v, ok)
	}
	if _, ok := cont.SessionAttribute("missing"); ok {
		t.Fatalf("expected missing attribute")
	}
	cont.SetSessionAttribute("b", "2")
	cont.SetSessionAttribute("b", "3")
	cont.SetSessionAttributes(map[string]string{"c": "4"})
	if _, ok := cont.SessionAttribute("a"); ok {
		t.Fatalf("SetSessionAttributes must clear previous keys")
	}
	cont.SetRequestAttribute("x-amz-lex:channel", "phone")

	if err := cont.ContinueWithTextInForTextOut(context.Background(), "book a room"); err != nil {
		t.Fatalf("continue: %v", err)
	}
	got := client.last()
	if got.text != "book a room" || len(got.session) != 1 || got.session["c"] != "4" {
		t.Fatalf("unexpected call %+v", got)
	}
	if got.request["x-amz-lex:channel"] != "phone" {
		t.Fatalf("expected request attribute to be sent")
	}
	got.session["c"] = "changed"
	if v, _ := cont.SessionAttribute("c"); v != "4" {
		t.Fatalf("client received a live map instead of a snapshot")
	}
}

func TestCancelSendsNoAttributes(t *testing.T) {
	client := &recordingClient{}
	cont := NewContinuation(client, map[string]string{"a": "1"}, ModeAudio, ModeAudio)
	if err := cont.Cancel(); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got := client.last(); got.method != "Cancel" || got.session != nil {
		t.Fatalf("expected bare cancel, got %+v", got)
	}
}

func TestClientErrorIsReturned(t *testing.T) {
	boom := errors.New("busy")
	cont := NewContinuation(&recordingClient{err: boom}, nil, ModeText, ModeAudio)
	if err := cont.ContinueWithTextInForAudioOut(context.Background(), "hi"); !errors.Is(err, boom) {
		t.Fatalf("expected client error, got %v", err)
	}
	if !cont.Consumed() {
		t.Fatalf("expected continuation consumed after handing off")
	}
}

func TestParseMode(t *testing.T) {
	if m, err := ParseMode(" Audio "); err != nil || m != ModeAudio {
		t.Fatalf("expected audio, got %v %v", m, err)
	}
	if _, err := ParseMode("video"); err == nil {
		t.Fatalf("expected error")
	}
}
