package main

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/harunnryd/lexturn/pkg/lex"
)

type fakeCall struct {
	mu      sync.Mutex
	ops     []string
	playFor time.Duration
	digits  chan string
}

func newFakeCall(playFor time.Duration) *fakeCall {
	return &fakeCall{playFor: playFor, digits: make(chan string, 16)}
}

func (f *fakeCall) Play(_ context.Context, audio []byte, _ string) (time.Duration, error) {
	f.note("play")
	return f.playFor, nil
}

func (f *fakeCall) Clear() error {
	f.note("clear")
	return nil
}

func (f *fakeCall) Hangup(context.Context) error {
	f.note("hangup")
	return nil
}

func (f *fakeCall) Digits() <-chan string { return f.digits }

func (f *fakeCall) note(op string) {
	f.mu.Lock()
	f.ops = append(f.ops, op)
	f.mu.Unlock()
}

func (f *fakeCall) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ops...)
}

type turnCall struct {
	method string
	text   string
}

type fakeClient struct {
	mu    sync.Mutex
	calls []turnCall
}

func (c *fakeClient) add(method, text string) error {
	c.mu.Lock()
	c.calls = append(c.calls, turnCall{method, text})
	c.mu.Unlock()
	return nil
}

func (c *fakeClient) TextInForTextOut(_ context.Context, text string, _, _ map[string]string) error {
	return c.add("TextInForTextOut", text)
}

func (c *fakeClient) TextInForAudioOut(_ context.Context, text string, _, _ map[string]string) error {
	return c.add("TextInForAudioOut", text)
}

func (c *fakeClient) AudioInForTextOut(context.Context, map[string]string, map[string]string) error {
	return c.add("AudioInForTextOut", "")
}

func (c *fakeClient) AudioInForAudioOut(context.Context, map[string]string, map[string]string) error {
	return c.add("AudioInForAudioOut", "")
}

func (c *fakeClient) Cancel() error { return c.add("Cancel", "") }

func testBridge() *bridge {
	return &bridge{log: slog.New(slog.NewTextHandler(io.Discard, nil)), keypadGap: 50 * time.Millisecond}
}

var spoken = &lex.Response{DialogState: lex.DialogElicitSlot, Audio: make([]byte, 320), AudioContentType: "audio/x-mulaw"}

func TestPromptKeypadEntryContinuesAsText(t *testing.T) {
	call := newFakeCall(5 * time.Second)
	call.digits <- "9" // pressed before the prompt, must be ignored
	b := testBridge()
	l := b.listener(call, b.log, func() {})
	client := &fakeClient{}
	cont := lex.NewContinuation(client, nil, lex.ModeAudio, lex.ModeAudio)

	go func() {
		time.Sleep(20 * time.Millisecond)
		for _, d := range []string{"4", "2", "#"} {
			call.digits <- d
		}
	}()
	start := time.Now()
	if err := l.Prompt(context.Background(), spoken, cont); err != nil {
		t.Fatalf("prompt: %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("key press should cut the prompt short")
	}
	if len(client.calls) != 1 || client.calls[0] != (turnCall{"TextInForAudioOut", "42"}) {
		t.Fatalf("expected keypad entry as text turn, got %+v", client.calls)
	}
	ops := call.seen()
	if len(ops) != 3 || ops[0] != "clear" || ops[1] != "play" || ops[2] != "clear" {
		t.Fatalf("expected clear, play, clear; got %v", ops)
	}
}

func TestKeypadEntryEndsAfterPause(t *testing.T) {
	digits := make(chan string, 4)
	digits <- "7"
	if got := collectKeypad(context.Background(), digits, "1", 20*time.Millisecond); got != "17" {
		t.Fatalf("expected 17, got %q", got)
	}
	close(digits)
	if got := collectKeypad(context.Background(), digits, "5", time.Second); got != "5" {
		t.Fatalf("expected entry to end with the call, got %q", got)
	}
}

func TestPromptWithoutKeysListensForSpeech(t *testing.T) {
	for _, req := range []lex.Mode{lex.ModeAudio, lex.ModeText} {
		call := newFakeCall(10 * time.Millisecond)
		b := testBridge()
		client := &fakeClient{}
		cont := lex.NewContinuation(client, nil, req, lex.ModeAudio)
		if err := b.listener(call, b.log, func() {}).Prompt(context.Background(), spoken, cont); err != nil {
			t.Fatalf("%s: prompt: %v", req, err)
		}
		if len(client.calls) != 1 || client.calls[0].method != "AudioInForAudioOut" {
			t.Fatalf("%s: expected an audio turn, got %+v", req, client.calls)
		}
		if ops := call.seen(); len(ops) != 2 || ops[0] != "clear" || ops[1] != "play" {
			t.Fatalf("%s: expected stale audio cleared before play, got %v", req, ops)
		}
	}
}

func TestFulfilledHangsUpAfterPlayback(t *testing.T) {
	call := newFakeCall(10 * time.Millisecond)
	b := testBridge()
	done := false
	b.listener(call, b.log, func() { done = true }).ReadyForFulfillment(context.Background(), spoken)
	ops := call.seen()
	if !done || len(ops) != 3 || ops[2] != "hangup" {
		t.Fatalf("expected play then hangup, got %v done=%v", ops, done)
	}
}
