package lex

import (
	"context"
	"errors"
	"testing"

	"github.com/harunnryd/lexturn/pkg/errorsx"
	"github.com/harunnryd/lexturn/pkg/metrics"
	"github.com/harunnryd/lexturn/pkg/turn"
)

type outcome struct {
	fulfilled *Response
	prompted  *Response
	cont      *Continuation
	errResp   *Response
	err       error
}

func capture(o *outcome, prompt func(context.Context, *Response, *Continuation) error) ListenerFuncs {
	return ListenerFuncs{
		ReadyForFulfillment: func(_ context.Context, resp *Response) { o.fulfilled = resp },
		Prompt: func(ctx context.Context, resp *Response, cont *Continuation) error {
			o.prompted = resp
			o.cont = cont
			if prompt != nil {
				return prompt(ctx, resp, cont)
			}
			return nil
		},
		InteractionError: func(_ context.Context, resp *Response, err error) {
			o.errResp = resp
			o.err = err
		},
	}
}

func TestDispatchFulfilled(t *testing.T) {
	for _, state := range []DialogState{DialogFulfilled, DialogReadyForFulfillment} {
		var o outcome
		d := NewDispatcher(&recordingClient{}, capture(&o, nil), DispatcherOptions{})
		tr := turn.NewTracker(1)
		got := d.Dispatch(context.Background(), Turn{Tracker: tr}, &Response{DialogState: state}, nil)
		if got != turn.StateFulfilled || tr.State() != turn.StateFulfilled {
			t.Fatalf("%s: expected FULFILLED, got %s", state, got)
		}
		if o.fulfilled == nil || o.prompted != nil || o.err != nil {
			t.Fatalf("%s: unexpected callbacks %+v", state, o)
		}
	}
}

func TestDispatchNeedsInputCarriesModesAndAttributes(t *testing.T) {
	var o outcome
	client := &recordingClient{}
	d := NewDispatcher(client, capture(&o, nil), DispatcherOptions{})
	resp := &Response{DialogState: DialogElicitSlot, SlotToElicit: "date", SessionAttributes: map[string]string{"room": "king"}}
	got := d.Dispatch(context.Background(), Turn{Tracker: turn.NewTracker(2), RequestMode: ModeText, ResponseMode: ModeAudio}, resp, nil)
	if got != turn.StateNeedsInput {
		t.Fatalf("expected NEEDS_INPUT, got %s", got)
	}
	if o.cont == nil || o.cont.RequestMode() != ModeText || o.cont.ResponseMode() != ModeAudio {
		t.Fatalf("expected continuation with turn modes")
	}
	if v, _ := o.cont.SessionAttribute("room"); v != "king" {
		t.Fatalf("expected response attributes on continuation")
	}
	if client.count() != 0 {
		t.Fatalf("custom prompt handler must not auto-continue")
	}
}

func TestDefaultPromptAutoContinues(t *testing.T) {
	client := &recordingClient{}
	d := NewDispatcher(client, nil, DispatcherOptions{})
	resp := &Response{DialogState: DialogElicitIntent, SessionAttributes: map[string]string{"s": "1"}}
	d.Dispatch(context.Background(), Turn{Tracker: turn.NewTracker(1), RequestMode: ModeAudio, ResponseMode: ModeAudio}, resp, nil)
	if client.count() != 1 || client.last().method != "AudioInForAudioOut" {
		t.Fatalf("expected automatic audio continuation, got %+v", client.calls)
	}
	if client.last().session["s"] != "1" {
		t.Fatalf("expected echoed session attributes")
	}
}

func TestDefaultPromptInTextModeReportsMismatch(t *testing.T) {
	var errSeen error
	client := &recordingClient{}
	d := NewDispatcher(client, ListenerFuncs{
		InteractionError: func(_ context.Context, _ *Response, err error) { errSeen = err },
	}, DispatcherOptions{})
	d.Dispatch(context.Background(), Turn{Tracker: turn.NewTracker(1), RequestMode: ModeText, ResponseMode: ModeText},
		&Response{DialogState: DialogConfirmIntent}, nil)
	if !errors.Is(errSeen, ErrModeMismatch) {
		t.Fatalf("expected mode mismatch reported, got %v", errSeen)
	}
	if client.count() != 0 {
		t.Fatalf("expected no client call")
	}
}

func TestDispatchErrors(t *testing.T) {
	var o outcome
	mem := metrics.NewMemoryObserver()
	d := NewDispatcher(&recordingClient{}, capture(&o, nil), DispatcherOptions{Observer: mem})

	netErr := errors.New("connection reset")
	if got := d.Dispatch(context.Background(), Turn{Tracker: turn.NewTracker(1)}, nil, netErr); got != turn.StateErrored {
		t.Fatalf("expected ERRORED, got %s", got)
	}
	if !errors.Is(o.err, netErr) || !errorsx.HasReason(o.err, errorsx.ReasonInteraction) {
		t.Fatalf("expected interaction error wrapping transport error, got %v", o.err)
	}

	o = outcome{}
	d.Dispatch(context.Background(), Turn{Tracker: turn.NewTracker(2)}, &Response{DialogState: DialogFailed}, nil)
	if !errors.Is(o.err, ErrDialogFailed) || o.errResp == nil {
		t.Fatalf("expected dialog failed with response, got %+v", o)
	}

	o = outcome{}
	d.Dispatch(context.Background(), Turn{Tracker: turn.NewTracker(3)}, nil, nil)
	if !errors.Is(o.err, ErrEmptyResponse) {
		t.Fatalf("expected empty response error, got %v", o.err)
	}
	if mem.Count(metrics.EventTurnState) != 3 {
		t.Fatalf("expected a turn_state event per dispatch, got %d", mem.Count(metrics.EventTurnState))
	}
}

func TestPromptHandlerErrorIsReported(t *testing.T) {
	var o outcome
	boom := errors.New("ui gone")
	d := NewDispatcher(&recordingClient{}, capture(&o, func(context.Context, *Response, *Continuation) error { return boom }), DispatcherOptions{})
	d.Dispatch(context.Background(), Turn{Tracker: turn.NewTracker(1)}, &Response{DialogState: DialogElicitSlot}, nil)
	if !errors.Is(o.err, boom) {
		t.Fatalf("expected prompt error reported, got %v", o.err)
	}
}
