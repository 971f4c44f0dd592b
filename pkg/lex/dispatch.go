package lex

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/harunnryd/lexturn/pkg/errorsx"
	"github.com/harunnryd/lexturn/pkg/metrics"
	"github.com/harunnryd/lexturn/pkg/redact"
	"github.com/harunnryd/lexturn/pkg/turn"
)

// Dispatcher routes a turn outcome to a Listener. It is the only place where
// errors become terminal for a turn; nothing is retried here.
type Dispatcher struct {
	client   Client
	listener Listener
	log      *slog.Logger
	obs      metrics.Observer
	tags     map[string]string
}

// DispatcherOptions carries optional collaborators.
type DispatcherOptions struct {
	Logger   *slog.Logger
	Observer metrics.Observer
	Tags     map[string]string
}

// NewDispatcher builds a dispatcher. Continuations it creates hand the next
// turn to client. A nil listener means ListenerFuncs{}.
func NewDispatcher(client Client, listener Listener, opts DispatcherOptions) *Dispatcher {
	if listener == nil {
		listener = ListenerFuncs{}
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		client:   client,
		listener: listener,
		log:      log,
		obs:      metrics.OrNoop(opts.Observer),
		tags:     opts.Tags,
	}
}

// Turn identifies the turn being dispatched.
type Turn struct {
	Tracker      *turn.Tracker
	RequestMode  Mode
	ResponseMode Mode
}

// Dispatch classifies resp/err, moves the tracker to its terminal state and
// calls the matching listener method. It returns the terminal state.
func (d *Dispatcher) Dispatch(ctx context.Context, t Turn, resp *Response, err error) turn.State {
	tracker := t.Tracker
	if tracker == nil {
		tracker = turn.NewTracker(0)
	}
	if err == nil && resp == nil {
		err = ErrEmptyResponse
	}

	switch {
	case err != nil:
		err = errorsx.Wrap(err, errorsx.ReasonInteraction)
		d.finish(tracker, turn.StateErrored, string(errorsx.Reason(err)), t)
		d.log.Warn("turn_errored", "turn", tracker.Turn(), "error", err.Error(),
			"reason_code", string(errorsx.Reason(err)))
		d.listener.OnInteractionError(ctx, resp, err)
		return turn.StateErrored

	case resp.DialogState.Done():
		d.finish(tracker, turn.StateFulfilled, string(resp.DialogState), t)
		d.log.Info("turn_fulfilled", "turn", tracker.Turn(), "intent", resp.IntentName,
			"dialog_state", string(resp.DialogState))
		d.listener.OnReadyForFulfillment(ctx, resp)
		return turn.StateFulfilled

	case resp.DialogState == DialogFailed:
		ferr := errorsx.Wrap(ErrDialogFailed, errorsx.ReasonDialogFailed)
		d.finish(tracker, turn.StateErrored, string(resp.DialogState), t)
		d.log.Warn("turn_dialog_failed", "turn", tracker.Turn(), "intent", resp.IntentName,
			"message", redact.Text(resp.Message), "reason_code", string(errorsx.ReasonDialogFailed))
		d.listener.OnInteractionError(ctx, resp, ferr)
		return turn.StateErrored
	}

	d.finish(tracker, turn.StateNeedsInput, string(resp.DialogState), t)
	d.log.Info("turn_needs_input", "turn", tracker.Turn(), "dialog_state", string(resp.DialogState),
		"slot_to_elicit", resp.SlotToElicit, "message", redact.Text(resp.Message))
	cont := NewContinuation(d.client, resp.SessionAttributes, t.RequestMode, t.ResponseMode)
	cont.obs = d.obs
	cont.tags = d.turnTags(tracker)
	if perr := d.listener.PromptUserToRespond(ctx, resp, cont); perr != nil {
		d.log.Warn("turn_prompt_failed", "turn", tracker.Turn(), "error", perr.Error(),
			"reason_code", string(errorsx.Reason(perr)))
		d.listener.OnInteractionError(ctx, resp, perr)
	}
	return turn.StateNeedsInput
}

func (d *Dispatcher) finish(tracker *turn.Tracker, state turn.State, reason string, t Turn) {
	if err := tracker.Transition(state, reason); err != nil {
		d.log.Error("turn_transition_invalid", "turn", tracker.Turn(), "error", err.Error())
		return
	}
	tags := d.turnTags(tracker)
	tags[metrics.TagState] = state.String()
	tags[metrics.TagMode] = t.RequestMode.String() + "_" + t.ResponseMode.String()
	metrics.Record(d.obs, metrics.EventTurnState, tracker.Duration().Seconds(), tags)
}

func (d *Dispatcher) turnTags(tracker *turn.Tracker) map[string]string {
	tags := make(map[string]string, len(d.tags)+3)
	for k, v := range d.tags {
		tags[k] = v
	}
	tags[metrics.TagTurn] = strconv.Itoa(tracker.Turn())
	return tags
}
