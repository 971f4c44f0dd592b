package lex

import "context"

// Listener receives the outcome of every turn.
type Listener interface {
	// OnReadyForFulfillment is called when the bot has everything it needs.
	OnReadyForFulfillment(ctx context.Context, resp *Response)
	// PromptUserToRespond is called when the bot needs more input. cont is
	// fresh and single use. A returned error is reported to OnInteractionError.
	PromptUserToRespond(ctx context.Context, resp *Response, cont *Continuation) error
	// OnInteractionError ends the turn with a failure. resp may be nil.
	OnInteractionError(ctx context.Context, resp *Response, err error)
}

// ListenerFuncs builds a Listener from optional callbacks. With Prompt unset
// the conversation continues in its current mode on its own.
type ListenerFuncs struct {
	ReadyForFulfillment func(ctx context.Context, resp *Response)
	Prompt              func(ctx context.Context, resp *Response, cont *Continuation) error
	InteractionError    func(ctx context.Context, resp *Response, err error)
}

var _ Listener = ListenerFuncs{}

func (l ListenerFuncs) OnReadyForFulfillment(ctx context.Context, resp *Response) {
	if l.ReadyForFulfillment != nil {
		l.ReadyForFulfillment(ctx, resp)
	}
}

func (l ListenerFuncs) PromptUserToRespond(ctx context.Context, resp *Response, cont *Continuation) error {
	if l.Prompt != nil {
		return l.Prompt(ctx, resp, cont)
	}
	return cont.ContinueWithCurrentMode(ctx)
}

func (l ListenerFuncs) OnInteractionError(ctx context.Context, resp *Response, err error) {
	if l.InteractionError != nil {
		l.InteractionError(ctx, resp, err)
	}
}
