package lex

import "context"

// Client is the interaction client a Continuation hands the next turn to.
// Each method starts a turn; its outcome reaches the client's Listener.
type Client interface {
	TextInForTextOut(ctx context.Context, text string, sessionAttributes, requestAttributes map[string]string) error
	TextInForAudioOut(ctx context.Context, text string, sessionAttributes, requestAttributes map[string]string) error
	AudioInForTextOut(ctx context.Context, sessionAttributes, requestAttributes map[string]string) error
	AudioInForAudioOut(ctx context.Context, sessionAttributes, requestAttributes map[string]string) error
	// Cancel abandons the conversation.
	Cancel() error
}
