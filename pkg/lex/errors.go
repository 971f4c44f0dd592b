package lex

import "errors"

var (
	// ErrContinuationConsumed is returned when a continuation is used twice.
	ErrContinuationConsumed = errors.New("lex: continuation already consumed")
	// ErrModeMismatch is returned by ContinueWithCurrentMode unless both modes are audio.
	ErrModeMismatch = errors.New("lex: continue with current mode requires audio request and response modes")
	// ErrDialogFailed is reported when the bot ends the dialog in the Failed state.
	ErrDialogFailed = errors.New("lex: dialog failed")
	// ErrEmptyResponse is reported when a transport returns neither a response nor an error.
	ErrEmptyResponse = errors.New("lex: empty response")
)
