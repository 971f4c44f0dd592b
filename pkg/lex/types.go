// Package lex holds the conversational turn protocol: the interaction client
// contract, the bot response model, single-use continuations and the listener
// dispatch that turns a response into fulfillment, a prompt or an error.
package lex

import (
	"fmt"
	"strings"
)

// Mode is the input or output modality of a turn.
type Mode int

const (
	ModeText Mode = iota
	ModeAudio
)

func (m Mode) String() string {
	switch m {
	case ModeText:
		return "TEXT"
	case ModeAudio:
		return "AUDIO"
	default:
		return "UNKNOWN"
	}
}

// ParseMode accepts "text" or "audio" in any case.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "text":
		return ModeText, nil
	case "audio":
		return ModeAudio, nil
	default:
		return ModeText, fmt.Errorf("unknown mode %q", s)
	}
}

// DialogState is the bot's view of the conversation after a turn.
type DialogState string

const (
	DialogElicitIntent        DialogState = "ElicitIntent"
	DialogConfirmIntent       DialogState = "ConfirmIntent"
	DialogElicitSlot          DialogState = "ElicitSlot"
	DialogFulfilled           DialogState = "Fulfilled"
	DialogReadyForFulfillment DialogState = "ReadyForFulfillment"
	DialogFailed              DialogState = "Failed"
)

// Done reports whether the bot needs no further input.
func (d DialogState) Done() bool {
	return d == DialogFulfilled || d == DialogReadyForFulfillment
}

// Response is what the bot returned for one turn.
type Response struct {
	RequestID       string
	DialogState     DialogState
	IntentName      string
	Slots           map[string]string
	SlotToElicit    string
	Message         string
	MessageFormat   string
	InputTranscript string
	// SessionAttributes are echoed back on the next turn.
	SessionAttributes map[string]string
	// Audio holds the spoken prompt when audio output was requested.
	Audio            []byte
	AudioContentType string
}
