package twilio

import "strings"

// Media stream event names.
const (
	eventStart = "start"
	eventMedia = "media"
	eventDTMF  = "dtmf"
	eventStop  = "stop"
	eventClear = "clear"
)

// Start is the payload of a media stream "start" event.
type Start struct {
	CallSID   string `json:"callSid"`
	StreamSID string `json:"streamSid"`
	From      string `json:"from"`
}

type Media struct {
	Payload string `json:"payload"`
}

type DTMF struct {
	Digit string `json:"digit"`
}

type Stop struct {
	Reason string `json:"reason"`
}

// Event is one media stream message, in either direction.
type Event struct {
	Event     string `json:"event"`
	StreamSID string `json:"streamSid,omitempty"`
	Start     *Start `json:"start,omitempty"`
	Media     *Media `json:"media,omitempty"`
	DTMF      *DTMF  `json:"dtmf,omitempty"`
	Stop      *Stop  `json:"stop,omitempty"`
}

// endReasons folds call statuses and stop reasons into the reasons a Call
// reports. Statuses of a live call map to "".
var endReasons = map[string]string{
	"": "", "queued": "", "ringing": "", "in-progress": "", "inprogress": "",

	"completed": "completed", "call_ended": "completed", "call-ended": "completed",
	"completed_by_user": "completed", "hangup": "completed",

	"busy":      "busy",
	"no_answer": "no_answer", "noanswer": "no_answer", "no-answer": "no_answer",

	"failed": "failed", "error": "failed", "canceled": "failed", "cancelled": "failed",
	"transport_closed": "failed",
}

func endReason(raw string) string {
	if r, ok := endReasons[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return r
	}
	return "unknown"
}
