package twilio

import (
	"context"
	"strings"

	api "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/harunnryd/lexturn/pkg/errorsx"
)

// DialOptions tune an outbound call.
type DialOptions struct {
	// URL replaces the voice webhook the answered call fetches.
	URL        string
	SendDigits string
	// StatusCallback subscribes the status path to the completed event.
	StatusCallback bool
	// RingSeconds bounds how long the callee's phone rings. Zero keeps the
	// account default.
	RingSeconds int
}

// Dialer calls a number and hands the answered call to the voice webhook of
// a running serve, which starts a bot conversation on it.
type Dialer struct {
	cfg    Config
	client callCreator
}

func NewDialer(cfg Config) *Dialer {
	return &Dialer{cfg: cfg.withDefaults()}
}

// Dial returns the sid of the created call.
func (d *Dialer) Dial(ctx context.Context, to, from string, opts DialOptions) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	to, from = strings.TrimSpace(to), strings.TrimSpace(from)
	if to == "" || from == "" {
		return "", errorsx.New(errorsx.ReasonInvalidParameter, "twilio: dial needs both to and from")
	}
	creator := d.client
	if creator == nil {
		svc, err := restAPI(d.cfg)
		if err != nil {
			return "", err
		}
		creator = svc
	}

	params := (&api.CreateCallParams{}).SetTo(to).SetFrom(from)
	if opts.URL != "" {
		params.SetUrl(opts.URL)
	} else {
		params.SetUrl(d.cfg.endpoint("https", d.cfg.VoicePath))
	}
	if digits := strings.TrimSpace(opts.SendDigits); digits != "" {
		params.SetSendDigits(digits)
	}
	if opts.RingSeconds > 0 {
		params.SetTimeout(opts.RingSeconds)
	}
	if opts.StatusCallback {
		params.SetStatusCallback(d.cfg.endpoint("https", d.cfg.StatusCallbackPath))
		params.SetStatusCallbackEvent([]string{"completed"})
	}

	call, err := creator.CreateCall(params)
	if err != nil {
		return "", errorsx.Wrapf(err, errorsx.ReasonTransportConnect, "twilio: create call to %s", to)
	}
	if call == nil || call.Sid == nil || *call.Sid == "" {
		return "", errorsx.New(errorsx.ReasonTransportStatus, "twilio: create call returned no sid")
	}
	return *call.Sid, nil
}
