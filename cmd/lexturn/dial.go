package main

import (
	"context"
	"errors"
	"flag"
	"fmt"

	"github.com/harunnryd/lexturn/pkg/transports/twilio"
)

// runDial places an outbound call. The callee is answered by a running serve.
func runDial(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("dial", flag.ContinueOnError)
	to := fs.String("to", "", "destination number")
	from := fs.String("from", a.cfg.Twilio.From, "caller id")
	voiceURL := fs.String("voice_url", "", "override the voice webhook URL")
	sendDigits := fs.String("send_digits", "", "DTMF digits to send once answered")
	status := fs.Bool("status_callback", true, "request call status callbacks")
	ring := fs.Int("ring", 0, "seconds to ring before giving up (0 keeps the account default)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *to == "" || *from == "" {
		return errors.New("dial: -to and -from are required")
	}
	tcfg, err := twilio.DecodeConfig(a.cfg.Twilio.Settings)
	if err != nil {
		return err
	}
	sid, err := twilio.NewDialer(tcfg).Dial(ctx, *to, *from, twilio.DialOptions{
		URL:            *voiceURL,
		SendDigits:     *sendDigits,
		StatusCallback: *status,
		RingSeconds:    *ring,
	})
	if err != nil {
		return err
	}
	a.log.Info("outbound_dial_started", "call_sid", sid)
	fmt.Println("call_sid:", sid)
	return nil
}
