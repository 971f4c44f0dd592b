package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/harunnryd/lexturn/pkg/capture"
	"github.com/harunnryd/lexturn/pkg/interaction"
	"github.com/harunnryd/lexturn/pkg/lex"
	"github.com/harunnryd/lexturn/pkg/logging"
	"github.com/harunnryd/lexturn/pkg/metrics"
	"github.com/harunnryd/lexturn/pkg/runner"
	"github.com/harunnryd/lexturn/pkg/transports/twilio"
	"github.com/harunnryd/lexturn/pkg/turn"
)

// runServe answers Twilio calls; every call is one audio conversation.
func runServe(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	drain := fs.Duration("drain_timeout", 10*time.Second, "how long to wait for calls to end on shutdown")
	keypadGap := fs.Duration("keypad_gap", 2*time.Second, "pause that ends a keypad entry typed during a prompt")
	if err := fs.Parse(args); err != nil {
		return err
	}
	tcfg, err := twilio.DecodeConfig(a.cfg.Twilio.Settings)
	if err != nil {
		return err
	}
	tel, err := newTelemetry(a.cfg.Observability, a.log)
	if err != nil {
		return err
	}
	sess, err := newSession(a.cfg, a.log, tel)
	if err != nil {
		_ = tel.Close()
		return err
	}

	b := &bridge{
		cfg:       withSampleRate(a.cfg.Interaction, twilio.SampleRate),
		sess:      sess,
		tel:       tel,
		log:       logging.NewComponentLogger(a.log, "bridge"),
		keypadGap: *keypadGap,
	}
	tr := twilio.New(tcfg, b.handle, logging.NewComponentLogger(a.log, "twilio"))

	r := runner.NewLifecycleRunner(runner.Hooks{
		OnStart: func(ctx context.Context) error {
			tel.serveMetrics(ctx)
			if err := tr.Start(ctx); err != nil {
				return err
			}
			a.log.Info("serve_ready", "addr", tcfg.ServerAddr, "webhook_url", tr.ReadyFields()["webhook_url"])
			return nil
		},
		OnStop: func() { a.log.Info("serve_stopped") },
	}, *drain,
		runner.DrainFunc(tr.Stop),
		runner.DrainFunc(sess.Close),
		runner.DrainFunc(tel.Close),
	)
	r.Banner = os.Stdout
	return r.Run(ctx)
}

// bridge connects a phone call to a bot conversation.
type bridge struct {
	cfg       interaction.Config
	sess      *session
	tel       *telemetry
	log       *slog.Logger
	keypadGap time.Duration
}

// phoneCall is the part of a twilio.Call the conversation listener drives.
type phoneCall interface {
	Play(ctx context.Context, audio []byte, contentType string) (time.Duration, error)
	Clear() error
	Hangup(ctx context.Context) error
	Digits() <-chan string
}

func (b *bridge) handle(ctx context.Context, call *twilio.Call) {
	log := b.log.With("call_sid", call.SID, metrics.TagConversationID, call.ConversationID)
	ended := make(chan struct{})
	var once sync.Once
	listener := b.listener(call, log, func() { once.Do(func() { close(ended) }) })

	client, err := b.sess.client(b.cfg, interaction.Options{
		Listener: listener,
		Source: func(context.Context, int) (capture.Source, error) {
			return call.Source(), nil
		},
		Context:        ctx,
		ConversationID: call.ConversationID,
		Logger:         log,
		Observer:       b.tel,
		StateListeners: []turn.StateListener{turn.StateListenerFunc(func(ev turn.StateChange) {
			log.Debug("call_turn_state", "turn", ev.Turn, "state", ev.ToState.String(), "reason", ev.Reason)
		})},
	})
	if err != nil {
		log.Error("call_conversation_failed", "error", err.Error())
		_ = call.Hangup(ctx)
		return
	}
	log.Info("call_conversation_started", "from", call.From)
	if err := client.AudioInForAudioOut(ctx, map[string]string{"caller": call.From}, nil); err != nil {
		log.Error("call_turn_failed", "error", err.Error())
		_ = call.Hangup(ctx)
		return
	}

	select {
	case <-ctx.Done():
	case <-ended:
	}
	_ = client.Cancel()
	client.Wait()
	log.Info("call_conversation_ended", "turns", client.Turns(), "end_reason", call.EndReason(),
		"dropped_chunks", call.Dropped())
	if err := b.tel.Flush(); err != nil {
		log.Warn("telemetry_flush_failed", "error", err.Error())
	}
}

// listener speaks every reply on the call. A prompt is followed by the
// caller's spoken answer, unless a key is pressed while it plays: then the
// prompt is cut short and the keypad entry is sent as text.
func (b *bridge) listener(call phoneCall, log *slog.Logger, finish func()) lex.ListenerFuncs {
	// play speaks a reply and returns how long the caller will be listening.
	play := func(ctx context.Context, resp *lex.Response) time.Duration {
		if resp == nil || len(resp.Audio) == 0 {
			return 0
		}
		if err := call.Clear(); err != nil {
			log.Debug("call_clear_failed", "error", err.Error())
		}
		d, err := call.Play(ctx, resp.Audio, resp.AudioContentType)
		if err != nil {
			log.Warn("call_play_failed", "error", err.Error())
		}
		return d
	}
	hangupAfter := func(ctx context.Context, d time.Duration) {
		select {
		case <-ctx.Done():
			return
		case <-time.After(d):
		}
		if err := call.Hangup(ctx); err != nil {
			log.Warn("call_hangup_failed", "error", err.Error())
		}
	}

	return lex.ListenerFuncs{
		ReadyForFulfillment: func(ctx context.Context, resp *lex.Response) {
			log.Info("call_dialog_done", "intent", resp.IntentName, "dialog_state", string(resp.DialogState))
			hangupAfter(ctx, play(ctx, resp))
			finish()
		},
		Prompt: func(ctx context.Context, resp *lex.Response, cont *lex.Continuation) error {
			drainDigits(call.Digits())
			entry, err := b.awaitKeypad(ctx, call, play(ctx, resp), log)
			if err != nil {
				return err
			}
			if entry != "" {
				log.Info("call_keypad_entry", "length", len(entry))
				return cont.ContinueWithTextInForAudioOut(ctx, entry)
			}
			// Speech captured while the prompt played is dropped by the next Source.
			if cont.RequestMode() == lex.ModeAudio {
				return cont.ContinueWithCurrentMode(ctx)
			}
			return cont.ContinueWithAudioInForAudioOut(ctx)
		},
		InteractionError: func(ctx context.Context, resp *lex.Response, err error) {
			log.Warn("call_dialog_failed", "error", err.Error())
			hangupAfter(ctx, play(ctx, resp))
			finish()
		},
	}
}

// awaitKeypad waits out a prompt of the given length. A key press during it
// clears the rest of the prompt and starts a keypad entry.
func (b *bridge) awaitKeypad(ctx context.Context, call phoneCall, playback time.Duration, log *slog.Logger) (string, error) {
	timer := time.NewTimer(playback)
	defer timer.Stop()
	var first string
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-timer.C:
		return "", nil
	case d, ok := <-call.Digits():
		if !ok {
			return "", nil
		}
		first = d
	}
	if err := call.Clear(); err != nil {
		log.Debug("call_clear_failed", "error", err.Error())
	}
	return collectKeypad(ctx, call.Digits(), first, b.keypadGap), nil
}

// collectKeypad gathers digits starting with first until '#', a pause of gap
// or the end of the call. The '#' is not part of the entry.
func collectKeypad(ctx context.Context, digits <-chan string, first string, gap time.Duration) string {
	var entry strings.Builder
	next := first
	for next != "#" {
		entry.WriteString(next)
		select {
		case d, ok := <-digits:
			if !ok {
				return entry.String()
			}
			next = d
		case <-time.After(gap):
			return entry.String()
		case <-ctx.Done():
			return entry.String()
		}
	}
	return entry.String()
}

// drainDigits discards key presses made before the current prompt.
func drainDigits(digits <-chan string) {
	for {
		select {
		case _, ok := <-digits:
			if !ok {
				return
			}
		default:
			return
		}
	}
}
