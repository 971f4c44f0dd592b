// Package interaction runs a conversation with a bot one turn at a time. It
// implements lex.Client: every call starts a turn in the background and hands
// its outcome to the conversation's Listener.
package interaction

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/harunnryd/lexturn/pkg/capture"
	"github.com/harunnryd/lexturn/pkg/encoder"
	"github.com/harunnryd/lexturn/pkg/errorsx"
	"github.com/harunnryd/lexturn/pkg/lex"
	"github.com/harunnryd/lexturn/pkg/metrics"
	"github.com/harunnryd/lexturn/pkg/redact"
	"github.com/harunnryd/lexturn/pkg/request"
	"github.com/harunnryd/lexturn/pkg/transports"
	"github.com/harunnryd/lexturn/pkg/turn"
	"github.com/harunnryd/lexturn/pkg/vad"
)

var (
	// ErrBusy is returned when a turn is started while another is in flight.
	ErrBusy = errors.New("interaction: a turn is already in flight")
	// ErrCancelled is returned for any turn started after Cancel.
	ErrCancelled = errors.New("interaction: conversation cancelled")
	// ErrNoSource is returned for audio turns when no SourceFunc is configured.
	ErrNoSource = errors.New("interaction: audio input requested without an audio source")

	errResponseReceived = errors.New("interaction: response received")
)

// SourceFunc opens the audio input for an audio-in turn.
type SourceFunc func(ctx context.Context, turn int) (capture.Source, error)

type Config struct {
	Capture            capture.Config `mapstructure:"capture"`
	VAD                vad.Config     `mapstructure:"vad"`
	Classifier         string         `mapstructure:"classifier"`
	ClassifierSettings map[string]any `mapstructure:"classifier_settings"`
	Encoder            encoder.Config `mapstructure:"encoder"`
	// TurnTimeout bounds one turn from capture to response; zero means no limit.
	TurnTimeout time.Duration `mapstructure:"turn_timeout"`
}

// DefaultConfig is 16 kHz PCM with the energy classifier.
func DefaultConfig() Config {
	c := capture.DefaultConfig()
	return Config{
		Capture:    c,
		VAD:        vad.DefaultConfig(c.SampleRate),
		Classifier: "energy",
		Encoder:    encoder.Config{Format: encoder.FormatPCM16LE, SampleRate: c.SampleRate},
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Capture == (capture.Config{}) {
		c.Capture = d.Capture
	}
	if c.Capture.SampleRate <= 0 {
		c.Capture.SampleRate = d.Capture.SampleRate
	}
	if c.Capture.ChunkSize <= 0 {
		c.Capture.ChunkSize = c.Capture.SampleRate / 50
	}
	if c.VAD == (vad.Config{}) {
		c.VAD = vad.DefaultConfig(c.Capture.SampleRate)
	}
	if c.Classifier == "" {
		c.Classifier = d.Classifier
	}
	if c.Encoder.SampleRate <= 0 {
		c.Encoder.SampleRate = c.Capture.SampleRate
	}
	return c
}

// Options wires the client to its collaborators. Transport and Builder are required.
type Options struct {
	Transport transports.Transport
	Builder   *request.Builder
	Listener  lex.Listener
	Source    SourceFunc
	// Context bounds the whole conversation; Cancel cancels it too.
	Context        context.Context
	ConversationID string
	Logger         *slog.Logger
	Observer       metrics.Observer
	// StateListeners observe every turn's state changes.
	StateListeners []turn.StateListener
}

// Client drives one conversation.
type Client struct {
	cfg        Config
	transport  transports.Transport
	builder    *request.Builder
	source     SourceFunc
	dispatcher *lex.Dispatcher
	proto      *encoder.BufferedEncoder
	stateLs    []turn.StateListener

	id   string
	log  *slog.Logger
	obs  metrics.Observer
	base context.Context
	stop context.CancelFunc

	mu        sync.Mutex
	idle      *sync.Cond
	busy      bool
	active    int
	turns     int
	cancelled bool
}

var _ lex.Client = (*Client)(nil)

func New(cfg Config, opts Options) (*Client, error) {
	if opts.Transport == nil || opts.Builder == nil {
		return nil, errorsx.New(errorsx.ReasonInvalidParameter, "interaction: transport and builder are required")
	}
	cfg = cfg.withDefaults()
	if err := cfg.Capture.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.VAD.Validate(); err != nil {
		return nil, err
	}
	proto, err := encoder.NewEncoder(cfg.Encoder)
	if err != nil {
		return nil, err
	}
	// Fail fast on a bad classifier name or settings.
	cls, err := vad.NewClassifier(cfg.Classifier, cfg.ClassifierSettings)
	if err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonInvalidParameter)
	}
	_ = cls.Close()

	id := opts.ConversationID
	if id == "" {
		id = uuid.NewString()
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With(metrics.TagConversationID, id)
	obs := metrics.OrNoop(opts.Observer)
	parent := opts.Context
	if parent == nil {
		parent = context.Background()
	}
	base, stop := context.WithCancel(parent)

	c := &Client{
		cfg:       cfg,
		transport: opts.Transport,
		builder:   opts.Builder,
		source:    opts.Source,
		proto:     proto,
		stateLs:   opts.StateListeners,
		id:        id,
		log:       log,
		obs:       obs,
		base:      base,
		stop:      stop,
	}
	c.idle = sync.NewCond(&c.mu)
	c.dispatcher = lex.NewDispatcher(c, opts.Listener, lex.DispatcherOptions{
		Logger:   log,
		Observer: obs,
		Tags:     map[string]string{metrics.TagConversationID: id},
	})
	return c, nil
}

// ConversationID identifies the conversation in logs and metrics.
func (c *Client) ConversationID() string { return c.id }

// Turns reports how many turns have been started.
func (c *Client) Turns() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.turns
}

// Busy reports whether a turn is waiting for its response.
func (c *Client) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy
}

// Wait blocks until no turn is in flight and no listener callback is running.
func (c *Client) Wait() {
	c.mu.Lock()
	for c.active > 0 {
		c.idle.Wait()
	}
	c.mu.Unlock()
}

// Done is closed once the conversation has been cancelled.
func (c *Client) Done() <-chan struct{} { return c.base.Done() }

func (c *Client) TextInForTextOut(ctx context.Context, text string, sessionAttributes, requestAttributes map[string]string) error {
	return c.start(ctx, turnInput{in: lex.ModeText, out: lex.ModeText, text: text, session: sessionAttributes, request: requestAttributes})
}

func (c *Client) TextInForAudioOut(ctx context.Context, text string, sessionAttributes, requestAttributes map[string]string) error {
	return c.start(ctx, turnInput{in: lex.ModeText, out: lex.ModeAudio, text: text, session: sessionAttributes, request: requestAttributes})
}

func (c *Client) AudioInForTextOut(ctx context.Context, sessionAttributes, requestAttributes map[string]string) error {
	return c.start(ctx, turnInput{in: lex.ModeAudio, out: lex.ModeText, session: sessionAttributes, request: requestAttributes})
}

func (c *Client) AudioInForAudioOut(ctx context.Context, sessionAttributes, requestAttributes map[string]string) error {
	return c.start(ctx, turnInput{in: lex.ModeAudio, out: lex.ModeAudio, session: sessionAttributes, request: requestAttributes})
}

// Cancel abandons the conversation. An in-flight turn is aborted without a
// listener callback and later turns fail with ErrCancelled.
func (c *Client) Cancel() error {
	c.mu.Lock()
	if c.cancelled {
		c.mu.Unlock()
		return nil
	}
	c.cancelled = true
	inFlight := c.busy
	c.mu.Unlock()
	c.stop()
	c.log.Info("conversation_cancelled", "in_flight", inFlight)
	return nil
}

type turnInput struct {
	in, out lex.Mode
	text    string
	session map[string]string
	request map[string]string
}

func (ti turnInput) mode() string {
	return ti.in.String() + "_" + ti.out.String()
}

// start validates synchronously and runs the turn on its own goroutine. ctx
// contributes values to the turn but not its cancellation. TurnTimeout bounds
// the capture and the request only; the listener callback runs under a
// context that ends with the conversation, so a prompt handler may wait for
// the user as long as it likes.
func (c *Client) start(ctx context.Context, ti turnInput) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ti.in == lex.ModeAudio && c.source == nil {
		return errorsx.Wrap(ErrNoSource, errorsx.ReasonInvalidParameter)
	}
	c.mu.Lock()
	if c.cancelled {
		c.mu.Unlock()
		return errorsx.Wrap(ErrCancelled, errorsx.ReasonInteraction)
	}
	if c.busy {
		c.mu.Unlock()
		return errorsx.Wrap(ErrBusy, errorsx.ReasonInvalidParameter)
	}
	c.busy = true
	c.active++
	c.turns++
	n := c.turns
	c.mu.Unlock()

	convCtx, endConv := context.WithCancel(context.WithoutCancel(ctx))
	unlink := context.AfterFunc(c.base, endConv)
	turnCtx, cancel := convCtx, context.CancelFunc(func() {})
	if c.cfg.TurnTimeout > 0 {
		turnCtx, cancel = context.WithTimeout(convCtx, c.cfg.TurnTimeout)
	}

	go func() {
		defer func() {
			unlink()
			cancel()
			endConv()
			c.mu.Lock()
			c.active--
			if c.active == 0 {
				c.idle.Broadcast()
			}
			c.mu.Unlock()
		}()
		c.run(convCtx, turnCtx, n, ti)
	}()
	return nil
}

// run exchanges the turn under turnCtx and dispatches the outcome under convCtx.
func (c *Client) run(convCtx, ctx context.Context, n int, ti turnInput) {
	tracker := turn.NewTracker(n, c.stateLs...)
	tags := c.tags(n)
	tags[metrics.TagMode] = ti.mode()
	metrics.Record(c.obs, metrics.EventTurnStarted, float64(n), tags)
	c.log.Info("turn_started", metrics.TagTurn, n, metrics.TagMode, ti.mode(),
		"text", redact.Text(ti.text), "session_attributes", redact.Attributes(ti.session))

	var (
		resp *lex.Response
		err  error
	)
	if ti.in == lex.ModeText {
		resp, err = c.textTurn(ctx, ti)
	} else {
		resp, err = c.audioTurn(ctx, n, ti)
	}

	c.mu.Lock()
	c.busy = false
	cancelled := c.cancelled
	c.mu.Unlock()

	if cancelled {
		c.log.Info("turn_cancelled", metrics.TagTurn, n)
		return
	}
	c.dispatcher.Dispatch(convCtx, lex.Turn{Tracker: tracker, RequestMode: ti.in, ResponseMode: ti.out}, resp, err)
}

func (c *Client) textTurn(ctx context.Context, ti turnInput) (*lex.Response, error) {
	req, err := c.builder.BuildText(ctx, ti.text, ti.out, ti.session, ti.request)
	if err != nil {
		return nil, err
	}
	return c.transport.PostContent(ctx, req)
}

// audioTurn streams the capture into the request body while the transport
// sends it.
func (c *Client) audioTurn(ctx context.Context, n int, ti turnInput) (*lex.Response, error) {
	src, err := c.source(ctx, n)
	if err != nil {
		return nil, errorsx.Wrap(fmt.Errorf("interaction: open audio source: %w", err), errorsx.ReasonCaptureSource)
	}
	session, err := c.newCapture(n)
	if err != nil {
		return nil, err
	}
	pr, pw := io.Pipe()
	req, err := c.builder.BuildAudio(ctx, pr, session.ContentType(), ti.out, ti.session, ti.request)
	if err != nil {
		_ = session.Close()
		return nil, err
	}

	captured := make(chan error, 1)
	go func() {
		res, cerr := session.Run(ctx, src, pw)
		_ = pw.CloseWithError(cerr)
		if cerr == nil {
			c.log.Debug("turn_audio_captured", metrics.TagTurn, n, "end", res.EndReason,
				"samples", res.Samples, "bytes", res.Bytes)
		}
		captured <- cerr
	}()

	resp, terr := c.transport.PostContent(ctx, req)
	if terr != nil {
		_ = pr.CloseWithError(terr)
	} else {
		_ = pr.CloseWithError(errResponseReceived)
	}
	cerr := <-captured

	switch {
	case cerr == nil || errors.Is(cerr, errResponseReceived):
		return resp, terr
	case terr != nil && errors.Is(cerr, terr):
		return nil, terr
	default:
		return nil, cerr
	}
}

func (c *Client) newCapture(n int) (*capture.Session, error) {
	tags := c.tags(n)
	cls, err := vad.NewClassifier(c.cfg.Classifier, c.cfg.ClassifierSettings)
	if err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonInvalidParameter)
	}
	det, err := vad.New(c.cfg.VAD, cls, vad.Options{Observer: c.obs, Logger: c.log, Tags: tags})
	if err != nil {
		_ = cls.Close()
		return nil, err
	}
	enc, err := c.proto.NewEncoder()
	if err != nil {
		_ = det.Close()
		return nil, err
	}
	s, err := capture.NewSession(c.cfg.Capture, det, enc, capture.Options{Observer: c.obs, Logger: c.log, Tags: tags})
	if err != nil {
		_ = det.Close()
		return nil, err
	}
	return s, nil
}

func (c *Client) tags(n int) map[string]string {
	return map[string]string{
		metrics.TagConversationID: c.id,
		metrics.TagTurn:           strconv.Itoa(n),
	}
}
