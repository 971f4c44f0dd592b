// Package twilio connects phone calls to conversations. It answers the voice
// webhook with a media stream, turns inbound mu-law audio into a capture
// source per call and plays bot prompts back on the stream.
package twilio

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	api "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/harunnryd/lexturn/pkg/configutil"
	"github.com/harunnryd/lexturn/pkg/encoder"
	"github.com/harunnryd/lexturn/pkg/errorsx"
)

// SampleRate is the media stream rate.
const SampleRate = 8000

type Config struct {
	ServerAddr         string   `mapstructure:"server_addr"`
	PublicURL          string   `mapstructure:"public_url"`
	AuthToken          string   `mapstructure:"auth_token"`
	AccountSID         string   `mapstructure:"account_sid"`
	VoicePath          string   `mapstructure:"voice_path"`
	WebsocketPath      string   `mapstructure:"ws_path"`
	StatusCallbackPath string   `mapstructure:"status_callback_path"`
	VoiceGreeting      string   `mapstructure:"voice_greeting"`
	AllowAnyOrigin     bool     `mapstructure:"allow_any_origin"`
	AllowedOrigins     []string `mapstructure:"allowed_origins"`
	// InboundBuffer is the number of 20ms media chunks queued per call.
	InboundBuffer int `mapstructure:"inbound_buffer"`
}

var settingsSchema = configutil.Schema{
	Optional: []string{
		"server_addr", "public_url", "auth_token", "account_sid", "voice_path", "ws_path",
		"status_callback_path", "voice_greeting", "allow_any_origin", "allowed_origins", "inbound_buffer",
	},
}

// DecodeConfig reads a Config from a settings map.
func DecodeConfig(settings map[string]any) (Config, error) {
	var cfg Config
	if err := configutil.DecodeWithSchema(settings, settingsSchema, &cfg); err != nil {
		return Config{}, errorsx.Wrap(fmt.Errorf("twilio settings: %w", err), errorsx.ReasonConfig)
	}
	return cfg.withDefaults(), nil
}

func (c Config) withDefaults() Config {
	def := func(v *string, d string) {
		if *v == "" {
			*v = d
		}
	}
	def(&c.ServerAddr, ":8080")
	def(&c.VoicePath, "/voice")
	def(&c.WebsocketPath, "/ws")
	def(&c.StatusCallbackPath, "/status")
	if c.InboundBuffer <= 0 {
		c.InboundBuffer = 500
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowAnyOrigin = true
	}
	return c
}

// CallHandler runs a conversation for one call. ctx is cancelled when the call ends.
type CallHandler func(ctx context.Context, call *Call)

// Transport serves the voice webhook, the status callback and the media
// stream websocket. Each stream becomes a Call handed to the CallHandler.
type Transport struct {
	cfg      Config
	handler  CallHandler
	log      *slog.Logger
	upgrader websocket.Upgrader
	server   *http.Server

	updateClient callUpdater

	mu       sync.Mutex
	byStream map[string]*Call
	bySID    map[string]*Call
	handlers sync.WaitGroup
	draining atomic.Bool
}

func New(cfg Config, handler CallHandler, log *slog.Logger) *Transport {
	if log == nil {
		log = slog.Default()
	}
	t := &Transport{
		cfg:      cfg.withDefaults(),
		handler:  handler,
		log:      log.With("transport", "twilio"),
		byStream: make(map[string]*Call),
		bySID:    make(map[string]*Call),
	}
	t.upgrader = websocket.Upgrader{ReadBufferSize: 4096, WriteBufferSize: 4096, CheckOrigin: t.checkOrigin}
	return t
}

func (t *Transport) Name() string { return "twilio" }

func (t *Transport) ReadyFields() map[string]any {
	return map[string]any{
		"webhook_url":         t.cfg.endpoint("https", t.cfg.VoicePath),
		"status_callback_url": t.cfg.endpoint("https", t.cfg.StatusCallbackPath),
		"stream_path":         t.cfg.WebsocketPath,
	}
}

// Handler returns the HTTP routes served by Start, for embedding in another mux.
func (t *Transport) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(t.cfg.VoicePath, t.handleVoice)
	mux.HandleFunc(t.cfg.StatusCallbackPath, t.handleStatusCallback)
	mux.Handle(t.cfg.WebsocketPath, t)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

// Start listens on ServerAddr until ctx is done or Stop is called.
func (t *Transport) Start(ctx context.Context) error {
	t.server = &http.Server{Addr: t.cfg.ServerAddr, Handler: t.Handler(), ReadHeaderTimeout: 5 * time.Second}
	srv := t.server
	context.AfterFunc(ctx, func() { _ = srv.Close() })
	go func() {
		err := srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.log.Error("twilio_transport_server_error", "error", err.Error())
		}
	}()
	return nil
}

// Stop refuses new streams, ends every call and waits for the call handlers.
func (t *Transport) Stop() error {
	t.draining.Store(true)
	if t.server != nil {
		_ = t.server.Close()
	}
	t.mu.Lock()
	live := make([]*Call, 0, len(t.byStream))
	for _, c := range t.byStream {
		live = append(live, c)
	}
	t.mu.Unlock()
	for _, c := range live {
		c.end("transport_stopped")
	}
	t.handlers.Wait()
	return nil
}

// ServeHTTP runs one media stream websocket until it stops or drops.
func (t *Transport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if t.draining.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	conn, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s := &stream{t: t, conn: conn}
	defer s.close()
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var evt Event
		if json.Unmarshal(msg, &evt) != nil {
			continue
		}
		if s.handle(evt) {
			return
		}
	}
}

// stream is the read side of one websocket.
type stream struct {
	t    *Transport
	conn *websocket.Conn
	call *Call
}

// handle applies one event and reports whether the stream is finished.
func (s *stream) handle(evt Event) bool {
	switch evt.Event {
	case eventStart:
		if evt.Start != nil && s.call == nil {
			s.call = s.t.attach(evt.Start, s.conn)
		}
	case eventMedia:
		if s.call == nil || evt.Media == nil {
			return false
		}
		if payload, err := base64.StdEncoding.DecodeString(evt.Media.Payload); err == nil {
			s.call.push(encoder.DecodeMuLaw(payload))
		}
	case eventDTMF:
		if s.call != nil && evt.DTMF != nil {
			s.call.pushDigit(evt.DTMF.Digit)
		}
	case eventStop:
		reason := "completed"
		if evt.Stop != nil {
			if r := endReason(evt.Stop.Reason); r != "" {
				reason = r
			}
		}
		if s.call != nil {
			s.call.end(reason)
		}
		return true
	}
	return false
}

func (s *stream) close() {
	if s.call == nil {
		return
	}
	s.call.end("transport_closed")
	s.t.detach(s.call)
	s.call.finish()
}

// attach registers a new stream. A second stream for the same call sid
// replaces the first, which is ended as "reconnected".
func (t *Transport) attach(start *Start, conn *websocket.Conn) *Call {
	ctx, cancel := context.WithCancel(context.Background())
	call := newCall(start, conn, t.cfg.InboundBuffer, cancel, t.log)
	call.hangup = t.Hangup

	t.mu.Lock()
	prev := t.bySID[start.CallSID]
	if prev != nil && prev.StreamSID != start.StreamSID {
		delete(t.byStream, prev.StreamSID)
	} else {
		prev = nil
	}
	t.byStream[start.StreamSID] = call
	if start.CallSID != "" {
		t.bySID[start.CallSID] = call
	}
	t.mu.Unlock()

	if prev != nil {
		t.log.Info("twilio_stream_reconnected", "call_sid", start.CallSID,
			"old_stream", prev.StreamSID, "stream", start.StreamSID)
		prev.end("reconnected")
	}
	t.log.Info("twilio_call_started", "call_sid", call.SID, "stream", call.StreamSID,
		"conversation_id", call.ConversationID)

	if t.handler != nil {
		t.handlers.Add(1)
		go func() {
			defer t.handlers.Done()
			t.handler(ctx, call)
		}()
	}
	return call
}

func (t *Transport) detach(call *Call) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.byStream[call.StreamSID] == call {
		delete(t.byStream, call.StreamSID)
	}
	if t.bySID[call.SID] == call {
		delete(t.bySID, call.SID)
	}
}

// ActiveCalls reports the number of connected streams.
func (t *Transport) ActiveCalls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byStream)
}

func (t *Transport) callBySID(sid string) *Call {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.bySID[sid]
}

// Hangup ends a call through the REST API.
func (t *Transport) Hangup(ctx context.Context, callSID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(callSID) == "" {
		return errorsx.New(errorsx.ReasonInvalidParameter, "twilio: hangup needs a call sid")
	}
	updater := t.updateClient
	if updater == nil {
		svc, err := restAPI(t.cfg)
		if err != nil {
			return err
		}
		updater = svc
	}
	_, err := updater.UpdateCall(callSID, (&api.UpdateCallParams{}).SetTwiml(hangupTwiML))
	if err != nil {
		return errorsx.Wrapf(err, errorsx.ReasonTransportSend, "twilio: hang up %s", callSID)
	}
	return nil
}

func newConversationID() string { return uuid.NewString() }
