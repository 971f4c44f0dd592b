// Package ws carries turns to a bot gateway over a websocket. Each turn opens
// its own connection: a JSON request envelope, binary audio chunks, a JSON end
// marker, then a single JSON reply.
package ws

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/harunnryd/lexturn/pkg/configutil"
	"github.com/harunnryd/lexturn/pkg/errorsx"
	"github.com/harunnryd/lexturn/pkg/lex"
	"github.com/harunnryd/lexturn/pkg/metrics"
	"github.com/harunnryd/lexturn/pkg/request"
	"github.com/harunnryd/lexturn/pkg/transports"
)

// Envelope types.
const (
	TypeRequest  = "request"
	TypeEnd      = "end"
	TypeResponse = "response"
	TypeError    = "error"
)

// Envelope is the JSON message exchanged on the socket.
type Envelope struct {
	Type              string            `json:"type"`
	RequestID         string            `json:"request_id,omitempty"`
	Bot               string            `json:"bot,omitempty"`
	Alias             string            `json:"alias,omitempty"`
	UserID            string            `json:"user_id,omitempty"`
	ContentType       string            `json:"content_type,omitempty"`
	Accept            string            `json:"accept,omitempty"`
	Text              string            `json:"text,omitempty"`
	SessionAttributes map[string]string `json:"session_attributes,omitempty"`
	RequestAttributes map[string]string `json:"request_attributes,omitempty"`
	Response          *WireResponse     `json:"response,omitempty"`
	Error             string            `json:"error,omitempty"`
}

// WireResponse is the bot reply as it travels on the socket.
type WireResponse struct {
	DialogState       string            `json:"dialog_state"`
	IntentName        string            `json:"intent_name,omitempty"`
	Slots             map[string]string `json:"slots,omitempty"`
	SlotToElicit      string            `json:"slot_to_elicit,omitempty"`
	Message           string            `json:"message,omitempty"`
	MessageFormat     string            `json:"message_format,omitempty"`
	InputTranscript   string            `json:"input_transcript,omitempty"`
	SessionAttributes map[string]string `json:"session_attributes,omitempty"`
	AudioB64          string            `json:"audio_b64,omitempty"`
	AudioContentType  string            `json:"audio_content_type,omitempty"`
}

type Config struct {
	URL          string        `mapstructure:"url"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReplyTimeout time.Duration `mapstructure:"reply_timeout"`
	ChunkBytes   int           `mapstructure:"chunk_bytes"`
	AuthToken    string        `mapstructure:"auth_token"`
}

var settingsSchema = configutil.Schema{
	Required: []string{"url"},
	Optional: []string{"dial_timeout", "reply_timeout", "chunk_bytes", "auth_token"},
}

func (c Config) withDefaults() Config {
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.ReplyTimeout <= 0 {
		c.ReplyTimeout = 30 * time.Second
	}
	if c.ChunkBytes <= 0 {
		c.ChunkBytes = 3200
	}
	return c
}

type Client struct {
	cfg    Config
	dialer *websocket.Dialer
	log    *slog.Logger
	obs    metrics.Observer
}

var _ transports.Transport = (*Client)(nil)

func New(cfg Config, opts transports.Options) (*Client, error) {
	if err := configutil.RequireString(cfg.URL, "ws.url"); err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonConfig)
	}
	cfg = cfg.withDefaults()
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		cfg: cfg,
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.DialTimeout,
			ReadBufferSize:   4096,
			WriteBufferSize:  cfg.ChunkBytes,
		},
		log: log.With("transport", "ws"),
		obs: metrics.OrNoop(opts.Observer),
	}, nil
}

func Factory(settings map[string]any, opts transports.Options) (transports.Transport, error) {
	var cfg Config
	if err := configutil.DecodeWithSchema(settings, settingsSchema, &cfg); err != nil {
		return nil, errorsx.Wrap(fmt.Errorf("ws settings: %w", err), errorsx.ReasonConfig)
	}
	return New(cfg, opts)
}

func (c *Client) Name() string { return "ws" }

func (c *Client) ReadyFields() map[string]any {
	return map[string]any{"url": c.cfg.URL}
}

func (c *Client) PostContent(ctx context.Context, req *request.Request) (*lex.Response, error) {
	start := time.Now()
	resp, err := c.exchange(ctx, req)
	outcome := "ok"
	if err != nil {
		outcome = string(errorsx.Reason(err))
	}
	fields := map[string]any{"request_id": req.ID}
	if resp != nil {
		fields["audio_bytes"] = len(resp.Audio)
	}
	c.obs.RecordEvent(metrics.MetricsEvent{
		Name:   metrics.EventTransportRequest,
		Time:   time.Now(),
		Value:  time.Since(start).Seconds(),
		Tags:   map[string]string{metrics.TagTransport: c.Name(), metrics.TagOutcome: outcome},
		Fields: fields,
	})
	return resp, err
}

func (c *Client) exchange(ctx context.Context, req *request.Request) (*lex.Response, error) {
	header := http.Header{}
	if c.cfg.AuthToken != "" {
		header.Set("Authorization", "Bearer "+c.cfg.AuthToken)
	}
	conn, _, err := c.dialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		return nil, errorsx.Wrap(fmt.Errorf("ws: dial: %w", err), errorsx.ReasonTransportConnect)
	}
	defer conn.Close()

	// Closing the socket unblocks any pending read or write on cancellation.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	env := Envelope{
		Type:              TypeRequest,
		RequestID:         req.ID,
		Bot:               req.BotName,
		Alias:             req.BotAlias,
		UserID:            req.UserID,
		ContentType:       req.ContentType,
		Accept:            req.Accept,
		SessionAttributes: req.SessionAttributes,
		RequestAttributes: req.RequestAttributes,
	}
	if req.RequestMode == lex.ModeText {
		env.Text = req.Text()
	}
	if err := conn.WriteJSON(env); err != nil {
		return nil, c.sendErr(ctx, err)
	}
	if req.RequestMode == lex.ModeAudio {
		if err := c.streamAudio(conn, req.Body()); err != nil {
			return nil, c.sendErr(ctx, err)
		}
	}
	if err := conn.WriteJSON(Envelope{Type: TypeEnd, RequestID: req.ID}); err != nil {
		return nil, c.sendErr(ctx, err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(c.cfg.ReplyTimeout))
	var reply Envelope
	if err := conn.ReadJSON(&reply); err != nil {
		return nil, c.sendErr(ctx, fmt.Errorf("read reply: %w", err))
	}
	switch reply.Type {
	case TypeResponse:
		if reply.Response == nil {
			return nil, errorsx.Wrap(lex.ErrEmptyResponse, errorsx.ReasonTransportStatus)
		}
		return decode(reply.Response)
	case TypeError:
		return nil, errorsx.New(errorsx.ReasonTransportStatus, "ws: gateway error: "+reply.Error)
	default:
		return nil, errorsx.New(errorsx.ReasonTransportStatus, "ws: unexpected reply type "+reply.Type)
	}
}

func (c *Client) streamAudio(conn *websocket.Conn, body io.Reader) error {
	if body == nil {
		return errors.New("audio body is nil")
	}
	buf := make([]byte, c.cfg.ChunkBytes)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			if werr := conn.WriteMessage(websocket.BinaryMessage, buf[:n]); werr != nil {
				return werr
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read audio: %w", err)
		}
	}
}

func (c *Client) sendErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return errorsx.Wrap(ctxErr, errorsx.ReasonTransportSend)
	}
	return errorsx.Wrap(fmt.Errorf("ws: %w", err), errorsx.ReasonTransportSend)
}

func decode(w *WireResponse) (*lex.Response, error) {
	out := &lex.Response{
		DialogState:       lex.DialogState(w.DialogState),
		IntentName:        w.IntentName,
		Slots:             w.Slots,
		SlotToElicit:      w.SlotToElicit,
		Message:           w.Message,
		MessageFormat:     w.MessageFormat,
		InputTranscript:   w.InputTranscript,
		SessionAttributes: w.SessionAttributes,
		AudioContentType:  w.AudioContentType,
	}
	if w.AudioB64 != "" {
		audio, err := base64.StdEncoding.DecodeString(w.AudioB64)
		if err != nil {
			return nil, errorsx.Wrap(fmt.Errorf("ws: decode audio: %w", err), errorsx.ReasonTransportStatus)
		}
		out.Audio = audio
	}
	return out, nil
}
