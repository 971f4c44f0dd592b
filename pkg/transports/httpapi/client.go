// Package httpapi posts turns to the bot runtime over its REST content endpoint.
package httpapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/harunnryd/lexturn/pkg/configutil"
	"github.com/harunnryd/lexturn/pkg/errorsx"
	"github.com/harunnryd/lexturn/pkg/lex"
	"github.com/harunnryd/lexturn/pkg/metrics"
	"github.com/harunnryd/lexturn/pkg/request"
	"github.com/harunnryd/lexturn/pkg/resilience"
	"github.com/harunnryd/lexturn/pkg/transports"
)

// Header names used by the content endpoint.
const (
	HeaderSessionAttributes = "x-amz-lex-session-attributes"
	HeaderRequestAttributes = "x-amz-lex-request-attributes"
	HeaderDialogState       = "x-amz-lex-dialog-state"
	HeaderIntentName        = "x-amz-lex-intent-name"
	HeaderSlots             = "x-amz-lex-slots"
	HeaderMessage           = "x-amz-lex-message"
	HeaderMessageFormat     = "x-amz-lex-message-format"
	HeaderSlotToElicit      = "x-amz-lex-slot-to-elicit"
	HeaderInputTranscript   = "x-amz-lex-input-transcript"
	HeaderRequestID         = "x-amzn-requestid"
)

// StatusError is returned for any non-2xx reply.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("bot service returned %d", e.StatusCode)
	}
	return fmt.Sprintf("bot service returned %d: %s", e.StatusCode, e.Body)
}

// Signer adds authentication to an outgoing request.
type Signer interface {
	Sign(ctx context.Context, r *http.Request, creds request.Credentials) error
}

// SignerFunc adapts a function to Signer.
type SignerFunc func(ctx context.Context, r *http.Request, creds request.Credentials) error

func (f SignerFunc) Sign(ctx context.Context, r *http.Request, creds request.Credentials) error {
	return f(ctx, r, creds)
}

type Config struct {
	Endpoint         string        `mapstructure:"endpoint"`
	Timeout          time.Duration `mapstructure:"timeout"`
	// MaxRetries of 0 disables retries; unset keeps the default.
	MaxRetries       *int          `mapstructure:"max_retries"`
	RetryBackoff     time.Duration `mapstructure:"retry_backoff"`
	BreakerThreshold int           `mapstructure:"breaker_threshold"`
	BreakerCooldown  time.Duration `mapstructure:"breaker_cooldown"`
}

var settingsSchema = configutil.Schema{
	Required: []string{"endpoint"},
	Optional: []string{"timeout", "max_retries", "retry_backoff", "breaker_threshold", "breaker_cooldown"},
}

// Client is the REST transport.
type Client struct {
	cfg     Config
	base    *url.URL
	http    *http.Client
	retry   resilience.RetryPolicy
	breaker *resilience.CircuitBreaker
	signer  Signer
	creds   request.CredentialsProvider
	log     *slog.Logger
	obs     metrics.Observer
}

var _ transports.Transport = (*Client)(nil)

// Option customises a Client.
type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.http = hc } }

func WithSigner(s Signer) Option { return func(c *Client) { c.signer = s } }

func New(cfg Config, opts transports.Options, options ...Option) (*Client, error) {
	if err := configutil.RequireString(cfg.Endpoint, "httpapi.endpoint"); err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonConfig)
	}
	base, err := url.Parse(strings.TrimRight(cfg.Endpoint, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, errorsx.New(errorsx.ReasonConfig, fmt.Sprintf("httpapi: invalid endpoint %q", cfg.Endpoint))
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	retry := resilience.NewRetryPolicy(configutil.Or(cfg.MaxRetries, -1), cfg.RetryBackoff)
	retry.MaxBackoff = 8 * retry.Backoff
	retry.Retryable = retryable
	c := &Client{
		cfg:     cfg,
		base:    base,
		http:    &http.Client{Timeout: cfg.Timeout},
		retry:   retry,
		breaker: resilience.NewCircuitBreaker(cfg.BreakerThreshold, cfg.BreakerCooldown),
		creds:   opts.Credentials,
		log:     log.With("transport", "httpapi"),
		obs:     metrics.OrNoop(opts.Observer),
	}
	for _, o := range options {
		o(c)
	}
	return c, nil
}

// Factory builds a Client from settings.
func Factory(settings map[string]any, opts transports.Options) (transports.Transport, error) {
	var cfg Config
	if err := configutil.DecodeWithSchema(settings, settingsSchema, &cfg); err != nil {
		return nil, errorsx.Wrap(fmt.Errorf("httpapi settings: %w", err), errorsx.ReasonConfig)
	}
	return New(cfg, opts)
}

func (c *Client) Name() string { return "httpapi" }

func (c *Client) ReadyFields() map[string]any {
	return map[string]any{"endpoint": c.base.String(), "signed": c.signer != nil}
}

// PostContent sends req. Only replayable requests are retried.
func (c *Client) PostContent(ctx context.Context, req *request.Request) (*lex.Response, error) {
	if !c.breaker.Allow() {
		return nil, errorsx.Wrap(resilience.ErrCircuitOpen, errorsx.ReasonTransportCircuitOpen)
	}
	start := time.Now()
	var resp *lex.Response
	send := func(attempt int) error {
		if attempt > 0 && !c.breaker.Allow() {
			return errorsx.Wrap(resilience.ErrCircuitOpen, errorsx.ReasonTransportCircuitOpen)
		}
		r, err := c.post(ctx, req)
		if err != nil {
			c.breaker.OnError(err)
			if attempt < c.retry.MaxRetries && retryable(err) {
				c.log.Warn("transport_retry", "request_id", req.ID, "attempt", attempt, "error", err.Error())
			}
			return err
		}
		c.breaker.OnSuccess()
		resp = r
		return nil
	}
	var err error
	if req.Replayable() {
		err = c.retry.Do(ctx, send)
	} else {
		err = send(c.retry.MaxRetries)
	}
	c.record(req, resp, err, time.Since(start))
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) post(ctx context.Context, req *request.Request) (*lex.Response, error) {
	hr, err := c.newHTTPRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	res, err := c.http.Do(hr)
	if err != nil {
		return nil, errorsx.Wrap(fmt.Errorf("httpapi: send: %w", err), errorsx.ReasonTransportSend)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		serr := &StatusError{StatusCode: res.StatusCode, Body: strings.TrimSpace(string(body))}
		if res.StatusCode == http.StatusTooManyRequests {
			return nil, errorsx.Wrap(resilience.RateLimitError{
				Transport:  "httpapi",
				Message:    serr.Error(),
				RetryAfter: retryAfter(res.Header.Get("Retry-After")),
			}, errorsx.ReasonTransportRateLimit)
		}
		return nil, errorsx.Wrap(serr, errorsx.ReasonTransportStatus)
	}
	return decodeResponse(res)
}

func (c *Client) newHTTPRequest(ctx context.Context, req *request.Request) (*http.Request, error) {
	u := c.base.JoinPath("bot", req.BotName, "alias", req.BotAlias, "user", req.UserID, "content")
	hr, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), req.Body())
	if err != nil {
		return nil, errorsx.Wrap(fmt.Errorf("httpapi: build request: %w", err), errorsx.ReasonTransportSend)
	}
	if !req.Replayable() {
		hr.ContentLength = -1
	}
	hr.Header.Set("Content-Type", req.ContentType)
	hr.Header.Set("Accept", req.Accept)
	if len(req.SessionAttributes) > 0 {
		v, err := encodeAttributes(req.SessionAttributes)
		if err != nil {
			return nil, err
		}
		hr.Header.Set(HeaderSessionAttributes, v)
	}
	if len(req.RequestAttributes) > 0 {
		v, err := encodeAttributes(req.RequestAttributes)
		if err != nil {
			return nil, err
		}
		hr.Header.Set(HeaderRequestAttributes, v)
	}
	if c.signer != nil {
		var creds request.Credentials
		if c.creds != nil {
			creds, err = c.creds.Credentials(ctx)
			if err != nil {
				return nil, errorsx.Wrap(fmt.Errorf("httpapi: credentials: %w", err), errorsx.ReasonTransportConnect)
			}
		}
		if err := c.signer.Sign(ctx, hr, creds); err != nil {
			return nil, errorsx.Wrap(fmt.Errorf("httpapi: sign: %w", err), errorsx.ReasonTransportConnect)
		}
	}
	return hr, nil
}

func (c *Client) record(req *request.Request, resp *lex.Response, err error, elapsed time.Duration) {
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
		Value:  elapsed.Seconds(),
		Tags:   map[string]string{metrics.TagTransport: c.Name(), metrics.TagOutcome: outcome},
		Fields: fields,
	})
}

func decodeResponse(res *http.Response) (*lex.Response, error) {
	h := res.Header
	out := &lex.Response{
		RequestID:       h.Get(HeaderRequestID),
		DialogState:     lex.DialogState(h.Get(HeaderDialogState)),
		IntentName:      h.Get(HeaderIntentName),
		Message:         h.Get(HeaderMessage),
		MessageFormat:   h.Get(HeaderMessageFormat),
		SlotToElicit:    h.Get(HeaderSlotToElicit),
		InputTranscript: h.Get(HeaderInputTranscript),
	}
	var err error
	if out.Slots, err = decodeAttributes(h.Get(HeaderSlots)); err != nil {
		return nil, err
	}
	if out.SessionAttributes, err = decodeAttributes(h.Get(HeaderSessionAttributes)); err != nil {
		return nil, err
	}
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, errorsx.Wrap(fmt.Errorf("httpapi: read body: %w", err), errorsx.ReasonTransportSend)
	}
	if len(body) > 0 {
		out.Audio = body
		out.AudioContentType = h.Get("Content-Type")
	}
	return out, nil
}

func encodeAttributes(attrs map[string]string) (string, error) {
	b, err := json.Marshal(attrs)
	if err != nil {
		return "", errorsx.Wrap(fmt.Errorf("httpapi: encode attributes: %w", err), errorsx.ReasonInvalidParameter)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// decodeAttributes reads a base64 JSON object. Null slot values become empty strings.
func decodeAttributes(v string) (map[string]string, error) {
	if v == "" {
		return nil, nil
	}
	raw, err := base64.StdEncoding.DecodeString(v)
	if err != nil {
		return nil, errorsx.Wrap(fmt.Errorf("httpapi: decode header: %w", err), errorsx.ReasonTransportStatus)
	}
	var m map[string]*string
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, errorsx.Wrap(fmt.Errorf("httpapi: decode header json: %w", err), errorsx.ReasonTransportStatus)
	}
	out := make(map[string]string, len(m))
	for k, p := range m {
		if p != nil {
			out[k] = *p
		} else {
			out[k] = ""
		}
	}
	return out, nil
}

func retryable(err error) bool {
	if resilience.IsRateLimit(err) {
		return true
	}
	var serr *StatusError
	if errors.As(err, &serr) {
		return serr.StatusCode >= 500
	}
	return errorsx.HasReason(err, errorsx.ReasonTransportSend)
}

func retryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return 0
}
