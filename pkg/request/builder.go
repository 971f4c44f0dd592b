package request

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/harunnryd/lexturn/pkg/configutil"
	"github.com/harunnryd/lexturn/pkg/errorsx"
	"github.com/harunnryd/lexturn/pkg/lex"
)

const (
	ContentTypeText    = "text/plain; charset=utf-8"
	DefaultAudioAccept = "audio/pcm"
)

// ErrNoUserID is returned when no user id is configured and the credentials
// provider cannot supply an identity id.
var ErrNoUserID = errors.New("request: no user id configured and credentials provider is not identity based")

// BotConfig identifies the bot a conversation talks to.
type BotConfig struct {
	Name   string `mapstructure:"name"`
	Alias  string `mapstructure:"alias"`
	UserID string `mapstructure:"user_id"`
	// GlobalSessionAttributes are sent with every turn; per-turn attributes win on collision.
	GlobalSessionAttributes map[string]string `mapstructure:"global_session_attributes"`
	// AudioAccept is the Accept type for audio responses.
	AudioAccept string `mapstructure:"audio_accept"`
}

func (c BotConfig) Validate() error {
	if err := configutil.RequireString(c.Name, "bot.name"); err != nil {
		return errorsx.Wrap(err, errorsx.ReasonInvalidParameter)
	}
	if err := configutil.RequireString(c.Alias, "bot.alias"); err != nil {
		return errorsx.Wrap(err, errorsx.ReasonInvalidParameter)
	}
	return nil
}

// Request is one outbound turn. It holds no connection state.
type Request struct {
	ID                string
	BotName           string
	BotAlias          string
	UserID            string
	SessionAttributes map[string]string
	RequestAttributes map[string]string
	RequestMode       lex.Mode
	ResponseMode      lex.Mode
	ContentType       string
	Accept            string

	text  []byte
	audio io.Reader
}

// Body returns the payload. Text payloads can be read again on every call;
// audio payloads are a one-shot stream.
func (r *Request) Body() io.Reader {
	if r.RequestMode == lex.ModeText {
		return strings.NewReader(string(r.text))
	}
	return r.audio
}

// Text returns the UTF-8 input of a text request.
func (r *Request) Text() string { return string(r.text) }

// Replayable reports whether the request can be sent more than once.
func (r *Request) Replayable() bool { return r.RequestMode == lex.ModeText }

// Builder assembles requests for one bot.
type Builder struct {
	cfg   BotConfig
	creds CredentialsProvider
}

func NewBuilder(cfg BotConfig, creds CredentialsProvider) (*Builder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.AudioAccept) == "" {
		cfg.AudioAccept = DefaultAudioAccept
	}
	return &Builder{cfg: cfg, creds: creds}, nil
}

// Config returns the bot configuration.
func (b *Builder) Config() BotConfig { return b.cfg }

// MergeAttributes overlays turn on global into a new map.
func MergeAttributes(global, turn map[string]string) map[string]string {
	out := make(map[string]string, len(global)+len(turn))
	for k, v := range global {
		out[k] = v
	}
	for k, v := range turn {
		out[k] = v
	}
	return out
}

// ResolveUserID prefers the configured user id, then the identity id of an
// identity-based credentials provider.
func (b *Builder) ResolveUserID(ctx context.Context) (string, error) {
	if id := strings.TrimSpace(b.cfg.UserID); id != "" {
		return id, nil
	}
	ip, ok := b.creds.(IdentityProvider)
	if !ok {
		return "", errorsx.Wrap(ErrNoUserID, errorsx.ReasonInvalidParameter)
	}
	id, err := ip.IdentityID(ctx)
	if err != nil {
		return "", errorsx.Wrap(fmt.Errorf("resolve identity id: %w", err), errorsx.ReasonInvalidParameter)
	}
	return id, nil
}

// Accept returns the response MIME type for mode.
func (b *Builder) Accept(mode lex.Mode) string {
	if mode == lex.ModeAudio {
		return b.cfg.AudioAccept
	}
	return ContentTypeText
}

// BuildText prepares a text-in request.
func (b *Builder) BuildText(ctx context.Context, text string, responseMode lex.Mode, sessionAttributes, requestAttributes map[string]string) (*Request, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errorsx.New(errorsx.ReasonInvalidParameter, "request: text input is empty")
	}
	req, err := b.base(ctx, lex.ModeText, responseMode, sessionAttributes, requestAttributes)
	if err != nil {
		return nil, err
	}
	req.ContentType = ContentTypeText
	req.text = []byte(text)
	return req, nil
}

// BuildAudio prepares an audio-in request streaming body with contentType.
func (b *Builder) BuildAudio(ctx context.Context, body io.Reader, contentType string, responseMode lex.Mode, sessionAttributes, requestAttributes map[string]string) (*Request, error) {
	if body == nil {
		return nil, errorsx.New(errorsx.ReasonInvalidParameter, "request: audio body is nil")
	}
	if strings.TrimSpace(contentType) == "" {
		return nil, errorsx.New(errorsx.ReasonInvalidParameter, "request: audio content type is empty")
	}
	req, err := b.base(ctx, lex.ModeAudio, responseMode, sessionAttributes, requestAttributes)
	if err != nil {
		return nil, err
	}
	req.ContentType = contentType
	req.audio = body
	return req, nil
}

func (b *Builder) base(ctx context.Context, requestMode, responseMode lex.Mode, sessionAttributes, requestAttributes map[string]string) (*Request, error) {
	userID, err := b.ResolveUserID(ctx)
	if err != nil {
		return nil, err
	}
	return &Request{
		ID:                uuid.NewString(),
		BotName:           b.cfg.Name,
		BotAlias:          b.cfg.Alias,
		UserID:            userID,
		SessionAttributes: MergeAttributes(b.cfg.GlobalSessionAttributes, sessionAttributes),
		RequestAttributes: MergeAttributes(nil, requestAttributes),
		RequestMode:       requestMode,
		ResponseMode:      responseMode,
		Accept:            b.Accept(responseMode),
	}, nil
}
