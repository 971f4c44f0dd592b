package request

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/harunnryd/lexturn/pkg/errorsx"
	"github.com/harunnryd/lexturn/pkg/lex"
)

func TestMergeAttributesTurnWins(t *testing.T) {
	global := map[string]string{"a": "1", "b": "2"}
	turn := map[string]string{"b": "3", "c": "4"}
	got := MergeAttributes(global, turn)
	want := map[string]string{"a": "1", "b": "3", "c": "4"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("key %s: expected %q, got %q", k, v, got[k])
		}
	}
	if global["b"] != "2" || len(turn) != 2 {
		t.Fatalf("inputs must not be mutated")
	}
}

func TestResolveUserID(t *testing.T) {
	ctx := context.Background()
	cfg := BotConfig{Name: "BookTrip", Alias: "prod"}

	explicit := cfg
	explicit.UserID = "user-42"
	b, _ := NewBuilder(explicit, StaticIdentity{ID: "us-east-1:abc"})
	if id, err := b.ResolveUserID(ctx); err != nil || id != "user-42" {
		t.Fatalf("expected explicit id, got %q %v", id, err)
	}

	b, _ = NewBuilder(cfg, StaticIdentity{ID: "us-east-1:abc"})
	if id, err := b.ResolveUserID(ctx); err != nil || id != "us-east-1:abc" {
		t.Fatalf("expected identity id, got %q %v", id, err)
	}

	b, _ = NewBuilder(cfg, StaticCredentials{AccessKeyID: "AKIA"})
	_, err := b.ResolveUserID(ctx)
	if !errors.Is(err, ErrNoUserID) || !errorsx.HasReason(err, errorsx.ReasonInvalidParameter) {
		t.Fatalf("expected ErrNoUserID, got %v", err)
	}

	b, _ = NewBuilder(cfg, nil)
	if _, err := b.ResolveUserID(ctx); !errors.Is(err, ErrNoUserID) {
		t.Fatalf("expected ErrNoUserID without provider, got %v", err)
	}

	b, _ = NewBuilder(cfg, StaticIdentity{})
	if _, err := b.ResolveUserID(ctx); err == nil {
		t.Fatalf("expected error when identity id is not assigned")
	}
}

func TestBuildText(t *testing.T) {
	b, err := NewBuilder(BotConfig{
		Name: "BookTrip", Alias: "prod", UserID: "u1",
		GlobalSessionAttributes: map[string]string{"channel": "app", "locale": "en_US"},
	}, nil)
	if err != nil {
		t.Fatalf("new builder: %v", err)
	}
	req, err := b.BuildText(context.Background(), "book a hotel", lex.ModeAudio,
		map[string]string{"locale": "en_GB"}, map[string]string{"trace": "t"})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if req.ContentType != ContentTypeText || req.Accept != DefaultAudioAccept {
		t.Fatalf("unexpected content types %q / %q", req.ContentType, req.Accept)
	}
	if req.SessionAttributes["channel"] != "app" || req.SessionAttributes["locale"] != "en_GB" {
		t.Fatalf("unexpected session attributes %v", req.SessionAttributes)
	}
	if req.RequestAttributes["trace"] != "t" || req.ID == "" || req.UserID != "u1" {
		t.Fatalf("unexpected request %+v", req)
	}
	for i := 0; i < 2; i++ {
		body, _ := io.ReadAll(req.Body())
		if string(body) != "book a hotel" {
			t.Fatalf("read %d: expected replayable text body, got %q", i, body)
		}
	}
	if !req.Replayable() {
		t.Fatalf("text request should be replayable")
	}
	if _, err := b.BuildText(context.Background(), "  ", lex.ModeText, nil, nil); !errorsx.HasReason(err, errorsx.ReasonInvalidParameter) {
		t.Fatalf("expected invalid parameter for empty text, got %v", err)
	}
}

func TestBuildAudio(t *testing.T) {
	b, _ := NewBuilder(BotConfig{Name: "BookTrip", Alias: "prod", UserID: "u1", AudioAccept: "audio/mpeg"}, nil)
	body := strings.NewReader("pcm")
	ct := "audio/lpcm; sample-rate=16000; sample-size-bits=16; channel-count=1; is-big-endian=false"
	req, err := b.BuildAudio(context.Background(), body, ct, lex.ModeText, nil, nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if req.ContentType != ct || req.Accept != ContentTypeText || req.RequestMode != lex.ModeAudio {
		t.Fatalf("unexpected request %+v", req)
	}
	if req.Body() != body || req.Replayable() {
		t.Fatalf("audio body must be the provided stream and not replayable")
	}
	if b.Accept(lex.ModeAudio) != "audio/mpeg" {
		t.Fatalf("expected configured audio accept")
	}
	if _, err := b.BuildAudio(context.Background(), nil, ct, lex.ModeText, nil, nil); err == nil {
		t.Fatalf("expected error for nil body")
	}
}

func TestBotConfigValidate(t *testing.T) {
	if _, err := NewBuilder(BotConfig{Alias: "prod"}, nil); err == nil {
		t.Fatalf("expected bot name required")
	}
	if _, err := NewBuilder(BotConfig{Name: "x"}, nil); err == nil {
		t.Fatalf("expected alias required")
	}
}
