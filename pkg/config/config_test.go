package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/harunnryd/lexturn/pkg/errorsx"
	"github.com/harunnryd/lexturn/pkg/request"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigDefaultsAndEnv(t *testing.T) {
	t.Setenv("LEX_ENDPOINT", "https://runtime.example.test")
	t.Setenv("LEX_SECRET", "s3cr3t")
	path := writeConfig(t, `
bot:
  name: BookTrip
  alias: prod
  global_session_attributes:
    channel: ${LEX_CHANNEL_UNSET}phone
credentials:
  access_key_id: AKIA
  secret_access_key: ${LEX_SECRET}
transports:
  provider: httpapi
  settings:
    endpoint: ${LEX_ENDPOINT}
interaction:
  capture:
    no_speech_timeout: 3s
observability:
  retention_days: 2
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Credentials.SecretAccessKey != "s3cr3t" {
		t.Fatalf("env not expanded: %q", cfg.Credentials.SecretAccessKey)
	}
	if cfg.Transports.Settings["endpoint"] != "https://runtime.example.test" {
		t.Fatalf("settings not expanded: %v", cfg.Transports.Settings)
	}
	if cfg.Bot.GlobalSessionAttributes["channel"] != "phone" {
		t.Fatalf("map values not expanded: %v", cfg.Bot.GlobalSessionAttributes)
	}
	if cfg.Interaction.Capture.NoSpeechTimeout != 3*time.Second {
		t.Fatalf("duration not decoded: %v", cfg.Interaction.Capture.NoSpeechTimeout)
	}
	if cfg.Interaction.Capture.SampleRate != 16000 || cfg.Interaction.VAD.EndpointingThreshold != 60 {
		t.Fatalf("defaults not applied: %+v", cfg.Interaction)
	}
	if cfg.Interaction.TurnTimeout != 30*time.Second || cfg.Interaction.Classifier != "energy" {
		t.Fatalf("interaction defaults not applied: %+v", cfg.Interaction)
	}
	if cfg.LogLevel != "info" || !cfg.Privacy.RedactPII || cfg.Bot.AudioAccept != request.DefaultAudioAccept {
		t.Fatalf("top level defaults not applied: %+v", cfg)
	}
	if cfg.Observability.Retention() != 48*time.Hour {
		t.Fatalf("unexpected retention %v", cfg.Observability.Retention())
	}
	if _, ok := cfg.Credentials.Provider().(request.StaticCredentials); !ok {
		t.Fatalf("expected static credentials")
	}
}

func TestLoadConfigRequiresBot(t *testing.T) {
	path := writeConfig(t, "transports:\n  provider: httpapi\n")
	_, err := LoadConfig(path)
	if err == nil {
		t.Fatalf("expected missing bot name to fail")
	}
	if errorsx.Reason(err) != errorsx.ReasonInvalidParameter {
		t.Fatalf("expected inner reason to survive, got %s", errorsx.Reason(err))
	}
}

func TestLoadConfigRejectsSampleRate(t *testing.T) {
	path := writeConfig(t, "bot:\n  name: b\n  alias: a\nobservability:\n  sample_rate: 2\n")
	if _, err := LoadConfig(path); errorsx.Reason(err) != errorsx.ReasonConfig {
		t.Fatalf("expected config error, got %v", err)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected missing file to fail")
	}
}

func TestCredentialsProvider(t *testing.T) {
	if p := (CredentialsConfig{}).Provider(); p != nil {
		t.Fatalf("expected nil provider without keys, got %T", p)
	}
	p := CredentialsConfig{IdentityID: "us-east-1:abc"}.Provider()
	if _, ok := p.(request.StaticIdentity); !ok {
		t.Fatalf("expected identity provider, got %T", p)
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("LEXTURN_LOG_LEVEL", "debug")
	t.Setenv("LEXTURN_BOT_ALIAS", "staging")
	path := writeConfig(t, "bot:\n  name: b\n  alias: prod\n")
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogLevel != "debug" || cfg.Bot.Alias != "staging" {
		t.Fatalf("expected env overrides, got level=%q alias=%q", cfg.LogLevel, cfg.Bot.Alias)
	}
}
