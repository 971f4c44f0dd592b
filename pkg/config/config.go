// Package config loads the lexturn configuration file.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/harunnryd/lexturn/pkg/configutil"
	"github.com/harunnryd/lexturn/pkg/errorsx"
	"github.com/harunnryd/lexturn/pkg/interaction"
	"github.com/harunnryd/lexturn/pkg/request"
)

type Config struct {
	Environment   string              `mapstructure:"environment"`
	LogLevel      string              `mapstructure:"log_level"`
	LogFormat     string              `mapstructure:"log_format"`
	Bot           request.BotConfig   `mapstructure:"bot"`
	Credentials   CredentialsConfig   `mapstructure:"credentials"`
	Transports    TransportsConfig    `mapstructure:"transports"`
	Interaction   interaction.Config  `mapstructure:"interaction"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Privacy       PrivacyConfig       `mapstructure:"privacy"`
	Twilio        TwilioConfig        `mapstructure:"twilio"`
}

// CredentialsConfig holds static keys. IdentityID, when set, also serves as
// the bot user id if bot.user_id is empty.
type CredentialsConfig struct {
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	SessionToken    string `mapstructure:"session_token"`
	IdentityID      string `mapstructure:"identity_id"`
}

type TransportsConfig struct {
	Provider string         `mapstructure:"provider"`
	Settings map[string]any `mapstructure:"settings"`
}

type ObservabilityConfig struct {
	TimelineDir   string   `mapstructure:"timeline_dir"`
	UsageDir      string   `mapstructure:"usage_dir"`
	RetentionDays int      `mapstructure:"retention_days"`
	MetricsAddr   string   `mapstructure:"metrics_addr"`
	AsyncBuffer   int      `mapstructure:"async_buffer"`
	SampleRate    float64  `mapstructure:"sample_rate"`
	SampledEvents []string `mapstructure:"sampled_events"`
}

type PrivacyConfig struct {
	RedactPII bool `mapstructure:"redact_pii"`
}

// TwilioConfig is only read by the serve and dial commands.
type TwilioConfig struct {
	Settings map[string]any `mapstructure:"settings"`
	// From is the caller id for outbound calls.
	From string `mapstructure:"from"`
}

// Retention converts RetentionDays; zero disables purging.
func (o ObservabilityConfig) Retention() time.Duration {
	if o.RetentionDays <= 0 {
		return 0
	}
	return time.Duration(o.RetentionDays) * 24 * time.Hour
}

// Provider builds the credentials provider the request builder signs with.
func (c CredentialsConfig) Provider() request.CredentialsProvider {
	keys := request.Credentials{
		AccessKeyID:     c.AccessKeyID,
		SecretAccessKey: c.SecretAccessKey,
		SessionToken:    c.SessionToken,
	}
	if c.IdentityID != "" {
		return request.StaticIdentity{Keys: keys, ID: c.IdentityID}
	}
	if keys == (request.Credentials{}) {
		return nil
	}
	return request.StaticCredentials(keys)
}

// LoadConfig reads path, overlays LEXTURN_* environment variables on known
// keys, expands ${VAR} references in every string value and validates.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("lexturn")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, errorsx.Wrapf(err, errorsx.ReasonConfig, "read config")
	}
	tree, _ := expandEnv(v.AllSettings()).(map[string]any)

	var cfg Config
	if err := configutil.DecodeSettings(tree, &cfg); err != nil {
		return Config{}, errorsx.Wrapf(err, errorsx.ReasonConfig, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, errorsx.Wrapf(err, errorsx.ReasonConfig, "validate config")
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := interaction.DefaultConfig()
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("privacy.redact_pii", true)
	v.SetDefault("bot.audio_accept", request.DefaultAudioAccept)
	v.SetDefault("transports.provider", "httpapi")
	v.SetDefault("interaction.classifier", d.Classifier)
	v.SetDefault("interaction.turn_timeout", "30s")
	v.SetDefault("interaction.capture.sample_rate", d.Capture.SampleRate)
	v.SetDefault("interaction.capture.chunk_size", d.Capture.ChunkSize)
	v.SetDefault("interaction.capture.no_speech_timeout", d.Capture.NoSpeechTimeout.String())
	v.SetDefault("interaction.capture.max_speech_duration", d.Capture.MaxSpeechDuration.String())
	v.SetDefault("interaction.vad.frame_size", d.VAD.FrameSize)
	v.SetDefault("interaction.vad.startpointing_threshold", d.VAD.StartpointingThreshold)
	v.SetDefault("interaction.vad.endpointing_threshold", d.VAD.EndpointingThreshold)
	v.SetDefault("interaction.encoder.format", d.Encoder.Format)
	v.SetDefault("observability.async_buffer", 1024)
	v.SetDefault("observability.sample_rate", 1.0)
	v.SetDefault("observability.retention_days", 0)
}

func (c *Config) Validate() error {
	if err := c.Bot.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(c.Transports.Provider) == "" {
		return fmt.Errorf("transports.provider is required")
	}
	if c.Observability.SampleRate < 0 || c.Observability.SampleRate > 1 {
		return fmt.Errorf("observability.sample_rate must be within [0,1]")
	}
	if err := c.Interaction.Capture.Validate(); err != nil {
		return err
	}
	return c.Interaction.VAD.Validate()
}

// expandEnv walks a decoded config tree and expands ${VAR} in strings.
func expandEnv(node any) any {
	switch n := node.(type) {
	case string:
		return os.ExpandEnv(n)
	case map[string]any:
		for k, v := range n {
			n[k] = expandEnv(v)
		}
	case []any:
		for i, v := range n {
			n[i] = expandEnv(v)
		}
	case []string:
		for i, v := range n {
			n[i] = os.ExpandEnv(v)
		}
	case map[string]string:
		for k, v := range n {
			n[k] = os.ExpandEnv(v)
		}
	}
	return node
}
