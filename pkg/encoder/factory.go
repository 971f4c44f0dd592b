package encoder

import (
	"encoding/binary"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/harunnryd/lexturn/pkg/errorsx"
)

const (
	FormatPCM16LE = "pcm16le"
	FormatPCM16BE = "pcm16be"
	FormatMuLaw   = "mulaw"
	FormatOpus    = "opus"
)

// Config describes an encoder. It is a plain value: every NewEncoder call
// with it produces an independent instance.
type Config struct {
	Format     string `mapstructure:"format"`
	FrameSize  int    `mapstructure:"frame_size"`
	SampleRate int    `mapstructure:"sample_rate"`
	Channels   int    `mapstructure:"channels"`
	Bitrate    int    `mapstructure:"bitrate"`
}

// DefaultConfig is little-endian 16 kHz PCM in 20ms frames.
func DefaultConfig() Config {
	return Config{Format: FormatPCM16LE, FrameSize: 320, SampleRate: 16000, Channels: 1}
}

func (c Config) withDefaults() Config {
	if c.Format == "" {
		c.Format = FormatPCM16LE
	}
	if c.SampleRate <= 0 {
		c.SampleRate = 16000
	}
	if c.FrameSize <= 0 {
		c.FrameSize = c.SampleRate / 50
	}
	if c.Channels <= 0 {
		c.Channels = 1
	}
	c.Format = strings.ToLower(strings.TrimSpace(c.Format))
	return c
}

// Factory builds a FrameEncoder for a format.
type Factory func(cfg Config) (FrameEncoder, error)

var (
	factoriesMu sync.RWMutex
	factories   = map[string]Factory{
		FormatPCM16LE: func(cfg Config) (FrameEncoder, error) {
			return NewPCM16Encoder(binary.LittleEndian, cfg.FrameSize, cfg.SampleRate)
		},
		FormatPCM16BE: func(cfg Config) (FrameEncoder, error) {
			return NewPCM16Encoder(binary.BigEndian, cfg.FrameSize, cfg.SampleRate)
		},
		FormatMuLaw: func(cfg Config) (FrameEncoder, error) {
			return NewMuLawEncoder(cfg.FrameSize)
		},
	}
)

// Register adds a format. Codec packages with native dependencies register
// themselves from init so importing them is enough.
func Register(format string, factory Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[strings.ToLower(strings.TrimSpace(format))] = factory
}

// Formats lists registered formats.
func Formats() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	out := make([]string, 0, len(factories))
	for name := range factories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// NewEncoder builds a buffered encoder with empty pending state.
func NewEncoder(cfg Config) (*BufferedEncoder, error) {
	cfg = cfg.withDefaults()
	factoriesMu.RLock()
	fn := factories[cfg.Format]
	factoriesMu.RUnlock()
	if fn == nil {
		return nil, errorsx.New(errorsx.ReasonInvalidParameter, fmt.Sprintf("encoder format not registered: %s", cfg.Format))
	}
	base, err := fn(cfg)
	if err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonInvalidParameter)
	}
	return NewBufferedEncoder(base, cfg)
}
