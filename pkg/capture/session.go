// Package capture drives one utterance from an audio source through voice
// activity detection and encoding into a byte stream.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/harunnryd/lexturn/pkg/encoder"
	"github.com/harunnryd/lexturn/pkg/errorsx"
	"github.com/harunnryd/lexturn/pkg/metrics"
	"github.com/harunnryd/lexturn/pkg/vad"
)

// ErrNoSpeech is returned when no startpoint is reached in time.
var ErrNoSpeech = errors.New("capture: no speech detected")

// End reasons reported in Result.
const (
	EndEndpointed = "endpointed"
	EndMaxSpeech  = "max_speech"
	EndSourceEOF  = "source_eof"
)

type Config struct {
	SampleRate int `mapstructure:"sample_rate"`
	// ChunkSize is the number of samples read from the source per step.
	ChunkSize         int           `mapstructure:"chunk_size"`
	NoSpeechTimeout   time.Duration `mapstructure:"no_speech_timeout"`
	MaxSpeechDuration time.Duration `mapstructure:"max_speech_duration"`
}

func DefaultConfig() Config {
	return Config{
		SampleRate:        16000,
		ChunkSize:         320,
		NoSpeechTimeout:   5 * time.Second,
		MaxSpeechDuration: 15 * time.Second,
	}
}

func (c Config) Validate() error {
	if c.SampleRate <= 0 {
		return errorsx.New(errorsx.ReasonInvalidParameter, "capture: sample_rate must be positive")
	}
	if c.ChunkSize <= 0 {
		return errorsx.New(errorsx.ReasonInvalidParameter, "capture: chunk_size must be positive")
	}
	if c.NoSpeechTimeout < 0 || c.MaxSpeechDuration < 0 {
		return errorsx.New(errorsx.ReasonInvalidParameter, "capture: durations must not be negative")
	}
	return nil
}

func (c Config) samplesFor(d time.Duration) int {
	return int(d * time.Duration(c.SampleRate) / time.Second)
}

type Options struct {
	Observer metrics.Observer
	Logger   *slog.Logger
	Tags     map[string]string
}

// Result summarises a finished capture.
type Result struct {
	State     vad.State
	Samples   int
	Bytes     int
	EndReason string
	// SpeechStart is the sample offset at which the startpoint was reached, or -1.
	SpeechStart int
}

// Duration is the amount of audio consumed, derived from the sample count.
func (r Result) Duration(sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(r.Samples) * time.Second / time.Duration(sampleRate)
}

// Session owns a detector and an encoder for a single utterance.
type Session struct {
	cfg      Config
	detector vad.Detector
	enc      *encoder.BufferedEncoder
	obs      metrics.Observer
	log      *slog.Logger
	tags     map[string]string
}

func NewSession(cfg Config, detector vad.Detector, enc *encoder.BufferedEncoder, opts Options) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if detector == nil || enc == nil {
		return nil, errorsx.New(errorsx.ReasonInvalidParameter, "capture: detector and encoder are required")
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Session{
		cfg:      cfg,
		detector: detector,
		enc:      enc,
		obs:      metrics.OrNoop(opts.Observer),
		log:      log,
		tags:     opts.Tags,
	}, nil
}

// ContentType is the MIME type of the bytes Run writes.
func (s *Session) ContentType() string { return s.enc.ContentType() }

// Close releases the detector of a session that will not be Run. Run closes
// it itself.
func (s *Session) Close() error { return s.detector.Close() }

// Run reads src until the utterance ends and writes encoded audio to w. The
// detector is closed when Run returns.
func (s *Session) Run(ctx context.Context, src Source, w io.Writer) (Result, error) {
	defer s.detector.Close()

	res := Result{State: vad.StateNotStartpointed, SpeechStart: -1}
	noSpeech := s.cfg.samplesFor(s.cfg.NoSpeechTimeout)
	maxSpeech := s.cfg.samplesFor(s.cfg.MaxSpeechDuration)
	buf := make([]int16, s.cfg.ChunkSize)

	for res.EndReason == "" {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		n, rerr := src.ReadSamples(ctx, buf)
		if n > 0 {
			if err := s.step(buf[:n], w, &res); err != nil {
				return res, err
			}
			switch {
			case res.State == vad.StateEndpointed:
				res.EndReason = EndEndpointed
			case res.SpeechStart >= 0 && maxSpeech > 0 && res.Samples-res.SpeechStart >= maxSpeech:
				res.EndReason = EndMaxSpeech
			case res.SpeechStart < 0 && noSpeech > 0 && res.Samples >= noSpeech:
				s.log.Info("capture_no_speech", "samples", res.Samples)
				return res, errorsx.Wrap(ErrNoSpeech, errorsx.ReasonCaptureTimeout)
			}
			if res.EndReason != "" {
				break
			}
		}
		if rerr == nil {
			continue
		}
		if errors.Is(rerr, io.EOF) {
			if res.SpeechStart < 0 {
				return res, errorsx.Wrap(ErrNoSpeech, errorsx.ReasonCaptureTimeout)
			}
			res.EndReason = EndSourceEOF
			break
		}
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		return res, errorsx.Wrap(fmt.Errorf("capture: read source: %w", rerr), errorsx.ReasonCaptureSource)
	}

	tail, err := s.enc.Flush()
	if err != nil {
		return res, err
	}
	if err := s.write(w, tail, &res); err != nil {
		return res, err
	}

	s.log.Info("capture_"+res.EndReason, "samples", res.Samples, "bytes", res.Bytes)
	tags := s.withTags(metrics.TagOutcome, res.EndReason)
	s.obs.RecordEvent(metrics.MetricsEvent{
		Name:  metrics.EventCaptureDone,
		Time:  time.Now(),
		Value: res.Duration(s.cfg.SampleRate).Seconds(),
		Tags:  tags,
		Fields: map[string]any{
			"samples":      res.Samples,
			"bytes":        res.Bytes,
			"speech_start": res.SpeechStart,
		},
	})
	return res, nil
}

// step feeds one chunk to the detector and then the encoder.
func (s *Session) step(chunk []int16, w io.Writer, res *Result) error {
	state, err := s.detector.ProcessSamples(chunk, len(chunk))
	if err != nil {
		return err
	}
	out, err := s.enc.Encode(chunk, len(chunk))
	if err != nil {
		return err
	}
	res.Samples += len(chunk)
	if state != vad.StateNotStartpointed && res.SpeechStart < 0 {
		res.SpeechStart = res.Samples
	}
	res.State = state
	metrics.Record(s.obs, metrics.EventSoundLevel, vad.DBFS(vad.RMS(chunk)),
		s.withTags(metrics.TagState, state.String()))
	return s.write(w, out, res)
}

func (s *Session) write(w io.Writer, p []byte, res *Result) error {
	if len(p) == 0 {
		return nil
	}
	n, err := w.Write(p)
	res.Bytes += n
	if err != nil {
		return errorsx.Wrap(fmt.Errorf("capture: write audio: %w", err), errorsx.ReasonTransportSend)
	}
	return nil
}

func (s *Session) withTags(key, value string) map[string]string {
	tags := make(map[string]string, len(s.tags)+2)
	for k, v := range s.tags {
		tags[k] = v
	}
	tags[key] = value
	tags["sample_rate"] = strconv.Itoa(s.cfg.SampleRate)
	return tags
}
