package vad

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/harunnryd/lexturn/pkg/configutil"
	"github.com/harunnryd/lexturn/pkg/errorsx"
	"github.com/harunnryd/lexturn/pkg/metrics"
)

var (
	// ErrClosed is returned when samples arrive after Close.
	ErrClosed = errors.New("vad: detector closed")
	// ErrProcessing is the root of every classification failure.
	ErrProcessing = errors.New("vad: frame classification failed")
)

// Detector tracks startpoint and endpoint of one utterance.
type Detector interface {
	// ProcessSamples feeds samples[:count] and returns the state after them.
	ProcessSamples(samples []int16, count int) (State, error)
	State() State
	Close() error
}

// Config holds the per-session thresholds. Thresholds count frames of FrameSize samples.
type Config struct {
	FrameSize              int `mapstructure:"frame_size"`
	StartpointingThreshold int `mapstructure:"startpointing_threshold"`
	EndpointingThreshold   int `mapstructure:"endpointing_threshold"`
}

// DefaultConfig uses 10ms frames, 100ms of speech to startpoint and 600ms of
// silence to endpoint.
func DefaultConfig(sampleRate int) Config {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	return Config{
		FrameSize:              sampleRate / 100,
		StartpointingThreshold: 10,
		EndpointingThreshold:   60,
	}
}

func (c Config) Validate() error {
	if err := configutil.RequirePositive(c.FrameSize, "vad.frame_size"); err != nil {
		return errorsx.Wrap(err, errorsx.ReasonInvalidParameter)
	}
	if err := configutil.RequirePositive(c.StartpointingThreshold, "vad.startpointing_threshold"); err != nil {
		return errorsx.Wrap(err, errorsx.ReasonInvalidParameter)
	}
	if err := configutil.RequirePositive(c.EndpointingThreshold, "vad.endpointing_threshold"); err != nil {
		return errorsx.Wrap(err, errorsx.ReasonInvalidParameter)
	}
	return nil
}

// Options carries optional collaborators for a FrameDetector.
type Options struct {
	Observer metrics.Observer
	Logger   *slog.Logger
	// Tags are attached to every emitted event.
	Tags map[string]string
}

// FrameDetector runs the startpoint/endpoint state machine over a Classifier.
type FrameDetector struct {
	mu         sync.Mutex
	cfg        Config
	classifier Classifier

	state           State
	speechFrames    int
	nonSpeechFrames int
	buf             []int16
	frames          int
	failed          error
	closed          bool

	obs  metrics.Observer
	log  *slog.Logger
	tags map[string]string
}

var _ Detector = (*FrameDetector)(nil)

// New creates a detector that owns classifier; Close closes it.
func New(cfg Config, classifier Classifier, opts Options) (*FrameDetector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if classifier == nil {
		return nil, errorsx.New(errorsx.ReasonInvalidParameter, "vad: classifier is required")
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &FrameDetector{
		cfg:        cfg,
		classifier: classifier,
		state:      StateNotStartpointed,
		buf:        make([]int16, 0, cfg.FrameSize),
		obs:        metrics.OrNoop(opts.Observer),
		log:        log,
		tags:       opts.Tags,
	}, nil
}

func (d *FrameDetector) ProcessSamples(samples []int16, count int) (State, error) {
	if count < 0 || count > len(samples) {
		return d.State(), errorsx.New(errorsx.ReasonInvalidParameter,
			fmt.Sprintf("vad: sample count %d outside buffer of %d", count, len(samples)))
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return d.state, errorsx.Wrap(ErrClosed, errorsx.ReasonInvalidParameter)
	}
	if d.failed != nil {
		return d.state, d.failed
	}
	for offset := 0; offset < count && d.state != StateEndpointed; {
		n := min(d.cfg.FrameSize-len(d.buf), count-offset)
		d.buf = append(d.buf, samples[offset:offset+n]...)
		offset += n
		if len(d.buf) < d.cfg.FrameSize {
			break
		}
		cls, err := d.classifier.Classify(d.buf)
		d.buf = d.buf[:0]
		d.frames++
		if err == nil && cls != ClassSpeech && cls != ClassNonSpeech {
			err = fmt.Errorf("classifier returned %d", int(cls))
		}
		if err != nil {
			d.failed = errorsx.Wrap(fmt.Errorf("%w at frame %d: %w", ErrProcessing, d.frames, err), errorsx.ReasonVADProcess)
			d.log.Error("vad_process_failed", "frame", d.frames, "error", err.Error(),
				"reason_code", string(errorsx.ReasonVADProcess))
			return d.state, d.failed
		}
		d.apply(cls)
	}
	return d.state, nil
}

// apply updates the counters and advances the state machine (lock held).
func (d *FrameDetector) apply(cls Classification) {
	if cls == ClassSpeech {
		d.speechFrames++
		d.nonSpeechFrames = 0
	} else {
		d.nonSpeechFrames++
		d.speechFrames = 0
	}
	switch d.state {
	case StateNotStartpointed:
		if d.speechFrames >= d.cfg.StartpointingThreshold {
			d.transition(StateStartpointed, metrics.EventVADStartpoint)
		}
	case StateStartpointed:
		if d.nonSpeechFrames >= d.cfg.EndpointingThreshold {
			d.transition(StateEndpointed, metrics.EventVADEndpoint)
		}
	}
}

func (d *FrameDetector) transition(to State, event string) {
	from := d.state
	d.state = to
	d.log.Debug("vad_state", "from", from.String(), "to", to.String(), "frame", d.frames)
	tags := make(map[string]string, len(d.tags)+1)
	for k, v := range d.tags {
		tags[k] = v
	}
	tags[metrics.TagState] = to.String()
	tags["frame"] = strconv.Itoa(d.frames)
	metrics.Record(d.obs, event, float64(d.frames), tags)
}

func (d *FrameDetector) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Counters returns the consecutive speech and non-speech frame counts.
func (d *FrameDetector) Counters() (speech, nonSpeech int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.speechFrames, d.nonSpeechFrames
}

// Frames returns how many frames have been classified.
func (d *FrameDetector) Frames() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.frames
}

// Buffered returns the number of samples waiting for a full frame.
func (d *FrameDetector) Buffered() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.buf)
}

// Close releases the classifier. Safe to call more than once.
func (d *FrameDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	d.buf = nil
	return d.classifier.Close()
}
