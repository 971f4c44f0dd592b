package encoder

import (
	"fmt"

	"github.com/harunnryd/lexturn/pkg/errorsx"
)

// BufferedEncoder accepts sample buffers of any length and hands complete
// frames to a FrameEncoder. Samples that do not complete a frame stay pending
// until the next call. A BufferedEncoder belongs to one audio stream.
type BufferedEncoder struct {
	base    FrameEncoder
	cfg     Config
	pending []int16
}

// NewBufferedEncoder wraps base. cfg is remembered so NewEncoder can build siblings.
func NewBufferedEncoder(base FrameEncoder, cfg Config) (*BufferedEncoder, error) {
	if base == nil {
		return nil, errorsx.New(errorsx.ReasonInvalidParameter, "encoder: frame encoder is required")
	}
	if base.FrameSize() <= 0 {
		return nil, errorsx.New(errorsx.ReasonInvalidParameter, "encoder: frame size must be positive")
	}
	return &BufferedEncoder{
		base:    base,
		cfg:     cfg,
		pending: make([]int16, 0, base.FrameSize()),
	}, nil
}

// Encode consumes samples[:count] and returns the bytes of every frame completed
// by this call, in order. Fewer samples than a frame yield no bytes.
func (b *BufferedEncoder) Encode(samples []int16, count int) ([]byte, error) {
	if count < 0 || count > len(samples) {
		return nil, errorsx.New(errorsx.ReasonInvalidParameter,
			fmt.Sprintf("encoder: sample count %d outside buffer of %d", count, len(samples)))
	}
	frameSize := b.base.FrameSize()
	var out []byte
	for offset := 0; offset < count; {
		n := min(frameSize-len(b.pending), count-offset)
		b.pending = append(b.pending, samples[offset:offset+n]...)
		offset += n
		if len(b.pending) < frameSize {
			break
		}
		encoded, err := b.base.EncodeFrame(b.pending)
		if err != nil {
			b.pending = b.pending[:0]
			return out, errorsx.Wrap(fmt.Errorf("encode frame: %w", err), errorsx.ReasonEncode)
		}
		out = append(out, encoded...)
		b.pending = b.pending[:0]
	}
	return out, nil
}

// Flush encodes the pending partial frame padded with silence. It returns nil
// when nothing is pending.
func (b *BufferedEncoder) Flush() ([]byte, error) {
	if len(b.pending) == 0 {
		return nil, nil
	}
	frame := make([]int16, b.base.FrameSize())
	copy(frame, b.pending)
	b.pending = b.pending[:0]
	encoded, err := b.base.EncodeFrame(frame)
	if err != nil {
		return nil, errorsx.Wrap(fmt.Errorf("flush frame: %w", err), errorsx.ReasonEncode)
	}
	return encoded, nil
}

// Reset drops pending samples.
func (b *BufferedEncoder) Reset() {
	b.pending = b.pending[:0]
}

// Pending reports how many samples are waiting for a complete frame.
func (b *BufferedEncoder) Pending() int { return len(b.pending) }

func (b *BufferedEncoder) FrameSize() int { return b.base.FrameSize() }

func (b *BufferedEncoder) ContentType() string { return b.base.ContentType() }

// Config returns the configuration the encoder was built from.
func (b *BufferedEncoder) Config() Config { return b.cfg }

// NewEncoder returns a fresh encoder with the same configuration and nothing pending.
func (b *BufferedEncoder) NewEncoder() (*BufferedEncoder, error) {
	return NewEncoder(b.cfg)
}
