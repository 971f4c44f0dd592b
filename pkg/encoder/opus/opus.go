// Package opus registers the "opus" format with the encoder factory.
// It links libopus through cgo; import it for side effects:
//
//	import _ "github.com/harunnryd/lexturn/pkg/encoder/opus"
package opus

import (
	"fmt"

	"github.com/harunnryd/lexturn/pkg/encoder"
	"gopkg.in/hraban/opus.v2"
)

const defaultBitrate = 64000

func init() {
	encoder.Register(encoder.FormatOpus, func(cfg encoder.Config) (encoder.FrameEncoder, error) {
		return New(cfg.SampleRate, cfg.Channels, cfg.FrameSize, cfg.Bitrate)
	})
}

// Encoder encodes fixed-size PCM frames to constant-bitrate Opus packets.
type Encoder struct {
	enc        *opus.Encoder
	sampleRate int
	channels   int
	frameSize  int
	bitrate    int
	buf        []byte
}

var _ encoder.FrameEncoder = (*Encoder)(nil)

// New creates an Opus encoder. frameSize counts samples across all channels
// and must be a 5, 10, 20, 40 or 60 ms frame.
func New(sampleRate, channels, frameSize, bitrate int) (*Encoder, error) {
	if channels <= 0 {
		channels = 1
	}
	if bitrate <= 0 {
		bitrate = defaultBitrate
	}
	perChannel := frameSize / channels
	if frameSize%channels != 0 || !validFrame(sampleRate, perChannel) {
		return nil, fmt.Errorf("opus: invalid frame of %d samples at %d Hz", frameSize, sampleRate)
	}
	enc, err := opus.NewEncoder(sampleRate, channels, opus.AppVoIP)
	if err != nil {
		return nil, fmt.Errorf("opus: %w", err)
	}
	if err := enc.SetBitrate(bitrate); err != nil {
		return nil, fmt.Errorf("opus: set bitrate: %w", err)
	}
	return &Encoder{
		enc:        enc,
		sampleRate: sampleRate,
		channels:   channels,
		frameSize:  frameSize,
		bitrate:    bitrate,
		buf:        make([]byte, 4000),
	}, nil
}

func (e *Encoder) EncodeFrame(frame []int16) ([]byte, error) {
	if len(frame) != e.frameSize {
		return nil, fmt.Errorf("opus: expected %d samples, got %d", e.frameSize, len(frame))
	}
	n, err := e.enc.Encode(frame, e.buf)
	if err != nil {
		return nil, fmt.Errorf("opus: %w", err)
	}
	out := make([]byte, n)
	copy(out, e.buf[:n])
	return out, nil
}

func (e *Encoder) FrameSize() int { return e.frameSize }

func (e *Encoder) ContentType() string {
	ms := e.frameSize / e.channels * 1000 / e.sampleRate
	return fmt.Sprintf("audio/x-cbr-opus-with-preamble; preamble-size=0; bit-rate=%d; frame-size-milliseconds=%d", e.bitrate, ms)
}

func validFrame(sampleRate, perChannel int) bool {
	switch sampleRate {
	case 8000, 12000, 16000, 24000, 48000:
	default:
		return false
	}
	for _, ms := range []int{5, 10, 20, 40, 60} {
		if perChannel == sampleRate*ms/1000 {
			return true
		}
	}
	return false
}
