package encoder

import (
	"encoding/binary"
	"fmt"
)

// FrameEncoder turns exactly one frame of PCM samples into wire bytes.
type FrameEncoder interface {
	EncodeFrame(frame []int16) ([]byte, error)
	// FrameSize is the number of samples EncodeFrame expects.
	FrameSize() int
	// ContentType is the MIME type of the produced byte stream.
	ContentType() string
}

// PCM16Encoder packs samples as 16-bit linear PCM in the given byte order.
type PCM16Encoder struct {
	order      binary.ByteOrder
	frameSize  int
	sampleRate int
}

func NewPCM16Encoder(order binary.ByteOrder, frameSize, sampleRate int) (*PCM16Encoder, error) {
	if order == nil {
		return nil, fmt.Errorf("pcm16: byte order is required")
	}
	if frameSize <= 0 {
		return nil, fmt.Errorf("pcm16: frame size must be positive, got %d", frameSize)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("pcm16: sample rate must be positive, got %d", sampleRate)
	}
	return &PCM16Encoder{order: order, frameSize: frameSize, sampleRate: sampleRate}, nil
}

func (e *PCM16Encoder) EncodeFrame(frame []int16) ([]byte, error) {
	if len(frame) != e.frameSize {
		return nil, fmt.Errorf("pcm16: expected %d samples, got %d", e.frameSize, len(frame))
	}
	out := make([]byte, len(frame)*2)
	for i, s := range frame {
		e.order.PutUint16(out[i*2:], uint16(s))
	}
	return out, nil
}

func (e *PCM16Encoder) FrameSize() int { return e.frameSize }

func (e *PCM16Encoder) ContentType() string {
	if e.order == binary.BigEndian {
		return fmt.Sprintf("audio/l16; rate=%d; channels=1", e.sampleRate)
	}
	return fmt.Sprintf("audio/lpcm; sample-rate=%d; sample-size-bits=16; channel-count=1; is-big-endian=false", e.sampleRate)
}

// DecodePCM16 unpacks little- or big-endian 16-bit PCM bytes. A trailing odd byte is ignored.
func DecodePCM16(order binary.ByteOrder, data []byte) []int16 {
	out := make([]int16, len(data)/2)
	for i := range out {
		out[i] = int16(order.Uint16(data[i*2:]))
	}
	return out
}
