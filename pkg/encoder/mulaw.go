package encoder

import "fmt"

const (
	muLawBias = 0x84
	muLawClip = 32635
)

// MuLawEncoder encodes G.711 mu-law, one byte per sample. Telephony media
// streams carry this format at 8 kHz.
type MuLawEncoder struct {
	frameSize int
}

func NewMuLawEncoder(frameSize int) (*MuLawEncoder, error) {
	if frameSize <= 0 {
		return nil, fmt.Errorf("mulaw: frame size must be positive, got %d", frameSize)
	}
	return &MuLawEncoder{frameSize: frameSize}, nil
}

func (e *MuLawEncoder) EncodeFrame(frame []int16) ([]byte, error) {
	if len(frame) != e.frameSize {
		return nil, fmt.Errorf("mulaw: expected %d samples, got %d", e.frameSize, len(frame))
	}
	out := make([]byte, len(frame))
	for i, s := range frame {
		out[i] = MuLawEncodeSample(s)
	}
	return out, nil
}

func (e *MuLawEncoder) FrameSize() int { return e.frameSize }

func (e *MuLawEncoder) ContentType() string { return "audio/x-mulaw" }

// MuLawEncodeSample compresses one linear sample.
func MuLawEncodeSample(sample int16) byte {
	s := int(sample)
	sign := 0
	if s < 0 {
		s = -s
		sign = 0x80
	}
	if s > muLawClip {
		s = muLawClip
	}
	s += muLawBias
	exponent := 7
	for mask := 0x4000; s&mask == 0 && exponent > 0; mask >>= 1 {
		exponent--
	}
	mantissa := (s >> (exponent + 3)) & 0x0F
	return ^byte(sign | exponent<<4 | mantissa)
}

// MuLawDecodeSample expands one mu-law byte to linear PCM.
func MuLawDecodeSample(b byte) int16 {
	u := ^b
	sign := u & 0x80
	exponent := int(u>>4) & 0x07
	mantissa := int(u & 0x0F)
	s := ((mantissa << 3) + muLawBias) << exponent
	s -= muLawBias
	if sign != 0 {
		return int16(-s)
	}
	return int16(s)
}

// DecodeMuLaw expands a mu-law payload.
func DecodeMuLaw(data []byte) []int16 {
	out := make([]int16, len(data))
	for i, b := range data {
		out[i] = MuLawDecodeSample(b)
	}
	return out
}
