package encoder

import (
	"bytes"
	"encoding/binary"
	"errors"
	"strings"
	"testing"

	"github.com/harunnryd/lexturn/pkg/errorsx"
)

func ramp(n int) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(i*37 - 500)
	}
	return out
}

func newLE(t *testing.T, frame int) *BufferedEncoder {
	t.Helper()
	enc, err := NewEncoder(Config{Format: FormatPCM16LE, FrameSize: frame, SampleRate: 16000})
	if err != nil {
		t.Fatalf("new encoder: %v", err)
	}
	return enc
}

func TestPCM16ByteOrder(t *testing.T) {
	le, _ := NewPCM16Encoder(binary.LittleEndian, 2, 8000)
	be, _ := NewPCM16Encoder(binary.BigEndian, 2, 8000)
	frame := []int16{0x0102, -2}
	gotLE, _ := le.EncodeFrame(frame)
	gotBE, _ := be.EncodeFrame(frame)
	if !bytes.Equal(gotLE, []byte{0x02, 0x01, 0xFE, 0xFF}) {
		t.Fatalf("little endian mismatch: % x", gotLE)
	}
	if !bytes.Equal(gotBE, []byte{0x01, 0x02, 0xFF, 0xFE}) {
		t.Fatalf("big endian mismatch: % x", gotBE)
	}
	if _, err := le.EncodeFrame([]int16{1}); err == nil {
		t.Fatalf("expected error for short frame")
	}
	if got := DecodePCM16(binary.LittleEndian, gotLE); got[0] != 0x0102 || got[1] != -2 {
		t.Fatalf("decode mismatch: %v", got)
	}
}

func TestChunkSizeIndependence(t *testing.T) {
	samples := ramp(5 * 160)
	whole, err := newLE(t, 160).Encode(samples, len(samples))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	for _, chunk := range []int{1, 7, 159, 160, 161, 333} {
		enc := newLE(t, 160)
		var got []byte
		for off := 0; off < len(samples); off += chunk {
			end := min(off+chunk, len(samples))
			out, err := enc.Encode(samples[off:end], end-off)
			if err != nil {
				t.Fatalf("chunk %d: %v", chunk, err)
			}
			got = append(got, out...)
		}
		if !bytes.Equal(got, whole) {
			t.Fatalf("chunk size %d produced different output", chunk)
		}
		if enc.Pending() != 0 {
			t.Fatalf("chunk size %d left %d pending", chunk, enc.Pending())
		}
	}
}

func TestPartialFrameBuffers(t *testing.T) {
	samples := ramp(160)
	enc := newLE(t, 160)
	out, err := enc.Encode(samples[:100], 100)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(out) != 0 || enc.Pending() != 100 {
		t.Fatalf("expected no output and 100 pending, got %d bytes and %d pending", len(out), enc.Pending())
	}
	out, err = enc.Encode(samples[100:], 60)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want, _ := newLE(t, 160).Encode(samples, 160)
	if !bytes.Equal(out, want) {
		t.Fatalf("completed frame differs from single-call output")
	}
}

func TestMultipleFramesAndRemainder(t *testing.T) {
	enc := newLE(t, 4)
	out, err := enc.Encode(ramp(11), 11)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(out) != 2*4*2 || enc.Pending() != 3 {
		t.Fatalf("expected two frames and 3 pending, got %d bytes, %d pending", len(out), enc.Pending())
	}
	flushed, err := enc.Flush()
	if err != nil {
		t.Fatalf("flush: %v", err)
	}
	if len(flushed) != 8 || flushed[6] != 0 || flushed[7] != 0 {
		t.Fatalf("expected zero padded final frame, got % x", flushed)
	}
	if again, _ := enc.Flush(); again != nil {
		t.Fatalf("expected empty flush")
	}
}

func TestCountOutOfRange(t *testing.T) {
	enc := newLE(t, 4)
	if _, err := enc.Encode(make([]int16, 2), 3); !errorsx.HasReason(err, errorsx.ReasonInvalidParameter) {
		t.Fatalf("expected invalid parameter, got %v", err)
	}
	if _, err := enc.Encode(make([]int16, 2), -1); err == nil {
		t.Fatalf("expected error for negative count")
	}
}

func TestNewEncoderIsIndependent(t *testing.T) {
	enc := newLE(t, 160)
	_, _ = enc.Encode(ramp(50), 50)
	sibling, err := enc.NewEncoder()
	if err != nil {
		t.Fatalf("new encoder: %v", err)
	}
	if sibling.Pending() != 0 {
		t.Fatalf("expected sibling to start empty")
	}
	if sibling.Config() != enc.Config() || sibling.ContentType() != enc.ContentType() {
		t.Fatalf("expected same configuration")
	}
	_, _ = sibling.Encode(ramp(10), 10)
	if enc.Pending() != 50 {
		t.Fatalf("sibling writes leaked into original")
	}
}

type failing struct{}

func (failing) EncodeFrame([]int16) ([]byte, error) { return nil, errors.New("codec busted") }
func (failing) FrameSize() int                      { return 2 }
func (failing) ContentType() string                 { return "x" }

func TestFrameErrorIsEncodeReason(t *testing.T) {
	enc, err := NewBufferedEncoder(failing{}, Config{})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := enc.Encode([]int16{1, 2, 3}, 3); !errorsx.HasReason(err, errorsx.ReasonEncode) {
		t.Fatalf("expected encode reason, got %v", err)
	}
}

func TestContentTypes(t *testing.T) {
	le := newLE(t, 160)
	if !strings.HasPrefix(le.ContentType(), "audio/lpcm; sample-rate=16000") {
		t.Fatalf("unexpected le content type %q", le.ContentType())
	}
	be, _ := NewEncoder(Config{Format: "PCM16BE", SampleRate: 8000})
	if be.ContentType() != "audio/l16; rate=8000; channels=1" {
		t.Fatalf("unexpected be content type %q", be.ContentType())
	}
	if be.FrameSize() != 160 {
		t.Fatalf("expected 20ms default frame, got %d", be.FrameSize())
	}
	if _, err := NewEncoder(Config{Format: "flac"}); err == nil {
		t.Fatalf("expected unknown format error")
	}
}

func TestMuLawRoundTrip(t *testing.T) {
	if MuLawEncodeSample(0) != 0xFF {
		t.Fatalf("silence should encode to 0xFF")
	}
	for _, s := range []int16{0, 100, -100, 1000, -1000, 12000, -12000, 32767, -32768} {
		got := MuLawDecodeSample(MuLawEncodeSample(s))
		diff := int(got) - int(s)
		if diff < 0 {
			diff = -diff
		}
		limit := int(s) / 16
		if limit < 0 {
			limit = -limit
		}
		if limit < 16 {
			limit = 16
		}
		if int(s) > 32635 || int(s) < -32635 {
			limit = 1200
		}
		if diff > limit {
			t.Fatalf("mulaw round trip of %d gave %d", s, got)
		}
	}
	enc, _ := NewEncoder(Config{Format: FormatMuLaw, SampleRate: 8000})
	out, err := enc.Encode(make([]int16, 160), 160)
	if err != nil || len(out) != 160 {
		t.Fatalf("expected 160 mulaw bytes, got %d (%v)", len(out), err)
	}
	if len(DecodeMuLaw(out)) != 160 {
		t.Fatalf("decode length mismatch")
	}
}
