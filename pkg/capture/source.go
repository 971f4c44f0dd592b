package capture

import (
	"context"
	"fmt"
	"io"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Source produces mono 16-bit PCM in temporal order. ReadSamples fills buf
// and returns how many samples were written; io.EOF marks the end.
type Source interface {
	ReadSamples(ctx context.Context, buf []int16) (int, error)
}

// SliceSource serves samples from memory.
type SliceSource struct {
	samples []int16
	pos     int
}

func NewSliceSource(samples []int16) *SliceSource {
	return &SliceSource{samples: samples}
}

func (s *SliceSource) ReadSamples(ctx context.Context, buf []int16) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s.pos >= len(s.samples) {
		return 0, io.EOF
	}
	n := copy(buf, s.samples[s.pos:])
	s.pos += n
	return n, nil
}

// ChannelSource reads chunks pushed by a producer goroutine, such as a
// telephony media stream. Closing the channel ends the source.
type ChannelSource struct {
	ch       <-chan []int16
	leftover []int16
}

func NewChannelSource(ch <-chan []int16) *ChannelSource {
	return &ChannelSource{ch: ch}
}

func (s *ChannelSource) ReadSamples(ctx context.Context, buf []int16) (int, error) {
	if len(s.leftover) == 0 {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case chunk, ok := <-s.ch:
			if !ok {
				return 0, io.EOF
			}
			s.leftover = chunk
		}
	}
	n := copy(buf, s.leftover)
	s.leftover = s.leftover[n:]
	return n, nil
}

// WAVSource decodes a 16-bit PCM WAV file. Multi-channel audio is mixed down to mono.
type WAVSource struct {
	dec        *wav.Decoder
	channels   int
	sampleRate int
	buf        *audio.IntBuffer
}

func NewWAVSource(r io.ReadSeeker) (*WAVSource, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("wav: invalid file")
	}
	if dec.BitDepth != 16 {
		return nil, fmt.Errorf("wav: expected 16-bit samples, got %d", dec.BitDepth)
	}
	channels := int(dec.NumChans)
	if channels <= 0 {
		channels = 1
	}
	return &WAVSource{
		dec:        dec,
		channels:   channels,
		sampleRate: int(dec.SampleRate),
		buf: &audio.IntBuffer{
			Format:         &audio.Format{NumChannels: channels, SampleRate: int(dec.SampleRate)},
			SourceBitDepth: 16,
		},
	}, nil
}

// SampleRate reports the file's sample rate.
func (s *WAVSource) SampleRate() int { return s.sampleRate }

func (s *WAVSource) ReadSamples(ctx context.Context, buf []int16) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	want := len(buf) * s.channels
	if cap(s.buf.Data) < want {
		s.buf.Data = make([]int, want)
	}
	s.buf.Data = s.buf.Data[:want]
	n, err := s.dec.PCMBuffer(s.buf)
	if err != nil && err != io.EOF {
		return 0, fmt.Errorf("wav: read: %w", err)
	}
	frames := n / s.channels
	if frames == 0 {
		return 0, io.EOF
	}
	for i := 0; i < frames; i++ {
		sum := 0
		for c := 0; c < s.channels; c++ {
			sum += s.buf.Data[i*s.channels+c]
		}
		buf[i] = int16(sum / s.channels)
	}
	return frames, nil
}

// WriteWAV stores mono 16-bit samples as a WAV file.
func WriteWAV(w io.WriteSeeker, samples []int16, sampleRate int) error {
	enc := wav.NewEncoder(w, sampleRate, 16, 1, 1)
	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(s)
	}
	if err := enc.Write(&audio.IntBuffer{
		Data:           data,
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		SourceBitDepth: 16,
	}); err != nil {
		return fmt.Errorf("wav: write: %w", err)
	}
	return enc.Close()
}
