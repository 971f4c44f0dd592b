package main

import (
	"encoding/binary"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/harunnryd/lexturn/pkg/capture"
	"github.com/harunnryd/lexturn/pkg/encoder"
	"github.com/harunnryd/lexturn/pkg/interaction"
	"github.com/harunnryd/lexturn/pkg/lex"
	"github.com/harunnryd/lexturn/pkg/vad"
)

// withSampleRate retargets capture, detector and encoder to rate. Detector
// thresholds keep their meaning because frames stay 10ms long.
func withSampleRate(cfg interaction.Config, rate int) interaction.Config {
	if cfg.Capture.SampleRate == rate {
		return cfg
	}
	cfg.Capture.SampleRate = rate
	cfg.Capture.ChunkSize = rate / 50
	if cfg.VAD == (vad.Config{}) {
		cfg.VAD = vad.DefaultConfig(rate)
	} else {
		cfg.VAD.FrameSize = rate / 100
	}
	cfg.Encoder.SampleRate = rate
	cfg.Encoder.FrameSize = 0
	return cfg
}

// saveAudio writes a spoken reply under dir and returns the file path. Linear
// PCM is wrapped in a WAV header; anything else is stored as received.
func saveAudio(dir, conversationID string, n int, resp *lex.Response) (string, error) {
	if dir == "" || resp == nil || len(resp.Audio) == 0 {
		return "", nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	base := filepath.Join(dir, fmt.Sprintf("%s-%03d", conversationID, n))

	rate, order, ok := linearPCM(resp.AudioContentType)
	if !ok {
		path := base + ".bin"
		return path, os.WriteFile(path, resp.Audio, 0o644)
	}
	path := base + ".wav"
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if err := capture.WriteWAV(f, encoder.DecodePCM16(order, resp.Audio), rate); err != nil {
		_ = f.Close()
		return "", err
	}
	return path, f.Close()
}

// linearPCM recognises 16-bit PCM content types. audio/l16 is big-endian.
func linearPCM(contentType string) (int, binary.ByteOrder, bool) {
	mt, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return 0, nil, false
	}
	var order binary.ByteOrder
	switch strings.ToLower(mt) {
	case "audio/pcm", "audio/lpcm":
		order = binary.LittleEndian
	case "audio/l16":
		order = binary.BigEndian
	default:
		return 0, nil, false
	}
	if e := strings.ToLower(params["endianness"]); e == "big-endian" {
		order = binary.BigEndian
	} else if e == "little-endian" {
		order = binary.LittleEndian
	}
	rate := 16000
	if v, err := strconv.Atoi(params["rate"]); err == nil && v > 0 {
		rate = v
	}
	return rate, order, true
}
