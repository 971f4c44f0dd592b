package main

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/harunnryd/lexturn/pkg/capture"
	"github.com/harunnryd/lexturn/pkg/interaction"
	"github.com/harunnryd/lexturn/pkg/lex"
)

func TestLinearPCM(t *testing.T) {
	rate, order, ok := linearPCM("audio/pcm")
	if !ok || rate != 16000 || order != binary.LittleEndian {
		t.Fatalf("audio/pcm: got %d %v %v", rate, order, ok)
	}
	rate, order, ok = linearPCM("audio/l16; rate=8000")
	if !ok || rate != 8000 || order != binary.BigEndian {
		t.Fatalf("audio/l16: got %d %v %v", rate, order, ok)
	}
	if _, _, ok := linearPCM("audio/mpeg"); ok {
		t.Fatalf("mpeg is not linear pcm")
	}
}

func TestSaveAudioWritesWAV(t *testing.T) {
	dir := t.TempDir()
	pcm := make([]byte, 640)
	binary.LittleEndian.PutUint16(pcm[2:], 1234)
	path, err := saveAudio(dir, "conv", 1, &lex.Response{Audio: pcm, AudioContentType: "audio/pcm; rate=8000"})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if filepath.Ext(path) != ".wav" {
		t.Fatalf("expected wav, got %s", path)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	src, err := capture.NewWAVSource(f)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if src.SampleRate() != 8000 {
		t.Fatalf("expected 8000 Hz, got %d", src.SampleRate())
	}

	path, err = saveAudio(dir, "conv", 2, &lex.Response{Audio: []byte{1, 2, 3}, AudioContentType: "audio/mpeg"})
	if err != nil || filepath.Ext(path) != ".bin" {
		t.Fatalf("expected raw file, got %q %v", path, err)
	}
	if path, err := saveAudio(dir, "conv", 3, &lex.Response{}); path != "" || err != nil {
		t.Fatalf("expected nothing saved without audio, got %q %v", path, err)
	}
}

func TestWithSampleRate(t *testing.T) {
	cfg := withSampleRate(interaction.DefaultConfig(), 8000)
	if cfg.Capture.SampleRate != 8000 || cfg.Capture.ChunkSize != 160 {
		t.Fatalf("capture not retargeted: %+v", cfg.Capture)
	}
	if cfg.VAD.FrameSize != 80 || cfg.VAD.EndpointingThreshold != 60 {
		t.Fatalf("vad not retargeted: %+v", cfg.VAD)
	}
	if cfg.Encoder.SampleRate != 8000 || cfg.Encoder.FrameSize != 0 {
		t.Fatalf("encoder not retargeted: %+v", cfg.Encoder)
	}
}
