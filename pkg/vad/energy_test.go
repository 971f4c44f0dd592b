package vad

import (
	"math"
	"testing"
)

func tone(n int, amp int16) []int16 {
	out := make([]int16, n)
	for i := range out {
		// 500 Hz at 16 kHz: 32 samples per period
		out[i] = int16(float64(amp) * math.Sin(2*math.Pi*float64(i)/32))
	}
	return out
}

func TestEnergyClassifierHysteresis(t *testing.T) {
	c, err := NewEnergyClassifier(0.1, 0.02)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	loud := tone(160, 8000)
	mid := tone(160, 2000)
	quiet := tone(160, 100)

	if cls, _ := c.Classify(mid); cls != ClassNonSpeech {
		t.Fatalf("mid level should not start speech")
	}
	if cls, _ := c.Classify(loud); cls != ClassSpeech {
		t.Fatalf("loud level should be speech")
	}
	if cls, _ := c.Classify(mid); cls != ClassSpeech {
		t.Fatalf("mid level should hold speech")
	}
	if cls, _ := c.Classify(quiet); cls != ClassNonSpeech {
		t.Fatalf("quiet level should end speech")
	}
	if _, err := c.Classify(nil); err == nil {
		t.Fatalf("expected error on empty frame")
	}
}

func TestZCRClassifierRejectsNoise(t *testing.T) {
	c, err := NewZCRClassifier(0.05, 0.02, 0.3)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	noise := make([]int16, 160)
	for i := range noise {
		if i%2 == 0 {
			noise[i] = 9000
		} else {
			noise[i] = -9000
		}
	}
	if cls, _ := c.Classify(noise); cls != ClassNonSpeech {
		t.Fatalf("alternating noise should be non-speech")
	}
	if cls, _ := c.Classify(tone(160, 9000)); cls != ClassSpeech {
		t.Fatalf("voiced tone should be speech")
	}
}

func TestNewClassifierFromRegistry(t *testing.T) {
	c, err := NewClassifier(" Energy ", map[string]any{"speech_threshold": "0.2", "silence-threshold": 0.1})
	if err != nil {
		t.Fatalf("new classifier: %v", err)
	}
	ec, ok := c.(*EnergyClassifier)
	if !ok || ec.speechThreshold != 0.2 || ec.silenceThreshold != 0.1 {
		t.Fatalf("unexpected classifier %#v", c)
	}
	if _, err := NewClassifier("dnn", nil); err == nil {
		t.Fatalf("expected unregistered backend error")
	}
	if _, err := NewClassifier("energy", map[string]any{"threshold": 1}); err == nil {
		t.Fatalf("expected unknown setting error")
	}
	RegisterClassifier("always", func(map[string]any) (Classifier, error) {
		return ClassifierFunc(func([]int16) (Classification, error) { return ClassSpeech, nil }), nil
	})
	found := false
	for _, name := range Classifiers() {
		if name == "always" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected registered backend to be listed")
	}
}

func TestLevels(t *testing.T) {
	if RMS(nil) != 0 || DBFS(0) != -96 {
		t.Fatalf("expected silence floor")
	}
	full := []int16{32767, -32768, 32767, -32768}
	if db := DBFS(RMS(full)); db < -0.01 || db > 0.01 {
		t.Fatalf("expected ~0 dBFS for full scale, got %v", db)
	}
	if z := ZeroCrossingRate(full); z != 1 {
		t.Fatalf("expected zcr 1, got %v", z)
	}
}
