package vad

import (
	"fmt"
	"math"

	"github.com/harunnryd/lexturn/pkg/configutil"
)

// EnergyClassifier is a pure-Go classifier based on normalized RMS energy.
// Levels between the two thresholds keep the previous verdict.
type EnergyClassifier struct {
	speechThreshold  float64
	silenceThreshold float64
	inSpeech         bool
}

type energySettings struct {
	SpeechThreshold  *float64 `mapstructure:"speech_threshold"`
	SilenceThreshold *float64 `mapstructure:"silence_threshold"`
}

var energySchema = configutil.Schema{Optional: []string{"speech_threshold", "silence_threshold"}}

// NewEnergyClassifier builds an energy classifier. Thresholds are RMS levels in
// the 0..1 range; silenceThreshold must not exceed speechThreshold.
func NewEnergyClassifier(speechThreshold, silenceThreshold float64) (*EnergyClassifier, error) {
	if speechThreshold <= 0 || speechThreshold > 1 {
		return nil, fmt.Errorf("speech threshold out of range: %v", speechThreshold)
	}
	if silenceThreshold <= 0 || silenceThreshold > speechThreshold {
		return nil, fmt.Errorf("silence threshold out of range: %v", silenceThreshold)
	}
	return &EnergyClassifier{speechThreshold: speechThreshold, silenceThreshold: silenceThreshold}, nil
}

func newEnergyFromSettings(settings map[string]any) (Classifier, error) {
	var s energySettings
	if err := configutil.DecodeWithSchema(settings, energySchema, &s); err != nil {
		return nil, fmt.Errorf("energy settings: %w", err)
	}
	return NewEnergyClassifier(
		configutil.Or(s.SpeechThreshold, 0.015),
		configutil.Or(s.SilenceThreshold, 0.008),
	)
}

func (c *EnergyClassifier) Classify(frame []int16) (Classification, error) {
	if len(frame) == 0 {
		return ClassError, fmt.Errorf("empty frame")
	}
	level := RMS(frame)
	if c.inSpeech {
		if level < c.silenceThreshold {
			c.inSpeech = false
		}
	} else if level >= c.speechThreshold {
		c.inSpeech = true
	}
	if c.inSpeech {
		return ClassSpeech, nil
	}
	return ClassNonSpeech, nil
}

func (c *EnergyClassifier) Close() error { return nil }

// ZCRClassifier gates energy with the zero-crossing rate. Broadband noise
// crosses zero far more often than voiced speech.
type ZCRClassifier struct {
	energy *EnergyClassifier
	maxZCR float64
}

type zcrSettings struct {
	SpeechThreshold  *float64 `mapstructure:"speech_threshold"`
	SilenceThreshold *float64 `mapstructure:"silence_threshold"`
	MaxZCR           *float64 `mapstructure:"max_zcr"`
}

var zcrSchema = configutil.Schema{Optional: []string{"speech_threshold", "silence_threshold", "max_zcr"}}

func NewZCRClassifier(speechThreshold, silenceThreshold, maxZCR float64) (*ZCRClassifier, error) {
	energy, err := NewEnergyClassifier(speechThreshold, silenceThreshold)
	if err != nil {
		return nil, err
	}
	if maxZCR <= 0 || maxZCR > 1 {
		return nil, fmt.Errorf("max zcr out of range: %v", maxZCR)
	}
	return &ZCRClassifier{energy: energy, maxZCR: maxZCR}, nil
}

func newZCRFromSettings(settings map[string]any) (Classifier, error) {
	var s zcrSettings
	if err := configutil.DecodeWithSchema(settings, zcrSchema, &s); err != nil {
		return nil, fmt.Errorf("zcr settings: %w", err)
	}
	return NewZCRClassifier(
		configutil.Or(s.SpeechThreshold, 0.015),
		configutil.Or(s.SilenceThreshold, 0.008),
		configutil.Or(s.MaxZCR, 0.35),
	)
}

func (c *ZCRClassifier) Classify(frame []int16) (Classification, error) {
	cls, err := c.energy.Classify(frame)
	if err != nil || cls != ClassSpeech {
		return cls, err
	}
	if ZeroCrossingRate(frame) > c.maxZCR {
		c.energy.inSpeech = false
		return ClassNonSpeech, nil
	}
	return ClassSpeech, nil
}

func (c *ZCRClassifier) Close() error { return nil }

// RMS returns the root mean square of the samples normalized to 0..1.
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s) / 32768.0
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// DBFS converts a normalized RMS level to decibels relative to full scale.
// Silence maps to -96 dBFS, the floor of 16-bit audio.
func DBFS(rms float64) float64 {
	if rms <= 0 {
		return -96
	}
	db := 20 * math.Log10(rms)
	if db < -96 {
		return -96
	}
	return db
}

// ZeroCrossingRate returns the fraction of adjacent sample pairs that change sign.
func ZeroCrossingRate(samples []int16) float64 {
	if len(samples) < 2 {
		return 0
	}
	crossings := 0
	for i := 1; i < len(samples); i++ {
		if (samples[i-1] >= 0) != (samples[i] >= 0) {
			crossings++
		}
	}
	return float64(crossings) / float64(len(samples)-1)
}
