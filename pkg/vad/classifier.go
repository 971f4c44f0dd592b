package vad

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Classifier labels a single frame of 16-bit PCM as speech or non-speech.
// The frame slice is reused by the caller and must not be retained.
type Classifier interface {
	Classify(frame []int16) (Classification, error)
	Close() error
}

// ClassifierFunc adapts a function to the Classifier interface.
type ClassifierFunc func(frame []int16) (Classification, error)

func (f ClassifierFunc) Classify(frame []int16) (Classification, error) { return f(frame) }

func (f ClassifierFunc) Close() error { return nil }

// ClassifierFactory builds a classifier backend from free-form settings.
type ClassifierFactory func(settings map[string]any) (Classifier, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]ClassifierFactory{
		"energy": newEnergyFromSettings,
		"zcr":    newZCRFromSettings,
	}
)

// RegisterClassifier makes a backend available by name. Registering an
// existing name replaces it.
func RegisterClassifier(name string, factory ClassifierFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[normalizeName(name)] = factory
}

// NewClassifier builds the named backend.
func NewClassifier(name string, settings map[string]any) (Classifier, error) {
	registryMu.RLock()
	fn := registry[normalizeName(name)]
	registryMu.RUnlock()
	if fn == nil {
		return nil, fmt.Errorf("vad classifier not registered: %s", name)
	}
	return fn(settings)
}

// Classifiers lists registered backend names.
func Classifiers() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
