// Package configutil decodes the free-form settings maps that pick a VAD
// classifier or a transport backend into typed structs.
package configutil

import (
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// DecodeSettings decodes input into out. Keys match mapstructure tags without
// regard to case, underscores or hyphens. Input is weakly typed, so "0.02"
// fills a float64, "750ms" a time.Duration and "a,b" a []string.
func DecodeSettings(input map[string]any, out any) error {
	if len(input) == 0 {
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		MatchName:        func(key, field string) bool { return normalizeKey(key) == normalizeKey(field) },
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return err
	}
	return dec.Decode(input)
}

// DecodeWithSchema validates input against schema before decoding it into out.
func DecodeWithSchema(input map[string]any, schema Schema, out any) error {
	if err := ValidateSettings(input, schema); err != nil {
		return err
	}
	return DecodeSettings(input, out)
}

func RequireString(value, path string) error {
	if strings.TrimSpace(value) != "" {
		return nil
	}
	return fmt.Errorf("%s is required", path)
}

func RequirePositive(value int, path string) error {
	if value > 0 {
		return nil
	}
	return fmt.Errorf("%s must be positive, got %d", path, value)
}

// Or dereferences an optional setting, falling back when it was not given.
func Or[T any](value *T, fallback T) T {
	if value != nil {
		return *value
	}
	return fallback
}

func normalizeKey(key string) string {
	return strings.NewReplacer("_", "", "-", "").Replace(strings.ToLower(key))
}
