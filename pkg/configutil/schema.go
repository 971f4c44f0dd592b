package configutil

import (
	"sort"
	"strings"

	"github.com/harunnryd/lexturn/pkg/errorsx"
)

// Schema lists the keys a backend's settings map may carry. Keys compare
// without regard to case, underscores or hyphens.
type Schema struct {
	Required     []string
	Optional     []string
	AllowUnknown bool
}

// SchemaError reports every offending key at once, sorted.
type SchemaError struct {
	Missing []string
	Unknown []string
}

func (e *SchemaError) Error() string {
	var b strings.Builder
	b.WriteString("settings")
	if len(e.Missing) > 0 {
		b.WriteString(" missing: ")
		b.WriteString(strings.Join(e.Missing, ", "))
	}
	if len(e.Unknown) > 0 {
		if len(e.Missing) > 0 {
			b.WriteString(";")
		}
		b.WriteString(" unknown: ")
		b.WriteString(strings.Join(e.Unknown, ", "))
	}
	return b.String()
}

// ValidateSettings checks input against schema. A required key holding nil or
// a blank string counts as missing. Failures carry the config reason and
// unwrap to *SchemaError.
func ValidateSettings(input map[string]any, schema Schema) error {
	// normalized key -> declared spelling, "" for optional keys
	declared := make(map[string]string, len(schema.Required)+len(schema.Optional))
	for _, k := range schema.Optional {
		declared[normalizeKey(k)] = ""
	}
	for _, k := range schema.Required {
		declared[normalizeKey(k)] = k
	}

	present := make(map[string]bool, len(input))
	var serr SchemaError
	for k, v := range input {
		nk := normalizeKey(k)
		name, known := declared[nk]
		switch {
		case !known && !schema.AllowUnknown:
			serr.Unknown = append(serr.Unknown, k)
		case name != "" && blank(v):
			continue
		}
		present[nk] = true
	}
	for nk, name := range declared {
		if name != "" && !present[nk] {
			serr.Missing = append(serr.Missing, name)
		}
	}
	if len(serr.Missing) == 0 && len(serr.Unknown) == 0 {
		return nil
	}
	sort.Strings(serr.Missing)
	sort.Strings(serr.Unknown)
	return errorsx.Wrap(&serr, errorsx.ReasonConfig)
}

func blank(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}
