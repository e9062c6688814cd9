package audit

import (
	"fmt"
	"path/filepath"
)

const maxLoggedString = 256

// Sanitize prepares tool arguments for the audit log: long strings are
// truncated and absolute paths outside the jail are redacted. allowed
// reports whether a path-shaped string is inside the jail; nil disables
// redaction.
func Sanitize(args map[string]any, allowed func(string) bool) map[string]any {
	if args == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = sanitizeValue(v, allowed)
	}
	return out
}

func sanitizeValue(v any, allowed func(string) bool) any {
	switch val := v.(type) {
	case string:
		if filepath.IsAbs(val) && allowed != nil && !allowed(filepath.Clean(val)) {
			return "<outside-jail>"
		}
		if len(val) > maxLoggedString {
			return fmt.Sprintf("%s…(+%d bytes)", val[:maxLoggedString], len(val)-maxLoggedString)
		}
		return val
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = sanitizeValue(item, allowed)
		}
		return out
	case map[string]any:
		return Sanitize(val, allowed)
	default:
		return val
	}
}
