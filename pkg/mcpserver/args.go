package mcpserver

// Argument extraction helpers. MCP arguments arrive as decoded JSON, so
// numbers are float64 and arrays are []any.

func requireString(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", invalidArgs("missing required field %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", invalidArgs("field %q must be a string", key)
	}
	return s, nil
}

func optString(args map[string]any, key, fallback string) (string, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return fallback, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", invalidArgs("field %q must be a string", key)
	}
	return s, nil
}

func optInt(args map[string]any, key string, fallback int) (int, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return fallback, nil
	}
	switch n := v.(type) {
	case float64:
		return int(n), nil
	case int:
		return n, nil
	default:
		return 0, invalidArgs("field %q must be a number", key)
	}
}

func optBool(args map[string]any, key string, fallback bool) (bool, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return fallback, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, invalidArgs("field %q must be a boolean", key)
	}
	return b, nil
}

func requireStringSlice(args map[string]any, key string) ([]string, error) {
	v, ok := args[key]
	if !ok {
		return nil, invalidArgs("missing required field %q", key)
	}
	raw, ok := v.([]any)
	if !ok {
		return nil, invalidArgs("field %q must be an array of strings", key)
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		s, ok := item.(string)
		if !ok {
			return nil, invalidArgs("field %q must contain only strings", key)
		}
		out = append(out, s)
	}
	return out, nil
}
