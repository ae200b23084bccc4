package modules

// Parameter maps come straight out of decoded JSON, so numbers arrive as
// float64. These helpers normalise the common cases.

func stringParam(params map[string]any, key string) (string, bool) {
	v, ok := params[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func intParam(params map[string]any, key string) (int, bool) {
	v, ok := params[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case int64:
		return int(n), true
	}
	return 0, false
}

func floatParam(params map[string]any, key string) (float64, bool) {
	v, ok := params[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func intParamDefault(params map[string]any, key string, def int) int {
	if n, ok := intParam(params, key); ok {
		return n
	}
	return def
}

func floatParamDefault(params map[string]any, key string, def float64) float64 {
	if n, ok := floatParam(params, key); ok {
		return n
	}
	return def
}
