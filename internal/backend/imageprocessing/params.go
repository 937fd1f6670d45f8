package imageprocessing

import "fmt"

// getIntParam reads an integer parameter. YAML and JSON decoding produce different
// numeric types, all of them are accepted.
func getIntParam(params map[string]any, key string, defaultValue int) (int, error) {
	val, ok := params[key]
	if !ok {
		return defaultValue, nil
	}
	switch v := val.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case uint64:
		return int(v), nil
	case float64:
		if v != float64(int(v)) {
			return 0, fmt.Errorf("parameter %s must be a whole number, got %v", key, v)
		}
		return int(v), nil
	default:
		return 0, fmt.Errorf("parameter %s must be a number, got %T", key, val)
	}
}
