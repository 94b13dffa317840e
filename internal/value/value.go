// Package value reads loosely typed values decoded from message bodies.
// JSON bodies that crossed the wire hold json.Number, local ones hold Go
// numbers, protobuf ones hold float64.
package value

import (
	"encoding/json"
	"fmt"
	"math"
)

func Int(val any) (int, error) {
	switch v := val.(type) {
	case int:
		return v, nil
	case int32:
		return int(v), nil
	case int64:
		return int(v), nil
	case uint32:
		return int(v), nil
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("value: %v is not an integer", v)
		}
		return int(v), nil
	case json.Number:
		i, err := v.Int64()
		if err != nil {
			return 0, fmt.Errorf("value: %w", err)
		}
		return int(i), nil
	default:
		return 0, fmt.Errorf("value: expected a number, got %T", val)
	}
}

// String accepts nil as "".
func String(val any) (string, error) {
	switch v := val.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	default:
		return "", fmt.Errorf("value: expected a string, got %T", val)
	}
}

// Map accepts nil as a nil map.
func Map(val any) (map[string]any, error) {
	switch v := val.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return v, nil
	default:
		return nil, fmt.Errorf("value: expected an object, got %T", val)
	}
}

// Slice accepts nil as a nil slice.
func Slice(val any) ([]any, error) {
	switch v := val.(type) {
	case nil:
		return nil, nil
	case []any:
		return v, nil
	default:
		return nil, fmt.Errorf("value: expected an array, got %T", val)
	}
}
