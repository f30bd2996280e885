package objects

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Coerce converts a decoded value to the declared type of its state.
// A value that cannot be read as a number yields NaN, which stores
// persist as "no valid value".
func Coerce(raw any, t ValueType) any {
	switch t {
	case ValueBoolean:
		return toBool(raw)
	case ValueNumber:
		return toNumber(raw)
	default:
		return raw
	}
}

func toBool(raw any) bool {
	switch v := raw.(type) {
	case bool:
		return v
	case float64:
		return v == 1
	case int:
		return v == 1
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "on", "true":
			return true
		}
	}
	return false
}

func toNumber(raw any) float64 {
	switch v := raw.(type) {
	case bool:
		if v {
			return 1
		}
		return 0
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case uint:
		return float64(v)
	case string:
		s := strings.ToLower(strings.TrimSpace(v))
		switch s {
		case "on", "true":
			return 1
		case "off", "false":
			return 0
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	case nil:
		return math.NaN()
	default:
		f, err := strconv.ParseFloat(fmt.Sprint(v), 64)
		if err != nil {
			return math.NaN()
		}
		return f
	}
}

// InferType returns the value type matching a decoded value.
func InferType(v any) ValueType {
	switch v.(type) {
	case bool:
		return ValueBoolean
	case float64, float32, int, int64, uint:
		return ValueNumber
	case string:
		return ValueString
	default:
		return ValueMixed
	}
}

// IsNaN reports whether v is a NaN number.
func IsNaN(v any) bool {
	f, ok := v.(float64)
	return ok && math.IsNaN(f)
}
