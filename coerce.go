package sfapi

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// CoerceFields converts form values to the types the object API expects:
// "on" and "off" become booleans and numeric strings become numbers. Other
// values are kept. Applying it twice gives the same result.
func CoerceFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))

	for key, value := range fields {
		s, ok := value.(string)
		if !ok {
			out[key] = value
			continue
		}

		switch s {
		case "on":
			out[key] = true
		case "off":
			out[key] = false
		default:
			if n, ok := parseNumber(s); ok {
				out[key] = n
			} else {
				out[key] = s
			}
		}
	}

	return out
}

// CoerceFieldStrings is the form-encoded variant used for form handlers:
// booleans become "1" and "0" and numbers are written in canonical form.
func CoerceFieldStrings(fields map[string]any) map[string]string {
	out := make(map[string]string, len(fields))

	for key, value := range CoerceFields(fields) {
		switch v := value.(type) {
		case bool:
			out[key] = boolDigit(v)
		case float64:
			out[key] = strconv.FormatFloat(v, 'f', -1, 64)
		case string:
			switch v {
			case "true":
				out[key] = "1"
			case "false":
				out[key] = "0"
			default:
				out[key] = v
			}
		case nil:
			out[key] = ""
		default:
			out[key] = fmt.Sprint(v)
		}
	}

	return out
}

func parseNumber(s string) (float64, bool) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return 0, false
	}

	n, err := strconv.ParseFloat(trimmed, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}

	return n, true
}

func boolDigit(b bool) string {
	if b {
		return "1"
	}

	return "0"
}
