// internal/filter/coercion.go
package filter

import (
	"math"
	"strconv"
	"strings"

	"github.com/AnotherFoxGuy/sogeBot/internal/types"
)

/*
 * Value model and coercion for filter evaluation.
 *
 * Runtime values are normalised on entry to a small closed set:
 *   - nil: null
 *   - undefined: missing property or the undefined literal
 *   - bool, float64, string
 *   - map[string]any: objects ($is, $recipientis)
 *   - []any: lists
 *
 * Coercion follows loose scripting semantics so filters written for the
 * chat bot keep their meaning: "" and 0 are falsy, numeric strings compare
 * as numbers against numbers, + concatenates when either side is a string.
 */

type undefinedValue struct{}

// undefined is the value of a missing property.
var undefined = undefinedValue{}

// normalize converts host values into the runtime value set.
func normalize(v any) any {
	switch t := v.(type) {
	case nil, bool, float64, string, undefinedValue:
		return t
	case types.Attributes:
		return map[string]any(t)
	case map[string]any:
		return t
	case []any:
		return t
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	default:
		if n, ok := types.ToNumber(v); ok {
			return n
		}
		return types.ToString(v)
	}
}

// truthy reports the boolean interpretation of a runtime value.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil, undefinedValue:
		return false
	case bool:
		return t
	case float64:
		return t != 0 && !math.IsNaN(t)
	case string:
		return t != ""
	default:
		return true
	}
}

// toNumber converts a runtime value to a number; failures yield NaN.
func toNumber(v any) float64 {
	switch t := v.(type) {
	case nil:
		return 0
	case undefinedValue:
		return math.NaN()
	case bool:
		if t {
			return 1
		}
		return 0
	case float64:
		return t
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	default:
		return math.NaN()
	}
}

// toString renders a runtime value for concatenation.
func toString(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case undefinedValue:
		return "undefined"
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return formatNumber(t)
	case []any:
		parts := make([]string, len(t))
		for i, e := range t {
			if e == nil {
				continue
			}
			parts[i] = toString(normalize(e))
		}
		return strings.Join(parts, ",")
	default:
		return "[object Object]"
	}
}

func formatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
