// internal/filter/operators.go
package filter

import (
	"fmt"
	"math"
	"strings"

	"github.com/AnotherFoxGuy/sogeBot/internal/types"
)

/*
 * Operator semantics.
 *
 * Operators:
 *   - === / !==: strict equality, no conversion between kinds
 *   - == / !=: loose equality; null and undefined equal each other only,
 *     booleans and numeric strings convert to numbers before comparing
 *   - < <= > >=: string ordering when both sides are strings, else numeric
 *     (NaN compares false)
 *   - +: concatenation when either side is a string, else numeric addition
 *   - - * / %: numeric
 *
 * Objects and lists are never equal under either equality operator.
 */

// applyBinary evaluates a non short-circuit binary operator.
func applyBinary(op string, l, r any) (any, error) {
	switch op {
	case "===":
		return strictEqual(l, r), nil
	case "!==":
		return !strictEqual(l, r), nil
	case "==":
		return looseEqual(l, r), nil
	case "!=":
		return !looseEqual(l, r), nil
	case "<", "<=", ">", ">=":
		return compareRelational(op, l, r), nil
	case "+":
		_, ls := l.(string)
		_, rs := r.(string)
		if ls || rs {
			return toString(l) + toString(r), nil
		}
		return toNumber(l) + toNumber(r), nil
	case "-":
		return toNumber(l) - toNumber(r), nil
	case "*":
		return toNumber(l) * toNumber(r), nil
	case "/":
		return toNumber(l) / toNumber(r), nil
	case "%":
		return math.Mod(toNumber(l), toNumber(r)), nil
	default:
		return nil, fmt.Errorf("%w: unknown operator %q", types.ErrSyntax, op)
	}
}

// strictEqual compares kind and value without conversion.
func strictEqual(l, r any) bool {
	switch a := l.(type) {
	case nil:
		return r == nil
	case undefinedValue:
		_, ok := r.(undefinedValue)
		return ok
	case bool:
		b, ok := r.(bool)
		return ok && a == b
	case float64:
		b, ok := r.(float64)
		return ok && a == b
	case string:
		b, ok := r.(string)
		return ok && a == b
	default:
		return false
	}
}

// looseEqual implements == semantics for the runtime value set.
func looseEqual(l, r any) bool {
	if isNullish(l) || isNullish(r) {
		return isNullish(l) && isNullish(r)
	}
	if sameKind(l, r) {
		return strictEqual(l, r)
	}
	if _, ok := l.(bool); ok {
		return looseEqual(toNumber(l), r)
	}
	if _, ok := r.(bool); ok {
		return looseEqual(l, toNumber(r))
	}
	if isScalar(l) && isScalar(r) {
		return toNumber(l) == toNumber(r)
	}
	return false
}

func isNullish(v any) bool {
	if v == nil {
		return true
	}
	_, ok := v.(undefinedValue)
	return ok
}

func isScalar(v any) bool {
	switch v.(type) {
	case bool, float64, string:
		return true
	default:
		return false
	}
}

func sameKind(l, r any) bool {
	switch l.(type) {
	case bool:
		_, ok := r.(bool)
		return ok
	case float64:
		_, ok := r.(float64)
		return ok
	case string:
		_, ok := r.(string)
		return ok
	default:
		return false
	}
}

// compareRelational orders strings lexically and everything else numerically.
func compareRelational(op string, l, r any) bool {
	ls, lok := l.(string)
	rs, rok := r.(string)
	if lok && rok {
		c := strings.Compare(ls, rs)
		switch op {
		case "<":
			return c < 0
		case "<=":
			return c <= 0
		case ">":
			return c > 0
		default:
			return c >= 0
		}
	}
	a, b := toNumber(l), toNumber(r)
	if math.IsNaN(a) || math.IsNaN(b) {
		return false
	}
	switch op {
	case "<":
		return a < b
	case "<=":
		return a <= b
	case ">":
		return a > b
	default:
		return a >= b
	}
}
