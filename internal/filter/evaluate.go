// internal/filter/evaluate.go
package filter

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/AnotherFoxGuy/sogeBot/internal/types"
)

/*
 * Filter evaluation.
 *
 * Walks a compiled Program against a read-only variable table. The table is
 * the only thing a filter can observe: there are no globals, no free
 * function calls, and methods are a fixed allow-list on strings and lists.
 *
 * Evaluation flow:
 *   1. Blank source short-circuits to true (Match/Check only)
 *   2. Each visited node spends from the step budget
 *   3. && and || short-circuit and yield operand values
 *   4. The final value is reduced with truthy()
 *
 * Error semantics: an unknown top-level identifier, a property read on
 * null/undefined, an unknown method, or an exhausted budget is an error.
 * Match and Check map every error to false.
 */

// Vars is the read-only variable table visible to a filter.
type Vars map[string]any

// Evaluate runs the program and returns its raw value.
func Evaluate(p *Program, vars Vars) (any, error) {
	e := &evaluator{vars: vars, budget: newBudget()}
	return e.eval(p.root)
}

// Match evaluates p against vars and reduces the result to a boolean.
// Errors are returned alongside false so callers may log them.
func Match(p *Program, vars Vars) (bool, error) {
	if strings.TrimSpace(p.source) == "" {
		return true, nil
	}
	v, err := Evaluate(p, vars)
	if err != nil {
		return false, err
	}
	return truthy(v), nil
}

// Check compiles and evaluates expr in one step. A blank expression is true;
// any compile or runtime error is false.
func Check(expr string, vars Vars) bool {
	ok, _ := CheckErr(expr, vars)
	return ok
}

// CheckErr is Check that also reports why a filter evaluated to false.
func CheckErr(expr string, vars Vars) (bool, error) {
	if strings.TrimSpace(expr) == "" {
		return true, nil
	}
	p, err := Compile(expr)
	if err != nil {
		return false, err
	}
	return Match(p, vars)
}

type evaluator struct {
	vars   Vars
	budget *budget
}

func (e *evaluator) eval(n node) (any, error) {
	if !e.budget.spend(nodeCost(n)) {
		return nil, types.ErrStepBudget
	}

	switch t := n.(type) {
	case *literalNode:
		return t.value, nil

	case *identNode:
		v, ok := e.vars[t.name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", types.ErrUndefinedIdentifier, t.name)
		}
		return normalize(v), nil

	case *memberNode:
		obj, err := e.eval(t.object)
		if err != nil {
			return nil, err
		}
		return property(obj, t.prop)

	case *callNode:
		obj, err := e.eval(t.object)
		if err != nil {
			return nil, err
		}
		args := make([]any, 0, len(t.args))
		for _, a := range t.args {
			v, err := e.eval(a)
			if err != nil {
				return nil, err
			}
			args = append(args, v)
		}
		return e.call(obj, t.method, args)

	case *unaryNode:
		v, err := e.eval(t.operand)
		if err != nil {
			return nil, err
		}
		switch t.op {
		case "!":
			return !truthy(v), nil
		case "-":
			return -toNumber(v), nil
		default:
			return toNumber(v), nil
		}

	case *binaryNode:
		left, err := e.eval(t.left)
		if err != nil {
			return nil, err
		}
		switch t.op {
		case "&&":
			if !truthy(left) {
				return left, nil
			}
			return e.eval(t.right)
		case "||":
			if truthy(left) {
				return left, nil
			}
			return e.eval(t.right)
		}
		right, err := e.eval(t.right)
		if err != nil {
			return nil, err
		}
		return applyBinary(t.op, left, right)

	case *ternaryNode:
		test, err := e.eval(t.test)
		if err != nil {
			return nil, err
		}
		if truthy(test) {
			return e.eval(t.then)
		}
		return e.eval(t.otherwise)

	default:
		return nil, fmt.Errorf("%w: unknown node %T", types.ErrSyntax, n)
	}
}

// property reads obj.prop. Reading from null or undefined is an error;
// reading a missing key yields undefined.
func property(obj any, prop string) (any, error) {
	switch o := obj.(type) {
	case nil, undefinedValue:
		return nil, fmt.Errorf("%w: cannot read %q of %s", types.ErrTypeMismatch, prop, toString(obj))
	case map[string]any:
		v, ok := o[prop]
		if !ok {
			return undefined, nil
		}
		return normalize(v), nil
	case string:
		if prop == "length" {
			return float64(utf8.RuneCountInString(o)), nil
		}
	case []any:
		if prop == "length" {
			return float64(len(o)), nil
		}
	}
	return undefined, nil
}

// call dispatches an allow-listed method.
func (e *evaluator) call(obj any, method string, args []any) (any, error) {
	arg := func(i int) any {
		if i < len(args) {
			return args[i]
		}
		return undefined
	}

	switch o := obj.(type) {
	case string:
		if !e.budget.spend(len(o)) {
			return nil, types.ErrStepBudget
		}
		switch method {
		case "includes":
			return strings.Contains(o, toString(arg(0))), nil
		case "startsWith":
			return strings.HasPrefix(o, toString(arg(0))), nil
		case "endsWith":
			return strings.HasSuffix(o, toString(arg(0))), nil
		case "toLowerCase":
			return strings.ToLower(o), nil
		case "toUpperCase":
			return strings.ToUpper(o), nil
		case "trim":
			return strings.TrimSpace(o), nil
		}
	case []any:
		if !e.budget.spend(len(o)) {
			return nil, types.ErrStepBudget
		}
		if method == "includes" {
			needle := arg(0)
			for _, el := range o {
				if strictEqual(normalize(el), needle) {
					return true, nil
				}
			}
			return false, nil
		}
	}
	return nil, fmt.Errorf("%w: %s is not a function on %s", types.ErrTypeMismatch, method, kindOf(obj))
}

func kindOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case undefinedValue:
		return "undefined"
	case bool:
		return "boolean"
	case float64:
		return "number"
	case string:
		return "string"
	case []any:
		return "array"
	default:
		return "object"
	}
}
