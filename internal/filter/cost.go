// internal/filter/cost.go
package filter

/*
 * Resource limits for filter expressions.
 *
 * Limits are enforced in two places:
 *   - Compile: source length, AST node count and nesting depth
 *   - Evaluate: step budget, one step per visited node plus the length of
 *     any string scanned by a method call
 *
 * The grammar has no loops or user functions, so a compiled program with
 * at most MaxExpressionNodes nodes visits each node at most once. The step
 * budget exists to bound string scanning over large attribute values.
 *
 * Constants defined here are the single source of truth for limits.
 */

const (
	// MaxExpressionLength is the longest accepted filter source, in bytes.
	MaxExpressionLength = 4096

	// MaxExpressionNodes bounds the AST size.
	MaxExpressionNodes = 256

	// MaxExpressionDepth bounds parser recursion and AST nesting.
	MaxExpressionDepth = 32

	// MaxEvaluationSteps bounds work done by one evaluation.
	MaxEvaluationSteps = 1 << 20

	// Per-node step costs.
	CostLiteral  = 1
	CostLookup   = 2
	CostOperator = 1
	CostCall     = 4
)

// budget tracks remaining evaluation steps.
type budget struct {
	remaining int
}

func newBudget() *budget {
	return &budget{remaining: MaxEvaluationSteps}
}

// spend consumes n steps and reports whether the budget still holds.
func (b *budget) spend(n int) bool {
	b.remaining -= n
	return b.remaining >= 0
}

// nodeCost returns the fixed step cost of visiting a node.
func nodeCost(n node) int {
	switch n.(type) {
	case *literalNode:
		return CostLiteral
	case *identNode, *memberNode:
		return CostLookup
	case *callNode:
		return CostCall
	default:
		return CostOperator
	}
}
