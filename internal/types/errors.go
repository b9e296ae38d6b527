package types

import "errors"

// Sentinel errors for engine operations.
var (
	// ErrRuleNotFound indicates no rule exists with the requested ID.
	ErrRuleNotFound = errors.New("rule not found")

	// ErrUserNotFound indicates the user store has no matching identity.
	ErrUserNotFound = errors.New("user not found")

	// ErrPrincipalUnknown indicates the platform has no account with that name.
	ErrPrincipalUnknown = errors.New("principal unknown to platform")

	// ErrVariableNotFound indicates a custom variable does not exist.
	ErrVariableNotFound = errors.New("custom variable not found")

	// ErrUnknownEventKind indicates a rule references an unsupported event.
	ErrUnknownEventKind = errors.New("unknown event kind")

	// ErrExpressionTooLong indicates a filter exceeds MaxExpressionLength.
	ErrExpressionTooLong = errors.New("filter expression too long")

	// ErrExpressionTooDeep indicates a filter nests deeper than MaxExpressionDepth.
	ErrExpressionTooDeep = errors.New("filter expression nested too deeply")

	// ErrExpressionTooCostly indicates a filter exceeds MaxExpressionCost.
	ErrExpressionTooCostly = errors.New("filter expression exceeds cost limit")

	// ErrSyntax indicates the filter could not be parsed.
	ErrSyntax = errors.New("filter syntax error")

	// ErrUndefinedIdentifier indicates a filter references an unknown variable.
	ErrUndefinedIdentifier = errors.New("undefined identifier")

	// ErrTypeMismatch indicates an operator or method was applied to the wrong type.
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrStepBudget indicates evaluation ran out of its step budget.
	ErrStepBudget = errors.New("evaluation step budget exhausted")

	// ErrMissingScope indicates the broadcaster token lacks a required scope.
	ErrMissingScope = errors.New("missing broadcaster scope")

	// ErrInvalidCommercialDuration indicates a commercial length outside the allowed set.
	ErrInvalidCommercialDuration = errors.New("incorrect commercial duration")

	// ErrStoreNotReady indicates the record store cannot serve queries yet.
	ErrStoreNotReady = errors.New("record store not ready")
)
