package api

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/AnotherFoxGuy/sogeBot/internal/types"
)

// Error mapping for handlers. Auth errors are mapped in the auth interceptor.
//
//	not found            -> NOT_FOUND
//	validation / filter  -> INVALID_ARGUMENT
//	store not ready      -> UNAVAILABLE
//	context deadline     -> DEADLINE_EXCEEDED
//	everything else      -> INTERNAL
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, types.ErrRuleNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, types.ErrUnknownEventKind),
		errors.Is(err, types.ErrSyntax),
		errors.Is(err, types.ErrExpressionTooLong),
		errors.Is(err, types.ErrExpressionTooDeep),
		errors.Is(err, types.ErrExpressionTooCostly),
		errors.Is(err, types.ErrUndefinedIdentifier),
		errors.Is(err, types.ErrTypeMismatch):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, types.ErrStoreNotReady):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

func invalid(format string, args ...any) error {
	return status.Errorf(codes.InvalidArgument, format, args...)
}
