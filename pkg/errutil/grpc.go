package errutil

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// GRPCCode maps the statuses the license service produces; anything else is Unknown.
func (s CoreStatus) GRPCCode() codes.Code {
	switch s {
	case StatusBadRequest, StatusValidationFailed:
		return codes.InvalidArgument
	case StatusUnauthorized:
		return codes.Unauthenticated
	case StatusForbidden:
		return codes.PermissionDenied
	case StatusMethodNotAllowed:
		return codes.Unimplemented
	case StatusServiceUnavailable:
		return codes.Unavailable
	case StatusInternal:
		return codes.Internal
	default:
		return codes.Unknown
	}
}

// ToGRPCError turns err into a status error carrying only the public message.
// Existing status errors pass through; context errors keep their code.
func ToGRPCError(err error) error {
	if err == nil {
		return nil
	}

	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}

	var base BaseError
	if errors.As(err, &base) {
		return status.Error(base.Code.GRPCCode(), base.Message)
	}

	return status.Error(codes.Internal, InternalMessage)
}
