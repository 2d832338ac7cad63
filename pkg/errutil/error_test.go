package errutil

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestHTTPStatus(t *testing.T) {
	cases := map[CoreStatus]int{
		StatusBadRequest:          http.StatusBadRequest,
		StatusUnauthorized:        http.StatusUnauthorized,
		StatusForbidden:           http.StatusForbidden,
		StatusMethodNotAllowed:    http.StatusMethodNotAllowed,
		StatusValidationFailed:    http.StatusUnprocessableEntity,
		StatusClientClosedRequest: 499,
		StatusInternal:            http.StatusInternalServerError,
		StatusUnknown:             http.StatusInternalServerError,
	}

	for code, want := range cases {
		require.Equal(t, want, code.HTTPStatus(), code)
	}
}

func TestBaseErrorKeepsCauseOutOfJSON(t *testing.T) {
	cause := errors.New("connection refused")
	err := Internal(InternalMessage, cause)

	var be BaseError
	require.True(t, errors.As(err, &be))
	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "connection refused")
	require.Equal(t, map[string]any{"error": InternalMessage}, be.JSON())
}

func TestBaseErrorDetails(t *testing.T) {
	err := ValidationFailed("invalid request", nil, WithDetails(Detail{Field: "client_id", Message: "is required"}))

	var be BaseError
	require.True(t, errors.As(err, &be))
	require.Nil(t, be.Err)
	require.Equal(t, StatusValidationFailed, be.Status())

	body := be.JSON()
	require.Equal(t, "invalid request", body["error"])
	require.Equal(t, []Detail{{Field: "client_id", Message: "is required"}}, body["details"])
}

func TestGRPCCode(t *testing.T) {
	cases := map[CoreStatus]codes.Code{
		StatusBadRequest:         codes.InvalidArgument,
		StatusValidationFailed:   codes.InvalidArgument,
		StatusUnauthorized:       codes.Unauthenticated,
		StatusForbidden:          codes.PermissionDenied,
		StatusMethodNotAllowed:   codes.Unimplemented,
		StatusServiceUnavailable: codes.Unavailable,
		StatusInternal:           codes.Internal,
		StatusConflict:           codes.Unknown,
	}

	for s, want := range cases {
		require.Equal(t, want, s.GRPCCode(), s)
	}
}

func TestToGRPCError(t *testing.T) {
	require.NoError(t, ToGRPCError(nil))

	err := ToGRPCError(Forbidden("nope", nil))
	require.Equal(t, codes.PermissionDenied, status.Code(err))

	err = ToGRPCError(Internal("db not ready", errors.New("secret detail")))
	require.Equal(t, codes.Internal, status.Code(err))
	require.NotContains(t, err.Error(), "secret detail")

	err = ToGRPCError(ValidationFailed("bad date", nil))
	require.Equal(t, codes.InvalidArgument, status.Code(err))
	require.Equal(t, "bad date", status.Convert(err).Message())

	err = ToGRPCError(context.DeadlineExceeded)
	require.Equal(t, codes.DeadlineExceeded, status.Code(err))

	err = ToGRPCError(errors.New("plain"))
	require.Equal(t, codes.Internal, status.Code(err))

	original := status.Error(codes.NotFound, "missing")
	require.Equal(t, original, ToGRPCError(original))
}
