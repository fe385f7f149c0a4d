// Package apperr maps domain failures onto a small, closed taxonomy of status
// codes before they cross the wire.
package apperr

import (
	"encoding/json"
	"errors"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// genericInternal is the only message ever returned for an Internal error.
const genericInternal = "internal error"

// New returns a status error carrying code and a caller-safe message.
func New(code codes.Code, message string) error {
	return status.Error(code, message)
}

// Unauthenticated is shorthand for New(codes.Unauthenticated, message).
func Unauthenticated(message string) error { return New(codes.Unauthenticated, message) }

// InvalidArgument is shorthand for New(codes.InvalidArgument, message).
func InvalidArgument(message string) error { return New(codes.InvalidArgument, message) }

// PermissionDenied is shorthand for New(codes.PermissionDenied, message).
func PermissionDenied(message string) error { return New(codes.PermissionDenied, message) }

// NotFound is shorthand for New(codes.NotFound, message).
func NotFound(message string) error { return New(codes.NotFound, message) }

// DeadlineExceeded is shorthand for New(codes.DeadlineExceeded, message).
func DeadlineExceeded(message string) error { return New(codes.DeadlineExceeded, message) }

// Internal returns an Internal status error. The message is never exposed.
func Internal() error { return New(codes.Internal, genericInternal) }

// From converts any error into a status inside the taxonomy.
// Errors that are not status errors, or that carry a code outside the
// taxonomy, collapse to Internal with a generic message.
func From(err error) *status.Status {
	if err == nil {
		return status.New(codes.OK, "")
	}

	var se interface{ GRPCStatus() *status.Status }
	if errors.As(err, &se) {
		st := se.GRPCStatus()
		if inTaxonomy(st.Code()) {
			return st
		}
	}

	return status.New(codes.Internal, genericInternal)
}

// Code returns the taxonomy code for err.
func Code(err error) codes.Code {
	return From(err).Code()
}

func inTaxonomy(code codes.Code) bool {
	switch code {
	case codes.Unauthenticated,
		codes.InvalidArgument,
		codes.PermissionDenied,
		codes.NotFound,
		codes.DeadlineExceeded,
		codes.Internal:
		return true
	default:
		return false
	}
}

// HTTPStatus returns the HTTP status used for code on the wire.
func HTTPStatus(code codes.Code) int {
	switch code {
	case codes.OK:
		return http.StatusOK
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.InvalidArgument:
		return http.StatusBadRequest
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.NotFound:
		return http.StatusNotFound
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// WireCode returns the lowercase, hyphenated code name sent to callers
// (e.g. "permission-denied").
func WireCode(code codes.Code) string {
	switch code {
	case codes.Unauthenticated:
		return "unauthenticated"
	case codes.InvalidArgument:
		return "invalid-argument"
	case codes.PermissionDenied:
		return "permission-denied"
	case codes.NotFound:
		return "not-found"
	case codes.DeadlineExceeded:
		return "deadline-exceeded"
	case codes.OK:
		return "ok"
	default:
		return "internal"
	}
}

// Body is the JSON error envelope
type Body struct {
	Error Detail `json:"error"`
}

// Detail carries the wire code and caller-safe message
type Detail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Write renders err as a JSON error response
func Write(w http.ResponseWriter, err error) {
	st := From(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(HTTPStatus(st.Code()))
	_ = json.NewEncoder(w).Encode(Body{Error: Detail{
		Code:    WireCode(st.Code()),
		Message: st.Message(),
	}})
}
