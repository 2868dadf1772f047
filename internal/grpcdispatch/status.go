package grpcdispatch

import (
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// StatusError is a gRPC failure of a dispatch call. It reports the HTTP
// status the failed request is answered with.
type StatusError struct {
	Code    codes.Code
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("grpcdispatch: %s: %s", e.Code, e.Message)
}

func (e *StatusError) HTTPStatus() int { return HTTPStatus(e.Code) }

func (e *StatusError) GRPCStatus() *status.Status { return status.New(e.Code, e.Message) }

// HTTPStatus maps a gRPC code onto the HTTP status of a failed request.
func HTTPStatus(code codes.Code) int {
	switch code {
	case codes.OK:
		return http.StatusOK
	case codes.InvalidArgument, codes.OutOfRange:
		return http.StatusBadRequest
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.NotFound:
		return http.StatusNotFound
	case codes.AlreadyExists, codes.Aborted:
		return http.StatusConflict
	case codes.FailedPrecondition:
		return http.StatusPreconditionFailed
	case codes.ResourceExhausted:
		return http.StatusTooManyRequests
	case codes.Unimplemented:
		return http.StatusNotImplemented
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}

// statusError converts err into a *StatusError when it carries a gRPC status.
func statusError(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	return &StatusError{Code: st.Code(), Message: st.Message()}
}
