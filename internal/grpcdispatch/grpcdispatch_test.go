package grpcdispatch

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/hanpama/odatabatch/internal/batch"
	"github.com/hanpama/odatabatch/internal/dispatchpb"
	executor "github.com/hanpama/odatabatch/internal/executor"
)

func mustRegistry(t *testing.T) *dispatchpb.Registry {
	t.Helper()
	reg, err := dispatchpb.Build()
	require.NoError(t, err)
	return reg
}

func TestCodec_RequestRoundTrip(t *testing.T) {
	reg := mustRegistry(t)
	req := batch.Request{
		Method:    "PATCH",
		Path:      "Employees('1')",
		Query:     "$select=Name",
		RawURI:    "/odata/Employees('1')?$select=Name",
		Header:    http.Header{"Content-Id": {"3"}, "Accept": {"application/json", "text/plain"}},
		ContentID: "3",
		Body:      []byte(`{"Name":"Walter"}`),
	}
	if diff := cmp.Diff(req, DecodeRequest(EncodeRequest(reg, req))); diff != "" {
		t.Fatalf("request mismatch (-want +got):\n%s", diff)
	}
}

func TestCodec_ResultRoundTrip(t *testing.T) {
	reg := mustRegistry(t)
	res := batch.Result{StatusCode: 201, Header: http.Header{"Location": {"Employees('1')"}}, Body: []byte("{}")}
	if diff := cmp.Diff(res, DecodeResult(EncodeResult(reg, res))); diff != "" {
		t.Fatalf("result mismatch (-want +got):\n%s", diff)
	}
}

func TestDispatch_RoutesByEntitySet(t *testing.T) {
	reg := mustRegistry(t)
	mt := NewMockTransport(
		EncodeResult(reg, batch.Result{StatusCode: 201, Header: http.Header{"Location": {"Employees('1')"}}}),
		EncodeResult(reg, batch.Result{StatusCode: 204}),
	)
	d := New(reg, mt)

	res, err := d.Dispatch(context.Background(), batch.Request{Method: "POST", Path: "Employees", ContentID: "1"})
	require.NoError(t, err)
	require.Equal(t, 201, res.StatusCode)
	require.Equal(t, "Employees('1')", res.Location())

	res, err = d.Dispatch(context.Background(), batch.Request{Method: "DELETE", Path: "Employees('1')/Address"})
	require.NoError(t, err)
	require.Equal(t, 204, res.StatusCode)

	calls := mt.Calls()
	require.Len(t, calls, 2)
	require.Equal(t, "Employees", calls[0].Route)
	require.Equal(t, "Employees", calls[1].Route)
	require.Equal(t, "/odatabatch.v1.Dispatcher/Dispatch", calls[0].FullMethod)

	sent := DecodeRequest(calls[0].Request.ProtoReflect())
	require.Equal(t, "POST", sent.Method)
	require.Equal(t, "1", sent.ContentID)
}

func TestDispatch_StatusErrors(t *testing.T) {
	tests := []struct {
		code codes.Code
		want int
	}{
		{codes.NotFound, http.StatusNotFound},
		{codes.InvalidArgument, http.StatusBadRequest},
		{codes.PermissionDenied, http.StatusForbidden},
		{codes.Unauthenticated, http.StatusUnauthorized},
		{codes.DeadlineExceeded, http.StatusGatewayTimeout},
		{codes.Unavailable, http.StatusServiceUnavailable},
		{codes.AlreadyExists, http.StatusConflict},
		{codes.FailedPrecondition, http.StatusPreconditionFailed},
		{codes.Unimplemented, http.StatusNotImplemented},
		{codes.Internal, http.StatusBadGateway},
		{codes.Unknown, http.StatusBadGateway},
	}
	reg := mustRegistry(t)
	for _, tc := range tests {
		t.Run(tc.code.String(), func(t *testing.T) {
			mt := NewMockTransportWithErrors(nil, []error{status.Error(tc.code, "nope")})
			_, err := New(reg, mt).Dispatch(context.Background(), batch.Request{Method: "GET", Path: "X"})

			var se *StatusError
			require.ErrorAs(t, err, &se)
			require.Equal(t, tc.code, se.Code)
			var sc executor.StatusCoder
			require.ErrorAs(t, err, &sc)
			require.Equal(t, tc.want, sc.HTTPStatus())
		})
	}
}

func TestDispatch_PlainErrorPassesThrough(t *testing.T) {
	reg := mustRegistry(t)
	mt := NewMockTransportWithErrors(nil, []error{context.DeadlineExceeded})
	_, err := New(reg, mt).Dispatch(context.Background(), batch.Request{Method: "GET", Path: "X"})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDispatch_InvalidResponse(t *testing.T) {
	reg := mustRegistry(t)

	var wrong protoreflect.Message = EncodeRequest(reg, batch.Request{Method: "GET"})
	_, err := New(reg, NewMockTransport(wrong)).Dispatch(context.Background(), batch.Request{Method: "GET", Path: "X"})
	var se *StatusError
	require.True(t, errors.As(err, &se))
	require.Equal(t, codes.Internal, se.Code)

	_, err = New(reg, NewMockTransport(EncodeResult(reg, batch.Result{}))).Dispatch(context.Background(), batch.Request{Method: "GET", Path: "X"})
	require.ErrorAs(t, err, &se)
}
