package grpcdispatch_test

import (
	"context"
	"errors"
	"net"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/test/bufconn"

	"github.com/hanpama/odatabatch/internal/batch"
	"github.com/hanpama/odatabatch/internal/dispatchpb"
	executor "github.com/hanpama/odatabatch/internal/executor"
	"github.com/hanpama/odatabatch/internal/grpcdispatch"
	"github.com/hanpama/odatabatch/internal/grpctp"
)

func startServer(t *testing.T, reg *dispatchpb.Registry, d executor.Dispatcher) *grpctp.Transport {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	grpcdispatch.Register(srv, reg, d)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	tp := grpctp.New(
		grpctp.WithProvider(grpctp.NewStaticEndpoints(map[string][]string{grpctp.Wildcard: {"passthrough:///bufnet", "passthrough:///unused"}})),
		grpctp.WithPick(grpctp.PickFirst),
		grpctp.WithDialOptions(
			grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
			grpc.WithTransportCredentials(insecure.NewCredentials()),
		),
	)
	t.Cleanup(func() { _ = tp.Close() })
	return tp
}

func TestTransport_EndToEnd(t *testing.T) {
	reg, err := dispatchpb.Build()
	require.NoError(t, err)

	var route []string
	backend := executor.NewMockDispatcher(nil)
	backend.SetHandler("POST", "Employees", func(ctx context.Context, req batch.Request) (batch.Result, error) {
		md, _ := metadata.FromIncomingContext(ctx)
		route = md.Get(grpctp.MetadataRoute)
		h := http.Header{}
		h.Set("Location", "Employees('1')")
		return batch.Result{StatusCode: http.StatusCreated, Header: h, Body: req.Body}, nil
	})
	backend.SetHandler("GET", "Broken", executor.NewMockErrorHandler(errors.New("backend down")))

	d := grpcdispatch.New(reg, startServer(t, reg, backend))

	res, err := d.Dispatch(context.Background(), batch.Request{Method: "POST", Path: "Employees", ContentID: "1", Body: []byte(`{"Name":"Walter"}`)})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, res.StatusCode)
	require.Equal(t, "Employees('1')", res.Location())
	require.Equal(t, `{"Name":"Walter"}`, string(res.Body))
	require.Equal(t, []string{"Employees"}, route)

	res, err = d.Dispatch(context.Background(), batch.Request{Method: "GET", Path: "Unknown"})
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, res.StatusCode)

	_, err = d.Dispatch(context.Background(), batch.Request{Method: "GET", Path: "Broken"})
	var sc executor.StatusCoder
	require.ErrorAs(t, err, &sc)
	require.Equal(t, http.StatusBadGateway, sc.HTTPStatus())

	require.Equal(t, []executor.Call{
		{Method: "POST", Path: "Employees", ContentID: "1"},
		{Method: "GET", Path: "Unknown"},
		{Method: "GET", Path: "Broken"},
	}, backend.GetCalls())
}
