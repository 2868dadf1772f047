// Package grpcdispatch forwards batch requests to a remote odatabatch.v1
// Dispatcher service. Requests and responses travel as dynamic messages
// built from the dispatchpb descriptors.
package grpcdispatch

import (
	"context"
	"fmt"

	"google.golang.org/grpc/codes"

	"github.com/hanpama/odatabatch/internal/batch"
	"github.com/hanpama/odatabatch/internal/dispatchpb"
	executor "github.com/hanpama/odatabatch/internal/executor"
)

// Dispatcher implements executor.Dispatcher over a Transport.
type Dispatcher struct {
	registry  *dispatchpb.Registry
	transport Transport
}

func New(registry *dispatchpb.Registry, transport Transport) *Dispatcher {
	return &Dispatcher{registry: registry, transport: transport}
}

var _ executor.Dispatcher = (*Dispatcher)(nil)

// Dispatch routes req by its entity set and converts the reply into a Result.
// gRPC failures are returned as *StatusError.
func (d *Dispatcher) Dispatch(ctx context.Context, req batch.Request) (batch.Result, error) {
	method := d.registry.DispatchMethod()
	resp, err := d.transport.Call(ctx, req.EntitySet(), method, EncodeRequest(d.registry, req))
	if err != nil {
		return batch.Result{}, statusError(err)
	}
	if resp == nil || resp.Descriptor().FullName() != method.Output().FullName() {
		return batch.Result{}, &StatusError{Code: codes.Internal, Message: fmt.Sprintf("unexpected response for %s", req.Path)}
	}
	res := DecodeResult(resp)
	if res.StatusCode < 100 || res.StatusCode > 999 {
		return batch.Result{}, &StatusError{Code: codes.Internal, Message: fmt.Sprintf("invalid status %d for %s", res.StatusCode, req.Path)}
	}
	return res, nil
}
