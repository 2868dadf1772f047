package grpcdispatch

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/hanpama/odatabatch/internal/dispatchpb"
	executor "github.com/hanpama/odatabatch/internal/executor"
)

// Register serves d as the odatabatch.v1 Dispatcher service on s. Dispatcher
// errors are returned as gRPC statuses; results of any HTTP status are
// regular responses.
func Register(s grpc.ServiceRegistrar, registry *dispatchpb.Registry, d executor.Dispatcher) {
	md := registry.DispatchMethod()
	fullMethod := registry.FullMethod()

	handler := func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := dynamicpb.NewMessage(md.Input())
		if err := dec(in); err != nil {
			return nil, err
		}
		call := func(ctx context.Context, req any) (any, error) {
			res, err := srv.(executor.Dispatcher).Dispatch(ctx, DecodeRequest(req.(*dynamicpb.Message)))
			if err != nil {
				return nil, toStatus(err)
			}
			return EncodeResult(registry, res).Interface(), nil
		}
		if interceptor == nil {
			return call(ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		return interceptor(ctx, in, info, call)
	}

	s.RegisterService(&grpc.ServiceDesc{
		ServiceName: string(md.Parent().FullName()),
		HandlerType: (*executor.Dispatcher)(nil),
		Methods:     []grpc.MethodDesc{{MethodName: string(md.Name()), Handler: handler}},
		Metadata:    registry.File().Path(),
	}, d)
}

func toStatus(err error) error {
	if _, ok := status.FromError(err); ok {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return status.FromContextError(err).Err()
	}
	return status.Error(codes.Internal, err.Error())
}
