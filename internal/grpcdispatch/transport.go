package grpcdispatch

import (
	"context"

	"google.golang.org/protobuf/reflect/protoreflect"
)

// Transport handles the actual gRPC communication.
// This interface allows for different transport implementations (real gRPC, mock, etc.).
// Implementations MUST be safe for concurrent use: the executor may dispatch
// independent operations from multiple goroutines.
//
// Provided implementations:
// - internal/grpctp.Transport: production-ready client with pooling and timeouts
// - MockTransport: seeded responses for tests
type Transport interface {
	// Call executes a single gRPC method call. Route names the entity set the
	// request addresses and selects the backend.
	Call(ctx context.Context, route string, method protoreflect.MethodDescriptor, request protoreflect.Message) (protoreflect.Message, error)
}
