package dispatchpb

import (
	"fmt"

	"google.golang.org/protobuf/reflect/protoreflect"
)

// Registry holds the built dispatcher descriptors.
type Registry struct {
	file     protoreflect.FileDescriptor
	dispatch protoreflect.MethodDescriptor
}

func (r *Registry) File() protoreflect.FileDescriptor { return r.file }

func (r *Registry) DispatchMethod() protoreflect.MethodDescriptor { return r.dispatch }

// FullMethod returns the gRPC method name, "/odatabatch.v1.Dispatcher/Dispatch".
func (r *Registry) FullMethod() string {
	return fmt.Sprintf("/%s/%s", r.dispatch.Parent().FullName(), r.dispatch.Name())
}
