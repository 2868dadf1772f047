package events

import (
	"time"

	"google.golang.org/grpc/codes"
)

// GRPCClientStart is emitted before a gRPC dispatch call.
type GRPCClientStart struct {
	// Route is the entity set the call was routed by.
	Route  string
	Method string
	Target string
}

// GRPCClientFinish is emitted after a gRPC dispatch call completes.
type GRPCClientFinish struct {
	Route    string
	Method   string
	Target   string
	Code     codes.Code
	Err      error
	Duration time.Duration
}
