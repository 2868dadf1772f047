package grpctp

import "errors"

var (
	// ErrNoEndpoints indicates the provider returned no endpoints for a route.
	ErrNoEndpoints = errors.New("grpctp: no endpoints available")
	// ErrClosed is returned by calls on a closed Transport.
	ErrClosed = errors.New("grpctp: closed")
)
