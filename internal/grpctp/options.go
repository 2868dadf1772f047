package grpctp

import (
	"math/rand/v2"
	"time"

	"google.golang.org/grpc"
)

// Options configures a Transport.
//
// Defaults:
// - MaxConnsPerEndpoint: 4 idle connections kept per endpoint
// - RPCTimeout:          3s, applied only when the dispatch context has no deadline
// - DialOptions:         insecure credentials with default backoff
// - Pick:                uniform random endpoint
//
// Calls fail with ErrNoEndpoints until a Provider is configured.
type Options struct {
	// Provider resolves the entity-set route of a request to endpoints.
	Provider EndpointProvider

	MaxConnsPerEndpoint int
	RPCTimeout          time.Duration

	DialOptions []grpc.DialOption

	// Pick selects one of the endpoints returned by the provider.
	Pick func(endpoints []string) string
}

type Option func(*Options)

func defaultOptions() *Options {
	return &Options{
		MaxConnsPerEndpoint: 4,
		RPCTimeout:          3 * time.Second,
		Pick:                pickRandom,
	}
}

func pickRandom(endpoints []string) string { return endpoints[rand.IntN(len(endpoints))] }

// PickFirst always selects the first endpoint. Useful when a provider already
// orders endpoints by preference.
func PickFirst(endpoints []string) string { return endpoints[0] }

func WithProvider(p EndpointProvider) Option { return func(o *Options) { o.Provider = p } }
func WithMaxConnsPerEndpoint(n int) Option   { return func(o *Options) { o.MaxConnsPerEndpoint = n } }
func WithRPCTimeout(d time.Duration) Option  { return func(o *Options) { o.RPCTimeout = d } }
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(o *Options) { o.DialOptions = opts }
}
func WithPick(f func(endpoints []string) string) Option {
	return func(o *Options) { o.Pick = f }
}
