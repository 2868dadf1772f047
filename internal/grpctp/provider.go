package grpctp

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Wildcard is the route StaticEndpoints falls back to.
const Wildcard = "*"

// EndpointProvider provides a list of reachable endpoints (host:port) for a
// route. Routes are entity set names such as "Employees".
// Implementations may integrate with service discovery/registry systems.
// Return at least one endpoint or an error.
// Implementations should be safe for concurrent use.

type EndpointProvider interface {
	Endpoints(ctx context.Context, route string) ([]string, error)
}

// StaticEndpoints is a simple provider backed by an in-memory map.
// Key is the route; value is list of endpoints. Routes without an entry use
// the Wildcard entry.

type StaticEndpoints struct {
	mu   sync.RWMutex
	data map[string][]string
}

func NewStaticEndpoints(m map[string][]string) *StaticEndpoints {
	cp := make(map[string][]string, len(m))
	for k, v := range m {
		vv := make([]string, len(v))
		copy(vv, v)
		cp[k] = vv
	}
	return &StaticEndpoints{data: cp}
}

// ParseStaticEndpoints reads a comma separated list of "route=host:port"
// entries. An entry without a route belongs to the Wildcard route. Repeated
// routes accumulate endpoints.
func ParseStaticEndpoints(s string) (*StaticEndpoints, error) {
	m := map[string][]string{}
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		route, endpoint, ok := strings.Cut(entry, "=")
		if !ok {
			route, endpoint = Wildcard, entry
		}
		route, endpoint = strings.TrimSpace(route), strings.TrimSpace(endpoint)
		if route == "" || endpoint == "" {
			return nil, fmt.Errorf("grpctp: invalid endpoint entry %q", entry)
		}
		m[route] = append(m[route], endpoint)
	}
	if len(m) == 0 {
		return nil, ErrNoEndpoints
	}
	return &StaticEndpoints{data: m}, nil
}

func (s *StaticEndpoints) Endpoints(ctx context.Context, route string) ([]string, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	arr := s.data[route]
	if len(arr) == 0 {
		arr = s.data[Wildcard]
	}
	if len(arr) == 0 {
		return nil, fmt.Errorf("%w: route %q", ErrNoEndpoints, route)
	}
	out := make([]string, len(arr))
	copy(out, arr)
	return out, nil
}

// Set replaces the endpoints of route.
func (s *StaticEndpoints) Set(route string, endpoints ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(endpoints) == 0 {
		delete(s.data, route)
		return
	}
	s.data[route] = append([]string(nil), endpoints...)
}
