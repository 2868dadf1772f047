package reqid

import (
	"context"
	"math/rand/v2"
	"net/http"
	"strconv"
)

// Header is the HTTP header a client may use to supply its own request id.
const Header = "X-Request-Id"

// key is the context key for the request ID.
type key struct{}

// NewContext returns a copy of parent with a new random, non-zero request ID
// stored. It also returns the generated ID.
func NewContext(parent context.Context) (context.Context, int64) {
	id := rand.Int64N(1<<63-1) + 1
	return context.WithValue(parent, key{}, id), id
}

// FromRequest uses the numeric id in the request's X-Request-Id header when
// present and valid, and generates one otherwise.
func FromRequest(r *http.Request) (context.Context, int64) {
	if v := r.Header.Get(Header); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil && id > 0 {
			return context.WithValue(r.Context(), key{}, id), id
		}
	}
	return NewContext(r.Context())
}

// FromContext extracts the request ID from ctx.
// It returns the ID and whether it was present.
func FromContext(ctx context.Context) (int64, bool) {
	v := ctx.Value(key{})
	id, ok := v.(int64)
	return id, ok
}
