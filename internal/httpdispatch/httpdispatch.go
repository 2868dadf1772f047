// Package httpdispatch replays batch requests against an upstream HTTP
// service root.
package httpdispatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hanpama/odatabatch/internal/batch"
	executor "github.com/hanpama/odatabatch/internal/executor"
	reqid "github.com/hanpama/odatabatch/internal/reqid"
)

// ErrResponseTooLarge is returned when an upstream body exceeds MaxBodyBytes.
var ErrResponseTooLarge = errors.New("httpdispatch: response too large")

type Options struct {
	// Client performs upstream requests. Defaults to a client with Timeout.
	Client *http.Client
	// Timeout of the default client. Ignored when Client is set.
	Timeout time.Duration
	// MaxBodyBytes limits upstream response bodies. 0 means unlimited.
	MaxBodyBytes int64
	// ServiceRoot replaces the upstream root in Location headers so that
	// resource identifiers are expressed under the gateway's root.
	ServiceRoot string
}

type Option func(*Options)

func WithClient(c *http.Client) Option   { return func(o *Options) { o.Client = c } }
func WithTimeout(d time.Duration) Option { return func(o *Options) { o.Timeout = d } }
func WithMaxBodyBytes(n int64) Option    { return func(o *Options) { o.MaxBodyBytes = n } }
func WithServiceRoot(root string) Option { return func(o *Options) { o.ServiceRoot = root } }

// Dispatcher implements executor.Dispatcher over HTTP.
type Dispatcher struct {
	base *url.URL
	opt  Options
}

var _ executor.Dispatcher = (*Dispatcher)(nil)

// New returns a Dispatcher for the upstream service root, e.g.
// "http://backend:8080/odata/".
func New(upstream string, opts ...Option) (*Dispatcher, error) {
	base, err := url.Parse(upstream)
	if err != nil {
		return nil, fmt.Errorf("httpdispatch: upstream: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("httpdispatch: upstream %q must be an http(s) URL", upstream)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}
	op := Options{Timeout: 10 * time.Second}
	for _, f := range opts {
		f(&op)
	}
	if op.Client == nil {
		op.Client = &http.Client{Timeout: op.Timeout}
	}
	return &Dispatcher{base: base, opt: op}, nil
}

func (d *Dispatcher) Dispatch(ctx context.Context, req batch.Request) (batch.Result, error) {
	target := d.base.String() + strings.TrimPrefix(req.Path, "/")
	if req.Query != "" {
		target += "?" + req.Query
	}
	hreq, err := http.NewRequestWithContext(ctx, req.Method, target, bytes.NewReader(req.Body))
	if err != nil {
		return batch.Result{}, fmt.Errorf("httpdispatch: %w", err)
	}
	if req.Header != nil {
		hreq.Header = req.Header.Clone()
	}
	hreq.Header.Del(batch.HeaderContentID)
	if id, ok := reqid.FromContext(ctx); ok {
		hreq.Header.Set(reqid.Header, strconv.FormatInt(id, 10))
	}

	resp, err := d.opt.Client.Do(hreq)
	if err != nil {
		return batch.Result{}, err
	}
	defer resp.Body.Close()

	reader := io.Reader(resp.Body)
	if d.opt.MaxBodyBytes > 0 {
		reader = io.LimitReader(resp.Body, d.opt.MaxBodyBytes+1)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return batch.Result{}, fmt.Errorf("httpdispatch: read %s: %w", req.Path, err)
	}
	if d.opt.MaxBodyBytes > 0 && int64(len(body)) > d.opt.MaxBodyBytes {
		return batch.Result{}, upstreamError{err: ErrResponseTooLarge, status: http.StatusBadGateway}
	}

	h := resp.Header.Clone()
	h.Del("Content-Length")
	if loc := h.Get("Location"); loc != "" {
		h.Set("Location", d.location(loc))
	}
	if len(body) == 0 {
		body = nil
	}
	return batch.Result{StatusCode: resp.StatusCode, Header: h, Body: body}, nil
}

// location rewrites an upstream Location under the configured service root.
func (d *Dispatcher) location(loc string) string {
	if d.opt.ServiceRoot == "" {
		return loc
	}
	u, err := d.base.Parse(loc)
	if err != nil || u.Host != d.base.Host {
		return loc
	}
	rel, ok := strings.CutPrefix(u.EscapedPath(), d.base.EscapedPath())
	if !ok {
		return loc
	}
	root := d.opt.ServiceRoot
	if !strings.HasSuffix(root, "/") {
		root += "/"
	}
	out := root + rel
	if u.RawQuery != "" {
		out += "?" + u.RawQuery
	}
	return out
}

type upstreamError struct {
	err    error
	status int
}

func (e upstreamError) Error() string   { return e.err.Error() }
func (e upstreamError) Unwrap() error  { return e.err }
func (e upstreamError) HTTPStatus() int { return e.status }
