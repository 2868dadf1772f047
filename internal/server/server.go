package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"google.golang.org/grpc/metadata"

	eventbus "github.com/hanpama/odatabatch/internal/eventbus"
	events "github.com/hanpama/odatabatch/internal/events"
	executor "github.com/hanpama/odatabatch/internal/executor"
	multipart "github.com/hanpama/odatabatch/internal/multipart"
	reqid "github.com/hanpama/odatabatch/internal/reqid"
)

// MetadataRequestID is the outgoing gRPC metadata key carrying the request id.
const MetadataRequestID = "odatabatch-request-id"

// Handler is an http.Handler that serves a $batch endpoint.
// It tokenizes the batch, runs the executor, and writes a multipart/mixed
// response.
type Handler struct {
	exec      *executor.Executor
	writer    *multipart.Writer
	tokenizer Tokenizer
	opt       Options
}

type Options struct {
	// Timeout sets a default timeout if the incoming request context has none.
	// 0 means no default timeout.
	Timeout time.Duration

	// Pretty enables indented JSON error bodies (useful for dev).
	Pretty bool

	// MaxBodyBytes limits the size of the request body. 0 means unlimited.
	MaxBodyBytes int64

	// CORS configuration. If AllowedOrigins is empty, CORS is disabled.
	CORS CORSOptions

	// MetadataHeaders lists HTTP headers to forward into gRPC metadata.
	// Header names are case-insensitive. Default is none.
	MetadataHeaders []string

	// ServiceRoot is the path resources are addressed under, e.g. "/odata/".
	ServiceRoot string

	// Concurrency bounds concurrently running top-level operations.
	Concurrency int

	// Tokenizer overrides the JSON envelope tokenizer.
	Tokenizer Tokenizer

	// BoundaryFunc generates batch and change set boundaries.
	BoundaryFunc func(prefix string) string
}

type Option func(*Options)

func WithTimeout(d time.Duration) Option { return func(o *Options) { o.Timeout = d } }
func WithPretty() Option                 { return func(o *Options) { o.Pretty = true } }
func WithMaxBodyBytes(n int64) Option    { return func(o *Options) { o.MaxBodyBytes = n } }
func WithCORS(origins ...string) Option {
	return func(o *Options) { o.CORS.AllowedOrigins = origins }
}
func WithMetadataHeaders(headers ...string) Option {
	return func(o *Options) { o.MetadataHeaders = headers }
}
func WithServiceRoot(root string) Option { return func(o *Options) { o.ServiceRoot = root } }
func WithConcurrency(n int) Option      { return func(o *Options) { o.Concurrency = n } }
func WithTokenizer(t Tokenizer) Option  { return func(o *Options) { o.Tokenizer = t } }
func WithBoundaryFunc(f func(prefix string) string) Option {
	return func(o *Options) { o.BoundaryFunc = f }
}

// CORSOptions holds simple CORS settings.
type CORSOptions struct {
	AllowedOrigins []string
}

// New creates a $batch handler dispatching every request through d.
func New(d executor.Dispatcher, opts ...Option) (*Handler, error) {
	if d == nil {
		return nil, errors.New("server: nil dispatcher")
	}
	op := Options{Timeout: 30 * time.Second, BoundaryFunc: multipart.NewBoundary}
	for _, f := range opts {
		f(&op)
	}
	tok := op.Tokenizer
	if tok == nil {
		tok = JSONTokenizer{ServiceRoot: op.ServiceRoot}
	}
	exec := executor.NewExecutor(d,
		executor.WithServiceRoot(op.ServiceRoot),
		executor.WithConcurrency(op.Concurrency),
	)
	return &Handler{
		exec:      exec,
		writer:    multipart.NewWriter(multipart.WithBoundaryFunc(op.BoundaryFunc)),
		tokenizer: tok,
		opt:       op,
	}, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, rid := reqid.FromRequest(r)
	if _, ok := ctx.Deadline(); !ok && h.opt.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.opt.Timeout)
		defer cancel()
	}

	status := http.StatusAccepted
	written := 0
	start := time.Now()
	eventbus.Publish(ctx, events.HTTPStart{Request: r})
	defer func() {
		eventbus.Publish(ctx, events.HTTPFinish{Request: r, Status: status, Bytes: written, Duration: time.Since(start)})
	}()
	w.Header().Set(reqid.Header, strconv.FormatInt(rid, 10))

	if len(h.opt.CORS.AllowedOrigins) > 0 {
		setCORSHeaders(w, r, h.opt.CORS)
	}
	if r.Method == http.MethodOptions {
		status = http.StatusNoContent
		w.WriteHeader(status)
		return
	}
	if r.Method != http.MethodPost {
		status = http.StatusMethodNotAllowed
		w.Header().Set("Allow", "POST, OPTIONS")
		written = writeError(w, status, "method not allowed", h.opt.Pretty)
		return
	}
	if ct := r.Header.Get("Content-Type"); ct != "" {
		if mt, _, err := mime.ParseMediaType(ct); err != nil || mt != "application/json" {
			status = http.StatusUnsupportedMediaType
			written = writeError(w, status, "unsupported Content-Type", h.opt.Pretty)
			return
		}
	}

	body, err := readBody(r, h.opt.MaxBodyBytes)
	if err != nil {
		status = http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		written = writeError(w, status, err.Error(), h.opt.Pretty)
		return
	}

	ops, err := h.tokenizer.Tokenize(body)
	if err != nil {
		status = http.StatusBadRequest
		written = writeError(w, status, err.Error(), h.opt.Pretty)
		return
	}

	// Map configured headers into metadata
	md := metadata.MD{}
	if len(h.opt.MetadataHeaders) > 0 {
		allowed := make(map[string]struct{}, len(h.opt.MetadataHeaders))
		for _, hdr := range h.opt.MetadataHeaders {
			allowed[strings.ToLower(hdr)] = struct{}{}
		}
		for k, v := range r.Header {
			if _, ok := allowed[strings.ToLower(k)]; ok {
				md[strings.ToLower(k)] = v
			}
		}
	}
	md[MetadataRequestID] = []string{strconv.FormatInt(rid, 10)}
	ctx = metadata.NewOutgoingContext(ctx, md)

	groups := h.exec.Run(ctx, ops)

	boundary := h.opt.BoundaryFunc("batch")
	out, err := h.writer.Serialize(groups, boundary)
	if err != nil {
		status = http.StatusInternalServerError
		written = writeError(w, status, err.Error(), h.opt.Pretty)
		return
	}

	w.Header().Set("Content-Type", "multipart/mixed; boundary="+boundary)
	w.Header().Set("Content-Length", strconv.Itoa(len(out)))
	w.Header().Set("OData-Version", "4.0")
	w.WriteHeader(status)
	written, _ = w.Write(out)
}

var errBodyTooLarge = errors.New("body too large")

func readBody(r *http.Request, maxBody int64) ([]byte, error) {
	defer r.Body.Close()
	reader := io.Reader(r.Body)
	if maxBody > 0 {
		reader = io.LimitReader(r.Body, maxBody+1)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, errors.New("failed to read body")
	}
	if maxBody > 0 && int64(len(body)) > maxBody {
		return nil, errBodyTooLarge
	}
	return body, nil
}

type odataError struct {
	Error odataErrorBody `json:"error"`
}

type odataErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeError writes an OData JSON error body and returns its size.
func writeError(w http.ResponseWriter, status int, message string, pretty bool) int {
	var (
		b   []byte
		err error
	)
	v := odataError{Error: odataErrorBody{Code: strconv.Itoa(status), Message: message}}
	if pretty {
		b, err = json.MarshalIndent(v, "", "  ")
	} else {
		b, err = json.Marshal(v)
	}
	if err != nil {
		b = []byte(`{"error":{"code":"500","message":"internal error"}}`)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	n, _ := w.Write(append(b, '\n'))
	return n
}

func setCORSHeaders(w http.ResponseWriter, r *http.Request, opts CORSOptions) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return
	}
	allowed := false
	for _, o := range opts.AllowedOrigins {
		if o == "*" || o == origin {
			allowed = true
			break
		}
	}
	if !allowed {
		return
	}
	if contains(opts.AllowedOrigins, "*") {
		w.Header().Set("Access-Control-Allow-Origin", "*")
	} else {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Add("Vary", "Origin")
	}
	if r.Method == http.MethodOptions {
		if hdr := r.Header.Get("Access-Control-Request-Headers"); hdr != "" {
			w.Header().Set("Access-Control-Allow-Headers", hdr)
		}
		w.Header().Set("Access-Control-Allow-Methods", "POST,OPTIONS")
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
