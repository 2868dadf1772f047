// Package multipart serializes batch response groups into a multipart/mixed
// body. Non-atomic results become application/http parts; change sets become
// nested multipart/mixed parts with their own boundary.
package multipart

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/hanpama/odatabatch/internal/batch"
)

const crlf = "\r\n"

// maxBoundaryAttempts bounds regeneration of a colliding change-set boundary.
const maxBoundaryAttempts = 3

// headers written by the part writer itself.
var reserved = map[string]bool{"Content-Id": true, "Content-Length": true}

// NewBoundary returns a fresh boundary token such as "batch_<uuid>".
func NewBoundary(prefix string) string { return prefix + "_" + uuid.NewString() }

type Options struct {
	// BoundaryFunc generates change-set boundaries. It receives the prefix
	// "changeset". Defaults to NewBoundary.
	BoundaryFunc func(prefix string) string
}

type Option func(*Options)

func WithBoundaryFunc(f func(prefix string) string) Option {
	return func(o *Options) { o.BoundaryFunc = f }
}

// Writer is the response assembler.
type Writer struct {
	opt Options
}

func NewWriter(opts ...Option) *Writer {
	op := Options{BoundaryFunc: NewBoundary}
	for _, f := range opts {
		f(&op)
	}
	return &Writer{opt: op}
}

// Serialize is shorthand for NewWriter().Serialize.
func Serialize(groups []batch.ResponseGroup, boundary string) ([]byte, error) {
	return NewWriter().Serialize(groups, boundary)
}

// Serialize renders groups in order, delimited by boundary. The result is the
// body of a response with Content-Type "multipart/mixed; boundary=<boundary>".
func (w *Writer) Serialize(groups []batch.ResponseGroup, boundary string) ([]byte, error) {
	blocks := make([][]byte, len(groups))
	for i, g := range groups {
		var err error
		switch g := g.(type) {
		case batch.SingleResponse:
			blocks[i] = part(g.Result, "")
		case batch.ChangeSetResponse:
			blocks[i], err = w.changeSet(g)
		default:
			err = fmt.Errorf("multipart: unknown response group %T", g)
		}
		if err != nil {
			return nil, err
		}
	}
	if collides(boundary, blocks) {
		return nil, fmt.Errorf("%w: %q", ErrBoundaryCollision, boundary)
	}

	var buf bytes.Buffer
	for _, b := range blocks {
		buf.WriteString("--" + boundary + crlf)
		buf.Write(b)
	}
	buf.WriteString("--" + boundary + "--" + crlf)
	return buf.Bytes(), nil
}

func (w *Writer) changeSet(cs batch.ChangeSetResponse) ([]byte, error) {
	if cs.Err != nil {
		return part(batch.ErrorResult(http.StatusBadRequest, cs.Err.Error()), ""), nil
	}
	if len(cs.Results) == 0 {
		return part(batch.ErrorResult(http.StatusBadRequest, ErrEmptyChangeSet.Error()), ""), nil
	}

	parts := make([][]byte, len(cs.Results))
	for i, res := range cs.Results {
		id := res.ContentID()
		if id == "" {
			return nil, fmt.Errorf("%w: member %d (status %d)", ErrMissingContentID, i, res.StatusCode)
		}
		parts[i] = part(res, id)
	}

	var boundary string
	for attempt := 0; ; attempt++ {
		if attempt == maxBoundaryAttempts {
			return nil, fmt.Errorf("%w: change set", ErrBoundaryCollision)
		}
		boundary = w.opt.BoundaryFunc("changeset")
		if !collides(boundary, parts) {
			break
		}
	}

	var buf bytes.Buffer
	buf.WriteString("Content-Type: multipart/mixed; boundary=" + boundary + crlf)
	buf.WriteString(crlf)
	for _, p := range parts {
		buf.WriteString("--" + boundary + crlf)
		buf.Write(p)
	}
	buf.WriteString("--" + boundary + "--" + crlf)
	return buf.Bytes(), nil
}

// part renders one application/http body part including its trailing line
// break. contentID is written when non-empty.
func part(res batch.Result, contentID string) []byte {
	var buf bytes.Buffer
	buf.WriteString("Content-Type: application/http" + crlf)
	buf.WriteString("Content-Transfer-Encoding: binary" + crlf)
	if contentID != "" {
		buf.WriteString("Content-ID: " + contentID + crlf)
	}
	buf.WriteString(crlf)

	buf.WriteString("HTTP/1.1 " + strconv.Itoa(res.StatusCode) + " " + reasonPhrase(res.StatusCode) + crlf)
	// Writing to a bytes.Buffer does not fail.
	_ = res.Header.WriteSubset(&buf, reserved)
	buf.WriteString("Content-Length: " + strconv.Itoa(len(res.Body)) + crlf)
	buf.WriteString(crlf)
	buf.Write(res.Body)
	buf.WriteString(crlf)
	return buf.Bytes()
}

func reasonPhrase(code int) string {
	if text := http.StatusText(code); text != "" {
		return text
	}
	return "Status " + strconv.Itoa(code)
}

func collides(boundary string, blocks [][]byte) bool {
	delim := []byte("--" + boundary)
	for _, b := range blocks {
		if bytes.Contains(b, delim) {
			return true
		}
	}
	return false
}
