package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/hanpama/odatabatch/internal/batch"
)

// ErrInvalidBatch wraps every tokenizer failure caused by client input.
var ErrInvalidBatch = errors.New("invalid batch")

// Tokenizer turns a raw batch body into operations.
type Tokenizer interface {
	Tokenize(body []byte) ([]batch.Operation, error)
}

// JSONTokenizer reads the JSON batch envelope:
//
//	{"operations":[
//	  {"method":"GET","url":"Employees('1')"},
//	  {"changeset":[{"id":"1","method":"POST","url":"Employees","body":{...}}]}]}
//
// String bodies are taken verbatim; any other JSON body is compacted.
type JSONTokenizer struct {
	// ServiceRoot prefixes each url to form the request's RawURI.
	ServiceRoot string
}

type envelope struct {
	Operations []envelopeOp `json:"operations"`
}

type envelopeOp struct {
	envelopeRequest
	ChangeSet json.RawMessage `json:"changeset"`
}

type envelopeRequest struct {
	ID      string            `json:"id"`
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers"`
	Body    json.RawMessage   `json:"body"`
}

var methods = map[string]bool{
	http.MethodGet:    true,
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodPatch:  true,
	http.MethodDelete: true,
}

func (t JSONTokenizer) Tokenize(body []byte) ([]batch.Operation, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBatch, err)
	}
	if len(env.Operations) == 0 {
		return nil, fmt.Errorf("%w: no operations", ErrInvalidBatch)
	}

	ops := make([]batch.Operation, 0, len(env.Operations))
	for i, op := range env.Operations {
		isRequest := op.Method != "" || op.URL != ""
		isChangeSet := len(op.ChangeSet) > 0
		switch {
		case isRequest && isChangeSet:
			return nil, fmt.Errorf("%w: operation %d is both a request and a changeset", ErrInvalidBatch, i)
		case isChangeSet:
			cs, err := t.changeSet(i, op.ChangeSet)
			if err != nil {
				return nil, err
			}
			ops = append(ops, cs)
		case isRequest:
			req, err := t.request(op.envelopeRequest)
			if err != nil {
				return nil, fmt.Errorf("%w: operation %d: %v", ErrInvalidBatch, i, err)
			}
			ops = append(ops, batch.Single{Request: req})
		default:
			return nil, fmt.Errorf("%w: operation %d is neither a request nor a changeset", ErrInvalidBatch, i)
		}
	}
	return ops, nil
}

func (t JSONTokenizer) changeSet(index int, raw json.RawMessage) (batch.ChangeSet, error) {
	var members []envelopeRequest
	if err := json.Unmarshal(raw, &members); err != nil {
		return batch.ChangeSet{}, fmt.Errorf("%w: operation %d: changeset: %v", ErrInvalidBatch, index, err)
	}
	if len(members) == 0 {
		return batch.ChangeSet{}, fmt.Errorf("%w: operation %d: empty changeset", ErrInvalidBatch, index)
	}
	cs := batch.ChangeSet{Requests: make([]batch.Request, 0, len(members))}
	for j, m := range members {
		if m.ID == "" {
			return batch.ChangeSet{}, fmt.Errorf("%w: operation %d member %d: missing id", ErrInvalidBatch, index, j)
		}
		req, err := t.request(m)
		if err != nil {
			return batch.ChangeSet{}, fmt.Errorf("%w: operation %d member %d: %v", ErrInvalidBatch, index, j, err)
		}
		if req.Method == http.MethodGet {
			return batch.ChangeSet{}, fmt.Errorf("%w: operation %d member %d: GET is not allowed in a changeset", ErrInvalidBatch, index, j)
		}
		cs.Requests = append(cs.Requests, req)
	}
	return cs, nil
}

func (t JSONTokenizer) request(er envelopeRequest) (batch.Request, error) {
	method := strings.ToUpper(er.Method)
	if !methods[method] {
		return batch.Request{}, fmt.Errorf("unsupported method %q", er.Method)
	}
	if er.URL == "" {
		return batch.Request{}, errors.New("missing url")
	}
	if strings.Contains(er.URL, "://") {
		return batch.Request{}, fmt.Errorf("url %q must be relative to the service root", er.URL)
	}
	body, err := decodeBody(er.Body)
	if err != nil {
		return batch.Request{}, err
	}

	rel := strings.TrimPrefix(er.URL, "/")
	path, query, _ := strings.Cut(rel, "?")
	h := make(http.Header, len(er.Headers)+1)
	for k, v := range er.Headers {
		h.Set(k, v)
	}
	if er.ID != "" {
		h.Set(batch.HeaderContentID, er.ID)
	}
	return batch.Request{
		Method:    method,
		Path:      path,
		Query:     query,
		RawURI:    joinRoot(t.ServiceRoot, rel),
		Header:    h,
		ContentID: er.ID,
		Body:      body,
	}, nil
}

func decodeBody(raw json.RawMessage) ([]byte, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("body: %v", err)
		}
		return []byte(s), nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil, fmt.Errorf("body: %v", err)
	}
	return buf.Bytes(), nil
}

func joinRoot(root, rel string) string {
	if root == "" {
		return rel
	}
	if !strings.HasSuffix(root, "/") {
		root += "/"
	}
	return root + rel
}
