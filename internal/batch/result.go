package batch

import "net/http"

// Result is the outcome of dispatching one Request.
type Result struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Location returns the identifier of the resource created or affected by the
// request, if the dispatcher reported one.
func (r Result) Location() string { return r.Header.Get("Location") }

// ContentID returns the correlation token echoed on the result.
func (r Result) ContentID() string { return r.Header.Get(HeaderContentID) }

// Failed reports whether the result denotes a failed request.
func (r Result) Failed() bool { return r.StatusCode >= 400 }

// WithHeader returns a copy of r with header key set to value.
func (r Result) WithHeader(key, value string) Result {
	out := r
	if r.Header != nil {
		out.Header = r.Header.Clone()
	} else {
		out.Header = http.Header{}
	}
	out.Header.Set(key, value)
	return out
}

// ErrorResult builds a plain-text failing result.
func ErrorResult(status int, message string) Result {
	body := []byte(message)
	h := http.Header{}
	h.Set("Content-Type", "text/plain; charset=utf-8")
	return Result{StatusCode: status, Header: h, Body: body}
}

// State is the terminal state of a change set.
type State int

const (
	// Completed means every member was dispatched and succeeded.
	Completed State = iota
	// Failed means ordering failed or a member returned a failing result.
	Failed
)

func (s State) String() string {
	switch s {
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// ResponseGroup mirrors Operation: SingleResponse or ChangeSetResponse.
type ResponseGroup interface {
	isResponseGroup()
}

// SingleResponse is the non-atomic outcome of a Single operation.
type SingleResponse struct {
	Result Result
}

// ChangeSetResponse is the atomic outcome of a ChangeSet operation. Results
// are in execution order and end with the failing member when State is
// Failed. Err is set when the change set could not be ordered; nothing was
// dispatched in that case.
type ChangeSetResponse struct {
	Results []Result
	State   State
	Err     error
}

func (SingleResponse) isResponseGroup()    {}
func (ChangeSetResponse) isResponseGroup() {}
