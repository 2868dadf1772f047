package executor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hanpama/odatabatch/internal/batch"
	eventbus "github.com/hanpama/odatabatch/internal/eventbus"
	events "github.com/hanpama/odatabatch/internal/events"
)

// Options configures an Executor.
type Options struct {
	// ServiceRoot is the path under which resources live, e.g. "/odata/".
	// It is trimmed from Location values to obtain resource identifiers.
	ServiceRoot string

	// Concurrency bounds how many top-level operations run at once.
	// Values below 2 run operations sequentially.
	Concurrency int
}

type Option func(*Options)

func WithServiceRoot(root string) Option { return func(o *Options) { o.ServiceRoot = root } }
func WithConcurrency(n int) Option      { return func(o *Options) { o.Concurrency = n } }

type Executor struct {
	dispatcher Dispatcher
	opt        Options
}

func NewExecutor(dispatcher Dispatcher, opts ...Option) *Executor {
	var op Options
	for _, f := range opts {
		f(&op)
	}
	return &Executor{dispatcher: dispatcher, opt: op}
}

// Run executes the operations of one batch and returns one response group per
// operation, in operation order.
func (e *Executor) Run(ctx context.Context, operations []batch.Operation) []batch.ResponseGroup {
	start := time.Now()
	eventbus.Publish(ctx, events.BatchStart{Operations: len(operations)})

	groups := make([]batch.ResponseGroup, len(operations))
	if e.opt.Concurrency > 1 && len(operations) > 1 {
		sem := make(chan struct{}, e.opt.Concurrency)
		var wg sync.WaitGroup
		wg.Add(len(operations))
		for i, op := range operations {
			sem <- struct{}{}
			go func() {
				defer func() {
					<-sem
					wg.Done()
				}()
				groups[i] = e.runOperation(ctx, i, op)
			}()
		}
		wg.Wait()
	} else {
		for i, op := range operations {
			groups[i] = e.runOperation(ctx, i, op)
		}
	}

	failed := 0
	for _, g := range groups {
		if cs, ok := g.(batch.ChangeSetResponse); ok && cs.State == batch.Failed {
			failed++
		}
	}
	eventbus.Publish(ctx, events.BatchFinish{Operations: len(operations), FailedChangeSets: failed, Duration: time.Since(start)})
	return groups
}

func (e *Executor) runOperation(ctx context.Context, index int, op batch.Operation) batch.ResponseGroup {
	switch op := op.(type) {
	case batch.Single:
		return batch.SingleResponse{Result: e.dispatch(ctx, index, -1, op.Request)}
	case batch.ChangeSet:
		return e.runChangeSet(ctx, index, op.Requests)
	}
	panic("executor: unknown operation type")
}

func (e *Executor) runChangeSet(ctx context.Context, index int, requests []batch.Request) (resp batch.ChangeSetResponse) {
	start := time.Now()
	eventbus.Publish(ctx, events.ChangeSetStart{Operation: index, Size: len(requests)})
	defer func() {
		eventbus.Publish(ctx, events.ChangeSetFinish{
			Operation:  index,
			Size:       len(requests),
			Dispatched: len(resp.Results),
			State:      resp.State,
			Err:        resp.Err,
			Duration:   time.Since(start),
		})
	}()

	ordered, err := batch.Order(requests)
	if err != nil {
		return batch.ChangeSetResponse{State: batch.Failed, Err: err}
	}

	resources := make(map[string]string, len(ordered))
	results := make([]batch.Result, 0, len(ordered))
	for i, req := range ordered {
		if tok, ok := req.ForwardRef(); ok {
			if id, known := resources[tok]; known {
				req = batch.Rewrite(req, tok, id)
			}
		}
		res := e.dispatch(ctx, index, i, req)
		if req.ContentID != "" && res.ContentID() == "" {
			res = res.WithHeader(batch.HeaderContentID, req.ContentID)
		}
		results = append(results, res)
		if res.Failed() {
			return batch.ChangeSetResponse{Results: results, State: batch.Failed}
		}
		if req.ContentID != "" {
			if loc := res.Location(); loc != "" {
				resources[req.ContentID] = e.resourceID(loc)
			}
		}
	}
	return batch.ChangeSetResponse{Results: results, State: batch.Completed}
}

func (e *Executor) dispatch(ctx context.Context, op, member int, req batch.Request) batch.Result {
	ctx = events.WithMember(ctx, events.Member{Operation: op, Index: member})
	start := time.Now()
	eventbus.Publish(ctx, events.DispatchStart{Operation: op, Member: member, Method: req.Method, Path: req.Path, ContentID: req.ContentID})

	res, err := e.dispatcher.Dispatch(ctx, req)
	switch {
	case err != nil:
		res = errorResult(err)
	case res.StatusCode < 100 || res.StatusCode > 999:
		err = fmt.Errorf("%w %d", ErrInvalidStatus, res.StatusCode)
		res = errorResult(err)
	}
	eventbus.Publish(ctx, events.DispatchFinish{
		Operation: op,
		Member:    member,
		Method:    req.Method,
		Path:      req.Path,
		ContentID: req.ContentID,
		Status:    res.StatusCode,
		Err:       err,
		Duration:  time.Since(start),
	})
	return res
}

func errorResult(err error) batch.Result {
	status := http.StatusInternalServerError
	var sc StatusCoder
	switch {
	case errors.As(err, &sc):
		status = sc.HTTPStatus()
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		status = http.StatusServiceUnavailable
	}
	return batch.ErrorResult(status, err.Error())
}

// resourceID converts a Location value into an identifier relative to the
// service root.
func (e *Executor) resourceID(location string) string {
	id := location
	if i := strings.Index(id, "://"); i >= 0 {
		rest := id[i+3:]
		if j := strings.IndexByte(rest, '/'); j >= 0 {
			id = rest[j:]
		} else {
			id = ""
		}
	}
	if root := e.opt.ServiceRoot; root != "" {
		if !strings.HasSuffix(root, "/") {
			root += "/"
		}
		if !strings.HasPrefix(root, "/") {
			root = "/" + root
		}
		if trimmed, ok := strings.CutPrefix(id, root); ok {
			return trimmed
		}
	}
	return strings.TrimPrefix(id, "/")
}
