package executor

import (
	"context"

	"github.com/hanpama/odatabatch/internal/batch"
)

// Dispatcher performs one protocol operation for a single batch request.
//
// General contract
//   - Dispatch is called once per request the executor decides to run. For
//     change sets the executor calls it sequentially, in execution order, and
//     never after a member has failed.
//   - A request-level failure (not found, validation, conflict) is reported as
//     a Result with a status code >= 400 and a nil error. Returning an error is
//     reserved for failures to perform the operation at all (transport errors,
//     timeouts); the executor converts those into failing results.
//   - A Result may carry a Location header naming the resource the request
//     created or affected. Within a change set that location resolves forward
//     references to the request's Content-ID.
//   - Implementations must honour ctx cancellation and must be safe for
//     concurrent use when the executor runs with concurrency > 1.
//   - Implementations must not mutate the request.
type Dispatcher interface {
	Dispatch(ctx context.Context, req batch.Request) (batch.Result, error)
}

// DispatcherFunc adapts a function to the Dispatcher interface.
type DispatcherFunc func(ctx context.Context, req batch.Request) (batch.Result, error)

func (f DispatcherFunc) Dispatch(ctx context.Context, req batch.Request) (batch.Result, error) {
	return f(ctx, req)
}

// StatusCoder may be implemented by dispatcher errors to pick the status of
// the failing result the executor synthesizes.
type StatusCoder interface {
	HTTPStatus() int
}
