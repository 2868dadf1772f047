// Package executor coordinates the execution of a batch: it dispatches every
// top-level operation through an injected Dispatcher, orders and runs change
// sets, rewrites forward references as resource identifiers become known, and
// returns one batch.ResponseGroup per operation in operation order.
//
// # Overview
//
// The executor never performs protocol work itself. A Dispatcher turns one
// batch.Request into a batch.Result; the executor decides what to dispatch,
// in which order, and when to stop.
//
// # Single operations
//
// A batch.Single is dispatched as is and wrapped in a batch.SingleResponse.
// A failing result does not affect sibling operations.
//
// # Change sets
//
// A change set moves through the states
//
//	Pending -> Ordering -> Executing(i) -> Executing(i+1) | Failed | Completed
//
//	A. Ordering
//	   - batch.Order validates the change set and computes the execution
//	     order. Unresolved references, cycles and duplicate correlation
//	     tokens fail the change set before anything is dispatched; the
//	     ordering error is reported in ChangeSetResponse.Err.
//
//	B. Executing
//	   - Before a request is dispatched, a forward reference whose token
//	     already maps to a resource identifier is rewritten with
//	     batch.Rewrite.
//	   - After dispatch, the result is tagged with the request's Content-ID
//	     when the dispatcher did not echo it, and a Location header becomes
//	     the resource identifier of the request's correlation token.
//	   - The first failing result (status >= 400) stops the change set. The
//	     response holds the results obtained so far, ending with the failure.
//	     No later member is dispatched. Undoing side effects of members that
//	     already succeeded is the dispatcher's concern.
//
// The token to resource map is private to one change set execution.
//
// # Locations
//
// Location values are turned into resource identifiers relative to the
// service root: a scheme and host are dropped and the configured service root
// path is trimmed, so "http://host/odata/Employees('1')" becomes
// "Employees('1')" when the service root is "/odata/".
//
// # Concurrency
//
// By default operations run one after another. WithConcurrency allows
// independent top-level operations to be dispatched in parallel; responses
// still come back in operation order, and the members of one change set are
// always dispatched strictly sequentially.
//
// # Errors
//
// Dispatcher errors are not returned to the caller. They become failing
// results: context.DeadlineExceeded maps to 504, context.Canceled to 503, and
// any other error to 500. Errors implementing StatusCoder choose their own
// status.
package executor
