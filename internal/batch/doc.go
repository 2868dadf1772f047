// Package batch holds the value types of a batch exchange and the two pure
// functions that make change sets executable: Order and Rewrite.
//
// # Model
//
// A batch is an ordered list of Operations. An Operation is either a Single
// request or a ChangeSet, an ordered group of requests that succeed or stop
// together. Requests inside a change set may label themselves with a
// correlation token (their Content-ID) and may start their path with a
// forward reference "$<token>" to the resource another request of the same
// change set is going to create.
//
// Results mirror operations: a SingleResponse wraps one Result, a
// ChangeSetResponse carries the results of one change set in execution order
// together with its terminal state.
//
// # Ordering
//
// Order performs a stable repeated-scan topological sort. Each pass walks the
// pending requests left to right and emits every request whose reference is
// already satisfied, so independent requests keep their relative order and
// surface as early as possible. A pass that emits nothing while requests are
// pending reports ErrDependencyCycle. References to tokens no sibling declares
// are rejected up front with ErrUnresolvedReference, and a token declared
// twice is rejected with ErrDuplicateCorrelationToken.
//
// # Rewriting
//
// Rewrite replaces the leading "$<token>" segment of a request path with the
// resource identifier the referenced request produced. It only ever touches
// the first segment; it is not a textual substitution.
package batch
