package executor

import "errors"

// ErrInvalidStatus is reported when a dispatcher returns a result without a
// valid HTTP status code. Such results are replaced by a 500 failure.
var ErrInvalidStatus = errors.New("executor: dispatcher returned invalid status")
