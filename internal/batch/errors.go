package batch

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnresolvedReference indicates a change-set request references a
	// correlation token that no sibling request declares.
	ErrUnresolvedReference = errors.New("batch: unresolved reference")
	// ErrDependencyCycle indicates the references of a change set cannot be
	// satisfied in any order, including self references.
	ErrDependencyCycle = errors.New("batch: dependency cycle")
	// ErrDuplicateCorrelationToken indicates two requests of one change set
	// declare the same correlation token.
	ErrDuplicateCorrelationToken = errors.New("batch: duplicate correlation token")
)

// OrderError reports why a change set could not be ordered. It unwraps to one
// of the sentinel errors above.
type OrderError struct {
	Err error
	// Token is the offending correlation token, if any.
	Token string
	// Path is the path of the first offending request, if any.
	Path string
	// Pending lists the paths still blocked when a cycle was detected.
	Pending []string
}

func (e *OrderError) Error() string {
	switch {
	case errors.Is(e.Err, ErrDependencyCycle):
		return fmt.Sprintf("%v: cannot order [%s]", e.Err, strings.Join(e.Pending, ", "))
	case e.Path != "":
		return fmt.Sprintf("%v: %q in %s", e.Err, e.Token, e.Path)
	default:
		return fmt.Sprintf("%v: %q", e.Err, e.Token)
	}
}

func (e *OrderError) Unwrap() error { return e.Err }
