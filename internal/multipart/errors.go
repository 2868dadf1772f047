package multipart

import "errors"

var (
	// ErrMissingContentID is returned when a change-set result cannot be
	// correlated with its request.
	ErrMissingContentID = errors.New("multipart: change set result without Content-ID")
	// ErrBoundaryCollision is returned when a boundary occurs inside the
	// content it would delimit.
	ErrBoundaryCollision = errors.New("multipart: boundary occurs in content")
	// ErrEmptyChangeSet is reported in place of a change set that has
	// neither results nor an ordering error.
	ErrEmptyChangeSet = errors.New("multipart: change set without results")
)
