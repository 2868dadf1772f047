package batch

// Order returns the requests of one change set in an execution order that
// satisfies every forward reference. Requests become ready once the token
// they reference has been placed; ready requests are emitted in their
// original relative order.
//
// The input slice is not modified.
func Order(requests []Request) ([]Request, error) {
	declared := make(map[string]struct{}, len(requests))
	for _, r := range requests {
		if r.ContentID == "" {
			continue
		}
		if _, dup := declared[r.ContentID]; dup {
			return nil, &OrderError{Err: ErrDuplicateCorrelationToken, Token: r.ContentID, Path: r.Path}
		}
		declared[r.ContentID] = struct{}{}
	}
	for _, r := range requests {
		if tok, ok := r.ForwardRef(); ok {
			if _, found := declared[tok]; !found {
				return nil, &OrderError{Err: ErrUnresolvedReference, Token: tok, Path: r.Path}
			}
		}
	}

	pending := append([]Request(nil), requests...)
	resolved := make(map[string]struct{}, len(requests))
	out := make([]Request, 0, len(requests))
	for len(pending) > 0 {
		blocked := pending[:0:0]
		for _, r := range pending {
			if tok, ok := r.ForwardRef(); ok {
				if _, ready := resolved[tok]; !ready {
					blocked = append(blocked, r)
					continue
				}
			}
			out = append(out, r)
			if r.ContentID != "" {
				resolved[r.ContentID] = struct{}{}
			}
		}
		if len(blocked) == len(pending) {
			paths := make([]string, len(blocked))
			for i, r := range blocked {
				paths[i] = r.Path
			}
			return nil, &OrderError{Err: ErrDependencyCycle, Pending: paths}
		}
		pending = blocked
	}
	return out, nil
}
