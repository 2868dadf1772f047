package events

import "context"

// Member identifies the batch member a dispatcher call belongs to, so that
// events published below the dispatcher can be related to DispatchStart.
type Member struct {
	Operation int
	// Index is -1 for single operations.
	Index int
}

type memberKey struct{}

// WithMember returns a copy of ctx carrying m.
func WithMember(ctx context.Context, m Member) context.Context {
	return context.WithValue(ctx, memberKey{}, m)
}

// MemberFromContext returns the member stored by WithMember.
func MemberFromContext(ctx context.Context) (Member, bool) {
	m, ok := ctx.Value(memberKey{}).(Member)
	return m, ok
}
