package batch

// Operation is a top-level member of a batch: Single or ChangeSet.
type Operation interface {
	isOperation()
}

// Single is a request executed on its own.
type Single struct {
	Request Request
}

// ChangeSet is an atomic group of requests in client declaration order.
type ChangeSet struct {
	Requests []Request
}

func (Single) isOperation()    {}
func (ChangeSet) isOperation() {}
