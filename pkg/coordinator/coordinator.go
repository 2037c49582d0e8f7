// Package coordinator elects a single engine node to commit failovers.
//
// Leadership is lease-based: acquisition is one atomic conditional write,
// renewal succeeds only for the current holder, and a holder that misses
// renewal before the lease expires silently loses leadership. Losing the
// lease is a demotion, never a crash.
package coordinator

import "context"

// Coordinator answers and maintains this node's leadership.
type Coordinator interface {
	// IsLeader reports the last known leadership state without I/O.
	IsLeader() bool
	// TryAcquireOrRenew attempts to take or extend the lease and returns
	// whether this node leads afterwards.
	TryAcquireOrRenew(ctx context.Context) (bool, error)
	// Resign releases the lease so a successor can take over immediately.
	Resign(ctx context.Context) error
}

// Static is the standalone-mode coordinator: a single engine node that
// always leads.
type Static struct{}

func NewStatic() *Static {
	return &Static{}
}

func (*Static) IsLeader() bool {
	return true
}

func (*Static) TryAcquireOrRenew(context.Context) (bool, error) {
	return true, nil
}

func (*Static) Resign(context.Context) error {
	return nil
}
