package failover

import "context"

// StateStore persists per-instance orchestration state with optimistic
// concurrency. Save must fail with ErrVersionConflict when the stored
// version differs from the given record's, and return the record with the
// new version on success.
type StateStore interface {
	LoadState(ctx context.Context, instanceID string) (InstanceState, error)
	SaveState(ctx context.Context, state InstanceState) (InstanceState, error)
}

// DecisionStore keeps a bounded append-only decision history per instance.
// Annotate applies an in-place mutation to an existing record, for execution
// outcomes and post-failover validation.
type DecisionStore interface {
	AppendDecision(ctx context.Context, decision Decision) error
	AnnotateDecision(ctx context.Context, instanceID, decisionID string, mutate func(*Decision) error) error
	ListDecisions(ctx context.Context, instanceID string, limit int) ([]Decision, error)
}
