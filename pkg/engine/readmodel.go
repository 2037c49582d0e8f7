package engine

import (
	"context"
	"sort"

	"github.com/failoverd/failoverd/pkg/alert"
	"github.com/failoverd/failoverd/pkg/failover"
	"github.com/failoverd/failoverd/pkg/health"
)

// InstanceIDs lists the configured instances in stable order.
func (e *Engine) InstanceIDs() []string {
	ids := make([]string, 0, len(e.instances))
	for id := range e.instances {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// HealthSnapshots returns the current aggregate for every tracked stream.
func (e *Engine) HealthSnapshots() []health.Snapshot {
	return e.tracker.SnapshotAll()
}

// InstanceHealth returns the aggregates for one instance.
func (e *Engine) InstanceHealth(instanceID string) []health.Snapshot {
	return e.tracker.SnapshotInstance(instanceID)
}

// InstanceState returns the persisted orchestration state for one instance.
func (e *Engine) InstanceState(ctx context.Context, instanceID string) (failover.InstanceState, error) {
	if _, ok := e.instances[instanceID]; !ok {
		return failover.InstanceState{}, failover.ErrUnknownInstance
	}
	return e.machine.State(ctx, instanceID)
}

// DecisionHistory returns up to limit decisions, most recent first.
func (e *Engine) DecisionHistory(ctx context.Context, instanceID string, limit int) ([]failover.Decision, error) {
	if _, ok := e.instances[instanceID]; !ok {
		return nil, failover.ErrUnknownInstance
	}
	if e.decisions == nil {
		return nil, nil
	}
	return e.decisions.ListDecisions(ctx, instanceID, limit)
}

// AlertHistory returns the retained alerts, most recent first.
func (e *Engine) AlertHistory(limit int) []alert.Alert {
	return e.alerts.History(limit)
}

// IsLeader reports whether this node currently holds the leader lease.
func (e *Engine) IsLeader() bool {
	return e.coord.IsLeader()
}
