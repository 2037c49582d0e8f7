// Package store persists failover state and decision history. The memory
// implementation backs standalone deployments and tests; the etcd
// implementation backs replicated deployments.
package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/failoverd/failoverd/pkg/failover"
)

// Memory is an in-process store. State writes use the same optimistic
// versioning contract as the etcd store so the state machine behaves
// identically in standalone mode.
type Memory struct {
	mu           sync.Mutex
	states       map[string]failover.InstanceState
	decisions    map[string][]failover.Decision
	historyLimit int
}

// NewMemory builds an empty in-process store. historyLimit bounds the
// per-instance decision history; zero means the default of 100.
func NewMemory(historyLimit int) *Memory {
	if historyLimit <= 0 {
		historyLimit = 100
	}
	return &Memory{
		states:       make(map[string]failover.InstanceState),
		decisions:    make(map[string][]failover.Decision),
		historyLimit: historyLimit,
	}
}

func (m *Memory) LoadState(_ context.Context, instanceID string) (failover.InstanceState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.states[instanceID]
	if !ok {
		return failover.InstanceState{}, failover.ErrStateNotFound
	}
	return state, nil
}

func (m *Memory) SaveState(_ context.Context, state failover.InstanceState) (failover.InstanceState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, exists := m.states[state.InstanceID]
	if exists && current.Version != state.Version {
		return failover.InstanceState{}, fmt.Errorf("save state for %s: %w", state.InstanceID, failover.ErrVersionConflict)
	}
	if !exists && state.Version != 0 {
		return failover.InstanceState{}, fmt.Errorf("save state for %s: %w", state.InstanceID, failover.ErrVersionConflict)
	}

	state.Version++
	m.states[state.InstanceID] = state
	return state, nil
}

func (m *Memory) AppendDecision(_ context.Context, decision failover.Decision) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	history := append(m.decisions[decision.InstanceID], decision)
	if len(history) > m.historyLimit {
		history = history[len(history)-m.historyLimit:]
	}
	m.decisions[decision.InstanceID] = history
	return nil
}

func (m *Memory) AnnotateDecision(_ context.Context, instanceID, decisionID string, mutate func(*failover.Decision) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	history := m.decisions[instanceID]
	for i := range history {
		if history[i].ID != decisionID {
			continue
		}
		return mutate(&history[i])
	}
	return fmt.Errorf("annotate decision %s for %s: not found", decisionID, instanceID)
}

// ListDecisions returns up to limit decisions, most recent first.
func (m *Memory) ListDecisions(_ context.Context, instanceID string, limit int) ([]failover.Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	history := m.decisions[instanceID]
	if limit <= 0 || limit > len(history) {
		limit = len(history)
	}
	out := make([]failover.Decision, 0, limit)
	for i := len(history) - 1; i >= len(history)-limit; i-- {
		out = append(out, history[i])
	}
	return out, nil
}
