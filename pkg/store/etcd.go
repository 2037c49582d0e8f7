package store

import (
	"context"
	"encoding/json"
	"fmt"
	"path"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/failoverd/failoverd/pkg/failover"
)

const annotateAttempts = 5

// EtcdClient is the slice of the etcd client API the store uses. It is
// satisfied by *clientv3.Client.
type EtcdClient interface {
	Get(ctx context.Context, key string, opts ...clientv3.OpOption) (*clientv3.GetResponse, error)
	Txn(ctx context.Context) clientv3.Txn
}

// Etcd persists instance state and decision history in etcd. Instance state
// versions map onto etcd mod revisions, so concurrent writers from other
// engine nodes surface as ErrVersionConflict instead of lost updates.
type Etcd struct {
	client       EtcdClient
	prefix       string
	historyLimit int
}

// NewEtcd builds a store on an existing etcd client. All keys live under
// prefix. historyLimit bounds the per-instance decision history; zero means
// the default of 100.
func NewEtcd(client EtcdClient, prefix string, historyLimit int) *Etcd {
	if prefix == "" {
		prefix = "/failoverd"
	}
	if historyLimit <= 0 {
		historyLimit = 100
	}
	return &Etcd{client: client, prefix: prefix, historyLimit: historyLimit}
}

func (e *Etcd) stateKey(instanceID string) string {
	return path.Join(e.prefix, "state", instanceID)
}

func (e *Etcd) decisionsKey(instanceID string) string {
	return path.Join(e.prefix, "decisions", instanceID)
}

func (e *Etcd) LoadState(ctx context.Context, instanceID string) (failover.InstanceState, error) {
	resp, err := e.client.Get(ctx, e.stateKey(instanceID))
	if err != nil {
		return failover.InstanceState{}, fmt.Errorf("load state for %s: %w", instanceID, err)
	}
	if len(resp.Kvs) == 0 {
		return failover.InstanceState{}, failover.ErrStateNotFound
	}

	var state failover.InstanceState
	if err := json.Unmarshal(resp.Kvs[0].Value, &state); err != nil {
		return failover.InstanceState{}, fmt.Errorf("decode state for %s: %w", instanceID, err)
	}
	state.Version = resp.Kvs[0].ModRevision
	return state, nil
}

// SaveState commits the record only if the stored mod revision still matches
// the record's version. A version of zero asserts the key does not exist.
func (e *Etcd) SaveState(ctx context.Context, state failover.InstanceState) (failover.InstanceState, error) {
	key := e.stateKey(state.InstanceID)

	payload := state
	payload.Version = 0
	value, err := json.Marshal(payload)
	if err != nil {
		return failover.InstanceState{}, fmt.Errorf("encode state for %s: %w", state.InstanceID, err)
	}

	var guard clientv3.Cmp
	if state.Version == 0 {
		guard = clientv3.Compare(clientv3.CreateRevision(key), "=", 0)
	} else {
		guard = clientv3.Compare(clientv3.ModRevision(key), "=", state.Version)
	}

	resp, err := e.client.Txn(ctx).If(guard).Then(clientv3.OpPut(key, string(value))).Commit()
	if err != nil {
		return failover.InstanceState{}, fmt.Errorf("save state for %s: %w", state.InstanceID, err)
	}
	if !resp.Succeeded {
		return failover.InstanceState{}, fmt.Errorf("save state for %s: %w", state.InstanceID, failover.ErrVersionConflict)
	}

	state.Version = resp.Header.Revision
	return state, nil
}

func (e *Etcd) AppendDecision(ctx context.Context, decision failover.Decision) error {
	return e.mutateHistory(ctx, decision.InstanceID, func(history []failover.Decision) ([]failover.Decision, error) {
		history = append(history, decision)
		if len(history) > e.historyLimit {
			history = history[len(history)-e.historyLimit:]
		}
		return history, nil
	})
}

func (e *Etcd) AnnotateDecision(ctx context.Context, instanceID, decisionID string, mutate func(*failover.Decision) error) error {
	return e.mutateHistory(ctx, instanceID, func(history []failover.Decision) ([]failover.Decision, error) {
		for i := range history {
			if history[i].ID != decisionID {
				continue
			}
			if err := mutate(&history[i]); err != nil {
				return nil, err
			}
			return history, nil
		}
		return nil, fmt.Errorf("decision %s not found", decisionID)
	})
}

// mutateHistory is a guarded read-modify-write over the whole per-instance
// history value. Contention is rare since decisions are infrequent, so a
// handful of retries is enough.
func (e *Etcd) mutateHistory(ctx context.Context, instanceID string, mutate func([]failover.Decision) ([]failover.Decision, error)) error {
	key := e.decisionsKey(instanceID)

	for attempt := 0; attempt < annotateAttempts; attempt++ {
		resp, err := e.client.Get(ctx, key)
		if err != nil {
			return fmt.Errorf("load decisions for %s: %w", instanceID, err)
		}

		var history []failover.Decision
		var modRevision int64
		if len(resp.Kvs) > 0 {
			if err := json.Unmarshal(resp.Kvs[0].Value, &history); err != nil {
				return fmt.Errorf("decode decisions for %s: %w", instanceID, err)
			}
			modRevision = resp.Kvs[0].ModRevision
		}

		updated, err := mutate(history)
		if err != nil {
			return fmt.Errorf("decisions for %s: %w", instanceID, err)
		}
		value, err := json.Marshal(updated)
		if err != nil {
			return fmt.Errorf("encode decisions for %s: %w", instanceID, err)
		}

		var guard clientv3.Cmp
		if modRevision == 0 {
			guard = clientv3.Compare(clientv3.CreateRevision(key), "=", 0)
		} else {
			guard = clientv3.Compare(clientv3.ModRevision(key), "=", modRevision)
		}
		txn, err := e.client.Txn(ctx).If(guard).Then(clientv3.OpPut(key, string(value))).Commit()
		if err != nil {
			return fmt.Errorf("save decisions for %s: %w", instanceID, err)
		}
		if txn.Succeeded {
			return nil
		}
	}
	return fmt.Errorf("save decisions for %s: too many concurrent writers", instanceID)
}

func (e *Etcd) ListDecisions(ctx context.Context, instanceID string, limit int) ([]failover.Decision, error) {
	resp, err := e.client.Get(ctx, e.decisionsKey(instanceID))
	if err != nil {
		return nil, fmt.Errorf("load decisions for %s: %w", instanceID, err)
	}
	if len(resp.Kvs) == 0 {
		return nil, nil
	}

	var history []failover.Decision
	if err := json.Unmarshal(resp.Kvs[0].Value, &history); err != nil {
		return nil, fmt.Errorf("decode decisions for %s: %w", instanceID, err)
	}
	if limit <= 0 || limit > len(history) {
		limit = len(history)
	}
	out := make([]failover.Decision, 0, limit)
	for i := len(history) - 1; i >= len(history)-limit; i-- {
		out = append(out, history[i])
	}
	return out, nil
}
