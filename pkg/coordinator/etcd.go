package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// EtcdClient is the slice of the etcd client API the coordinator uses. It is
// satisfied by *clientv3.Client.
type EtcdClient interface {
	Grant(ctx context.Context, ttl int64) (*clientv3.LeaseGrantResponse, error)
	KeepAliveOnce(ctx context.Context, id clientv3.LeaseID) (*clientv3.LeaseKeepAliveResponse, error)
	Revoke(ctx context.Context, id clientv3.LeaseID) (*clientv3.LeaseRevokeResponse, error)
	Txn(ctx context.Context) clientv3.Txn
}

// Etcd coordinates leadership through a single lease-attached key. The key
// can only be created while absent, so acquisition is atomic; it disappears
// with the lease, so a holder that stops renewing is silently replaced.
type Etcd struct {
	client EtcdClient
	key    string
	node   string
	ttl    time.Duration

	mu      sync.Mutex
	leaseID clientv3.LeaseID
	leader  bool
}

// NewEtcd builds a coordinator on an existing etcd client. node identifies
// this engine process and becomes the key's value while it leads.
func NewEtcd(client EtcdClient, key, node string, ttl time.Duration) *Etcd {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Etcd{
		client: client,
		key:    key,
		node:   node,
		ttl:    ttl,
	}
}

func (e *Etcd) IsLeader() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.leader
}

// TryAcquireOrRenew renews the held lease, or attempts a fresh acquisition
// when none is held or renewal fails. A failed renewal demotes immediately:
// returning stale leadership is worse than a missed cycle.
func (e *Etcd) TryAcquireOrRenew(ctx context.Context) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.leader && e.leaseID != clientv3.NoLease {
		if _, err := e.client.KeepAliveOnce(ctx, e.leaseID); err == nil {
			return true, nil
		}
		e.leader = false
		e.leaseID = clientv3.NoLease
	}

	return e.acquireLocked(ctx)
}

func (e *Etcd) acquireLocked(ctx context.Context) (bool, error) {
	grant, err := e.client.Grant(ctx, int64(e.ttl.Seconds()))
	if err != nil {
		return false, fmt.Errorf("grant lease: %w", err)
	}

	resp, err := e.client.Txn(ctx).
		If(clientv3.Compare(clientv3.CreateRevision(e.key), "=", 0)).
		Then(clientv3.OpPut(e.key, e.node, clientv3.WithLease(grant.ID))).
		Commit()
	if err != nil {
		// Best effort: do not leak the lease on a failed transaction.
		revokeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, _ = e.client.Revoke(revokeCtx, grant.ID)
		return false, fmt.Errorf("acquire leader key: %w", err)
	}
	if !resp.Succeeded {
		_, _ = e.client.Revoke(ctx, grant.ID)
		return false, nil
	}

	e.leaseID = grant.ID
	e.leader = true
	return true, nil
}

// Resign revokes the lease, removing the key so a successor can acquire
// without waiting for expiry.
func (e *Etcd) Resign(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.leaseID == clientv3.NoLease {
		return nil
	}
	leaseID := e.leaseID
	e.leaseID = clientv3.NoLease
	e.leader = false

	if _, err := e.client.Revoke(ctx, leaseID); err != nil {
		return fmt.Errorf("revoke lease: %w", err)
	}
	return nil
}
