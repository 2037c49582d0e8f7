package coordinator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	pb "go.etcd.io/etcd/api/v3/etcdserverpb"
	clientv3 "go.etcd.io/etcd/client/v3"
)

// fakeCluster is an in-memory stand-in for the slice of etcd the coordinator
// uses: leases, lease-attached keys, and create-revision guarded puts. Puts
// attach to the most recently granted lease, which matches the coordinator's
// grant-then-put sequence.
type fakeCluster struct {
	mu        sync.Mutex
	rev       int64
	nextID    clientv3.LeaseID
	lastGrant clientv3.LeaseID
	kvs       map[string]fakeEntry
	leases    map[clientv3.LeaseID]bool
	grants    int

	grantErr     error
	keepAliveErr error
	txnErr       error
}

type fakeEntry struct {
	value     string
	createRev int64
	modRev    int64
	lease     clientv3.LeaseID
}

func newFakeCluster() *fakeCluster {
	return &fakeCluster{
		kvs:    make(map[string]fakeEntry),
		leases: make(map[clientv3.LeaseID]bool),
	}
}

func (f *fakeCluster) Grant(ctx context.Context, ttl int64) (*clientv3.LeaseGrantResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.grantErr != nil {
		return nil, f.grantErr
	}
	f.grants++
	f.nextID++
	f.leases[f.nextID] = true
	f.lastGrant = f.nextID
	return &clientv3.LeaseGrantResponse{ID: f.nextID, TTL: ttl}, nil
}

func (f *fakeCluster) KeepAliveOnce(ctx context.Context, id clientv3.LeaseID) (*clientv3.LeaseKeepAliveResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.keepAliveErr != nil {
		return nil, f.keepAliveErr
	}
	if !f.leases[id] {
		return nil, errors.New("etcdserver: requested lease not found")
	}
	return &clientv3.LeaseKeepAliveResponse{ID: id}, nil
}

func (f *fakeCluster) Revoke(ctx context.Context, id clientv3.LeaseID) (*clientv3.LeaseRevokeResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dropLeaseLocked(id)
	return &clientv3.LeaseRevokeResponse{}, nil
}

func (f *fakeCluster) Txn(ctx context.Context) clientv3.Txn {
	return &fakeClusterTxn{cluster: f}
}

func (f *fakeCluster) dropLeaseLocked(id clientv3.LeaseID) {
	delete(f.leases, id)
	for key, entry := range f.kvs {
		if entry.lease == id {
			delete(f.kvs, key)
		}
	}
}

// expireLeases simulates TTL expiry: every lease and its keys disappear.
func (f *fakeCluster) expireLeases() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id := range f.leases {
		f.dropLeaseLocked(id)
	}
}

// occupy installs a competitor's leader key under a fresh lease.
func (f *fakeCluster) occupy(key, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.leases[f.nextID] = true
	f.rev++
	f.kvs[key] = fakeEntry{value: value, createRev: f.rev, modRev: f.rev, lease: f.nextID}
}

func (f *fakeCluster) holder(key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry, ok := f.kvs[key]
	return entry.value, ok
}

func (f *fakeCluster) leaseCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.leases)
}

type fakeClusterTxn struct {
	cluster *fakeCluster
	cmps    []clientv3.Cmp
	then    []clientv3.Op
}

func (t *fakeClusterTxn) If(cs ...clientv3.Cmp) clientv3.Txn {
	t.cmps = append(t.cmps, cs...)
	return t
}

func (t *fakeClusterTxn) Then(ops ...clientv3.Op) clientv3.Txn {
	t.then = append(t.then, ops...)
	return t
}

func (t *fakeClusterTxn) Else(ops ...clientv3.Op) clientv3.Txn {
	return t
}

func (t *fakeClusterTxn) Commit() (*clientv3.TxnResponse, error) {
	f := t.cluster
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.txnErr != nil {
		return nil, f.txnErr
	}
	succeeded := true
	for _, cmp := range t.cmps {
		guard := pb.Compare(cmp)
		entry := f.kvs[string(guard.Key)]
		switch {
		case guard.Target == pb.Compare_CREATE && guard.Result == pb.Compare_EQUAL:
			succeeded = succeeded && entry.createRev == guard.GetCreateRevision()
		default:
			succeeded = false
		}
	}
	if succeeded {
		for _, op := range t.then {
			if !op.IsPut() {
				continue
			}
			key := string(op.KeyBytes())
			f.rev++
			entry, ok := f.kvs[key]
			if !ok {
				entry.createRev = f.rev
			}
			entry.value = string(op.ValueBytes())
			entry.modRev = f.rev
			entry.lease = f.lastGrant
			f.kvs[key] = entry
		}
	}
	return &clientv3.TxnResponse{Succeeded: succeeded, Header: &pb.ResponseHeader{Revision: f.rev}}, nil
}

func TestEtcdAcquiresWhenKeyAbsent(t *testing.T) {
	cluster := newFakeCluster()
	coord := NewEtcd(cluster, "/leader", "node-a", 30*time.Second)

	leader, err := coord.TryAcquireOrRenew(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !leader || !coord.IsLeader() {
		t.Error("expected acquisition to succeed against an empty cluster")
	}
	if value, ok := cluster.holder("/leader"); !ok || value != "node-a" {
		t.Errorf("expected leader key to record node-a, got %q (present=%v)", value, ok)
	}
}

func TestEtcdAcquisitionRaceLosesCleanly(t *testing.T) {
	cluster := newFakeCluster()
	cluster.occupy("/leader", "node-b")
	coord := NewEtcd(cluster, "/leader", "node-a", 30*time.Second)

	leader, err := coord.TryAcquireOrRenew(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if leader || coord.IsLeader() {
		t.Error("expected acquisition to fail while another node holds the key")
	}
	if value, _ := cluster.holder("/leader"); value != "node-b" {
		t.Errorf("expected node-b to keep the key, got %q", value)
	}
	// The losing grant must be revoked, leaving only the holder's lease.
	if got := cluster.leaseCount(); got != 1 {
		t.Errorf("expected the losing lease to be revoked, %d leases remain", got)
	}
}

func TestEtcdRenewalKeepsLeadershipWithoutRegranting(t *testing.T) {
	cluster := newFakeCluster()
	coord := NewEtcd(cluster, "/leader", "node-a", 30*time.Second)
	ctx := context.Background()

	if _, err := coord.TryAcquireOrRenew(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	leader, err := coord.TryAcquireOrRenew(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !leader {
		t.Error("expected renewal to keep leadership")
	}
	if cluster.grants != 1 {
		t.Errorf("expected a single grant across acquire and renew, got %d", cluster.grants)
	}
}

func TestEtcdFailedRenewalDemotesThenReacquires(t *testing.T) {
	cluster := newFakeCluster()
	coord := NewEtcd(cluster, "/leader", "node-a", 30*time.Second)
	ctx := context.Background()

	if _, err := coord.TryAcquireOrRenew(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cluster.expireLeases()

	leader, err := coord.TryAcquireOrRenew(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !leader {
		t.Error("expected reacquisition after lease expiry, key is free")
	}
	if cluster.grants != 2 {
		t.Errorf("expected a fresh grant after expiry, got %d grants", cluster.grants)
	}
}

func TestEtcdFailedRenewalWithNewHolderStaysFollower(t *testing.T) {
	cluster := newFakeCluster()
	coord := NewEtcd(cluster, "/leader", "node-a", 30*time.Second)
	ctx := context.Background()

	if _, err := coord.TryAcquireOrRenew(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cluster.expireLeases()
	cluster.occupy("/leader", "node-b")

	leader, err := coord.TryAcquireOrRenew(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if leader || coord.IsLeader() {
		t.Error("expected demotion when a new holder took the key")
	}
}

func TestEtcdResignReleasesKey(t *testing.T) {
	cluster := newFakeCluster()
	coord := NewEtcd(cluster, "/leader", "node-a", 30*time.Second)
	ctx := context.Background()

	if _, err := coord.TryAcquireOrRenew(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := coord.Resign(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if coord.IsLeader() {
		t.Error("expected resign to drop leadership")
	}
	if _, ok := cluster.holder("/leader"); ok {
		t.Error("expected resign to remove the leader key")
	}
	// Resigning without a lease is a no-op.
	if err := coord.Resign(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestEtcdGrantFailureSurfaces(t *testing.T) {
	cluster := newFakeCluster()
	cluster.grantErr = errors.New("etcdserver: too many requests")
	coord := NewEtcd(cluster, "/leader", "node-a", 30*time.Second)

	leader, err := coord.TryAcquireOrRenew(context.Background())
	if err == nil {
		t.Fatal("expected grant failure to surface, got nil")
	}
	if leader || coord.IsLeader() {
		t.Error("expected no leadership after a failed grant")
	}
}

func TestEtcdTxnFailureRevokesLease(t *testing.T) {
	cluster := newFakeCluster()
	cluster.txnErr = errors.New("etcdserver: request timed out")
	coord := NewEtcd(cluster, "/leader", "node-a", 30*time.Second)

	leader, err := coord.TryAcquireOrRenew(context.Background())
	if err == nil {
		t.Fatal("expected transaction failure to surface, got nil")
	}
	if leader {
		t.Error("expected no leadership after a failed transaction")
	}
	if got := cluster.leaseCount(); got != 0 {
		t.Errorf("expected the granted lease to be revoked, %d leases remain", got)
	}
}
