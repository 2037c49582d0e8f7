package health

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/failoverd/failoverd/pkg/signal"
)

// Snapshot is the aggregated view of one instance in one datacenter at a
// point in time.
type Snapshot struct {
	InstanceID string
	Datacenter string
	Status     Status
	// Composite is the weighted severity in [0,1]. Higher is worse.
	Composite float64
	// Scores holds the latest per-source severity that contributed.
	Scores       map[signal.SourceKind]float64
	Observations int
	UpdatedAt    time.Time
}

// StatusChange describes a discretized status transition.
type StatusChange struct {
	InstanceID string
	Datacenter string
	Previous   Status
	Current    Status
	Snapshot   Snapshot
	At         time.Time
}

// Option mutates tracker construction.
type Option func(*Tracker)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		t.now = now
	}
}

// WithWindow bounds the observation window by count and age. A zero count or
// zero age disables that bound.
func WithWindow(size int, maxAge time.Duration) Option {
	return func(t *Tracker) {
		t.windowSize = size
		t.windowAge = maxAge
	}
}

// WithWeights sets the per-source weights used for the composite score.
func WithWeights(weights map[signal.SourceKind]float64) Option {
	return func(t *Tracker) {
		t.weights = make(map[signal.SourceKind]float64, len(weights))
		for kind, w := range weights {
			t.weights[kind] = w
		}
	}
}

// WithThresholds sets the ascending severity cutoffs for degraded, failing,
// and failed.
func WithThresholds(degraded, failing, failed float64) Option {
	return func(t *Tracker) {
		t.degraded = degraded
		t.failing = failing
		t.failed = failed
	}
}

// Tracker maintains bounded observation windows per instance and datacenter
// and derives weighted composite scores and discretized statuses from them.
//
// Ingest is deterministic: the same sequence of observations always yields
// the same snapshots and status changes.
type Tracker struct {
	mu         sync.Mutex
	windows    map[string][]signal.Observation
	statuses   map[string]Status
	windowSize int
	windowAge  time.Duration
	weights    map[signal.SourceKind]float64
	degraded   float64
	failing    float64
	failed     float64
	now        func() time.Time
}

// NewTracker builds a tracker with the given options.
func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{
		windows:    make(map[string][]signal.Observation),
		statuses:   make(map[string]Status),
		windowSize: 120,
		windowAge:  15 * time.Minute,
		weights: map[signal.SourceKind]float64{
			signal.SourceCheck:   0.5,
			signal.SourceAnomaly: 0.3,
			signal.SourceImpact:  0.2,
		},
		degraded: 0.25,
		failing:  0.5,
		failed:   0.8,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func streamKey(instanceID, datacenter string) string {
	return instanceID + "/" + datacenter
}

// Ingest records an observation and returns the resulting snapshot plus a
// status change when the discretized status moved.
func (t *Tracker) Ingest(obs signal.Observation) (Snapshot, *StatusChange, error) {
	if err := obs.Validate(); err != nil {
		return Snapshot{}, nil, fmt.Errorf("reject observation: %w", err)
	}
	if obs.Kind == signal.SourceAdvisory {
		return Snapshot{}, nil, fmt.Errorf("advisory observations do not contribute to health scoring")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	key := streamKey(obs.InstanceID, obs.Datacenter)
	window := append(t.windows[key], obs.Clone())
	window = t.trim(window, obs.ObservedAt)
	t.windows[key] = window

	snapshot := t.snapshotLocked(obs.InstanceID, obs.Datacenter, window)

	previous := t.statuses[key]
	if previous == "" {
		previous = StatusUnknown
	}
	t.statuses[key] = snapshot.Status

	if snapshot.Status == previous {
		return snapshot, nil, nil
	}
	return snapshot, &StatusChange{
		InstanceID: obs.InstanceID,
		Datacenter: obs.Datacenter,
		Previous:   previous,
		Current:    snapshot.Status,
		Snapshot:   snapshot,
		At:         obs.ObservedAt,
	}, nil
}

func (t *Tracker) trim(window []signal.Observation, latest time.Time) []signal.Observation {
	if t.windowAge > 0 {
		cutoff := latest.Add(-t.windowAge)
		kept := window[:0]
		for _, obs := range window {
			if !obs.ObservedAt.Before(cutoff) {
				kept = append(kept, obs)
			}
		}
		window = kept
	}
	if t.windowSize > 0 && len(window) > t.windowSize {
		window = window[len(window)-t.windowSize:]
	}
	return window
}

// snapshotLocked computes the weighted composite from the latest severity of
// each source kind present in the window. A hard failure therefore moves the
// status on the very next observation instead of being diluted by healthy
// history; sources without observations are neutral and their weight is
// redistributed.
func (t *Tracker) snapshotLocked(instanceID, datacenter string, window []signal.Observation) Snapshot {
	type sample struct {
		severity float64
		at       time.Time
	}
	latestByKind := make(map[signal.SourceKind]sample)
	var latest time.Time
	for _, obs := range window {
		severity := obs.Value * obs.Confidence
		if current, ok := latestByKind[obs.Kind]; !ok || !obs.ObservedAt.Before(current.at) {
			latestByKind[obs.Kind] = sample{severity: severity, at: obs.ObservedAt}
		}
		if obs.ObservedAt.After(latest) {
			latest = obs.ObservedAt
		}
	}

	scores := make(map[signal.SourceKind]float64, len(latestByKind))
	var weighted, totalWeight float64
	for kind, s := range latestByKind {
		scores[kind] = s.severity
		weight := t.weights[kind]
		weighted += s.severity * weight
		totalWeight += weight
	}

	composite := 0.0
	if totalWeight > 0 {
		composite = weighted / totalWeight
	}

	return Snapshot{
		InstanceID:   instanceID,
		Datacenter:   datacenter,
		Status:       t.discretize(composite, len(window)),
		Composite:    composite,
		Scores:       scores,
		Observations: len(window),
		UpdatedAt:    latest,
	}
}

func (t *Tracker) discretize(composite float64, observations int) Status {
	if observations == 0 {
		return StatusUnknown
	}
	switch {
	case composite >= t.failed:
		return StatusFailed
	case composite >= t.failing:
		return StatusFailing
	case composite >= t.degraded:
		return StatusDegraded
	default:
		return StatusHealthy
	}
}

// Snapshot returns the current aggregate for one instance and datacenter.
func (t *Tracker) Snapshot(instanceID, datacenter string) (Snapshot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	window, ok := t.windows[streamKey(instanceID, datacenter)]
	if !ok || len(window) == 0 {
		return Snapshot{InstanceID: instanceID, Datacenter: datacenter, Status: StatusUnknown}, false
	}
	return t.snapshotLocked(instanceID, datacenter, window), true
}

// SnapshotInstance returns the aggregates of every datacenter seen for the
// instance, sorted by datacenter name.
func (t *Tracker) SnapshotInstance(instanceID string) []Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	prefix := instanceID + "/"
	snapshots := make([]Snapshot, 0)
	for key, window := range t.windows {
		if len(key) <= len(prefix) || key[:len(prefix)] != prefix {
			continue
		}
		if len(window) == 0 {
			continue
		}
		snapshots = append(snapshots, t.snapshotLocked(instanceID, key[len(prefix):], window))
	}
	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].Datacenter < snapshots[j].Datacenter
	})
	return snapshots
}

// SnapshotAll returns aggregates for every tracked stream, sorted by
// instance then datacenter.
func (t *Tracker) SnapshotAll() []Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	snapshots := make([]Snapshot, 0, len(t.windows))
	for key, window := range t.windows {
		if len(window) == 0 {
			continue
		}
		sep := -1
		for i := 0; i < len(key); i++ {
			if key[i] == '/' {
				sep = i
				break
			}
		}
		if sep < 0 {
			continue
		}
		snapshots = append(snapshots, t.snapshotLocked(key[:sep], key[sep+1:], window))
	}
	sort.Slice(snapshots, func(i, j int) bool {
		if snapshots[i].InstanceID != snapshots[j].InstanceID {
			return snapshots[i].InstanceID < snapshots[j].InstanceID
		}
		return snapshots[i].Datacenter < snapshots[j].Datacenter
	})
	return snapshots
}
