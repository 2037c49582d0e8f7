package failover

import "time"

// State is the per-instance orchestration phase.
type State string

const (
	StateStable         State = "stable"
	StateEvaluating     State = "evaluating"
	StateInFlight       State = "failover_in_flight"
	StateCooldown       State = "cooldown"
	StateManualOverride State = "manual_override"
)

// States lists all orchestration phases.
func States() []State {
	return []State{StateStable, StateEvaluating, StateInFlight, StateCooldown, StateManualOverride}
}

// InstanceState is the replicated per-instance record. The state machine is
// its single writer; everything else reads it through the store.
type InstanceState struct {
	InstanceID string `json:"instance_id"`
	ActiveDC   string `json:"active_dc"`
	State      State  `json:"state"`

	// ConsecutiveBad counts evaluation passes in a row whose confidence
	// cleared the threshold. Reset whenever the gate fails.
	ConsecutiveBad int `json:"consecutive_bad"`

	// ConsecutiveAdvisory counts non-stale advisory recommendations in a row
	// agreeing on AdvisoryTarget.
	ConsecutiveAdvisory int       `json:"consecutive_advisory"`
	AdvisoryTarget      string    `json:"advisory_target,omitempty"`
	LastAdvisoryAt      time.Time `json:"last_advisory_at,omitempty"`

	LastFailoverAt time.Time `json:"last_failover_at,omitempty"`
	CooldownUntil  time.Time `json:"cooldown_until,omitempty"`

	// Version backs optimistic concurrency in the store. Zero means the
	// record has never been persisted.
	Version int64 `json:"version"`
}

// InCooldown reports whether the cooldown gate is closed at the given time.
func (s InstanceState) InCooldown(now time.Time) bool {
	return !s.CooldownUntil.IsZero() && now.Before(s.CooldownUntil)
}
