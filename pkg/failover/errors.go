package failover

import "errors"

var (
	// ErrNotLeader means this node holds no leader lease; the decision is
	// suppressed, not failed.
	ErrNotLeader = errors.New("not the leader")

	// ErrCooldownActive means a recent failover closed the cooldown gate.
	ErrCooldownActive = errors.New("cooldown active")

	// ErrFailoverInFlight means another failover for the instance has not
	// reached a terminal outcome yet.
	ErrFailoverInFlight = errors.New("failover already in flight")

	// ErrInvalidManualRequest means the manual request failed validation,
	// for example targeting the already-active datacenter.
	ErrInvalidManualRequest = errors.New("invalid manual failover request")

	// ErrVersionConflict means an optimistic state write lost the race.
	ErrVersionConflict = errors.New("state version conflict")

	// ErrStateNotFound means no persisted record exists for the instance.
	ErrStateNotFound = errors.New("instance state not found")

	// ErrUnknownInstance means the instance is not configured.
	ErrUnknownInstance = errors.New("unknown instance")

	// ErrInvalidTransition means a state transition was requested that the
	// machine does not permit. It indicates a wiring bug, not bad input.
	ErrInvalidTransition = errors.New("invalid state transition")
)
