package failover

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/failoverd/failoverd/pkg/confidence"
)

// Leadership answers whether this process may commit failovers.
type Leadership interface {
	IsLeader() bool
}

// LeadershipFunc adapts a function to the Leadership interface.
type LeadershipFunc func() bool

func (f LeadershipFunc) IsLeader() bool {
	return f()
}

// Option mutates machine construction.
type Option func(*Machine)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) {
		m.now = now
	}
}

// WithAuto enables or disables automatic failover commits. Evaluation still
// runs when disabled; passing decisions are suppressed.
func WithAuto(auto bool) Option {
	return func(m *Machine) {
		m.auto = auto
	}
}

// WithThresholds sets the automatic failover gates.
func WithThresholds(minConfidence float64, consecutive int) Option {
	return func(m *Machine) {
		m.minConfidence = minConfidence
		m.consecutive = consecutive
	}
}

// WithAdvisoryPath sets the advisory-assisted gate: a lower confidence bound
// combined with its own consecutive-recommendation threshold.
func WithAdvisoryPath(minConfidence float64, consecutive int, staleHorizon time.Duration) Option {
	return func(m *Machine) {
		m.advisoryMinConfidence = minConfidence
		m.advisoryConsecutive = consecutive
		m.advisoryStale = staleHorizon
	}
}

// WithCooldown sets the post-failover cooldown interval.
func WithCooldown(d time.Duration) Option {
	return func(m *Machine) {
		m.cooldown = d
	}
}

// Machine is the authoritative per-instance failover state machine. It is
// the only writer of InstanceState; transitions for one instance are
// serialized, distinct instances proceed independently.
type Machine struct {
	states     StateStore
	decisions  DecisionStore
	leadership Leadership
	initial    func(instanceID string) (InstanceState, error)

	auto                  bool
	minConfidence         float64
	consecutive           int
	advisoryMinConfidence float64
	advisoryConsecutive   int
	advisoryStale         time.Duration
	cooldown              time.Duration
	now                   func() time.Time

	mu        sync.Mutex
	instances map[string]*sync.Mutex
}

// NewMachine builds a state machine. The initial function seeds state for
// instances that have never been persisted; it returns ErrUnknownInstance
// for ids outside the configuration.
func NewMachine(states StateStore, decisions DecisionStore, leadership Leadership, initial func(instanceID string) (InstanceState, error), opts ...Option) *Machine {
	m := &Machine{
		states:                states,
		decisions:             decisions,
		leadership:            leadership,
		initial:               initial,
		auto:                  true,
		minConfidence:         0.95,
		consecutive:           3,
		advisoryMinConfidence: 0.8,
		advisoryConsecutive:   2,
		advisoryStale:         10 * time.Minute,
		cooldown:              30 * time.Minute,
		now:                   time.Now,
		instances:             make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Machine) lock(instanceID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	mu, ok := m.instances[instanceID]
	if !ok {
		mu = &sync.Mutex{}
		m.instances[instanceID] = mu
	}
	return mu
}

func (m *Machine) load(ctx context.Context, instanceID string) (InstanceState, error) {
	state, err := m.states.LoadState(ctx, instanceID)
	if err == nil {
		return state, nil
	}
	if !errors.Is(err, ErrStateNotFound) {
		return InstanceState{}, fmt.Errorf("load state for %s: %w", instanceID, err)
	}
	state, err = m.initial(instanceID)
	if err != nil {
		return InstanceState{}, err
	}
	return state, nil
}

// State returns the current persisted state for an instance.
func (m *Machine) State(ctx context.Context, instanceID string) (InstanceState, error) {
	mu := m.lock(instanceID)
	mu.Lock()
	defer mu.Unlock()
	return m.load(ctx, instanceID)
}

// ObserveAdvisory records one advisory recommendation. Recommendations count
// consecutively only while they agree on the target and arrive within the
// stale horizon of each other.
func (m *Machine) ObserveAdvisory(ctx context.Context, instanceID, targetDC string, at time.Time) error {
	mu := m.lock(instanceID)
	mu.Lock()
	defer mu.Unlock()

	state, err := m.load(ctx, instanceID)
	if err != nil {
		return err
	}

	if state.AdvisoryTarget != targetDC || (m.advisoryStale > 0 && !state.LastAdvisoryAt.IsZero() && at.Sub(state.LastAdvisoryAt) > m.advisoryStale) {
		state.ConsecutiveAdvisory = 0
	}
	state.AdvisoryTarget = targetDC
	state.ConsecutiveAdvisory++
	state.LastAdvisoryAt = at

	_, err = m.states.SaveState(ctx, state)
	return err
}

// Evaluate applies one confidence assessment to the instance's state machine
// and returns a committed Decision when every failover gate passes. A nil
// Decision with a nil error means the gates did not fire.
//
// A passing assessment suppressed by missing leadership returns the would-be
// decision together with ErrNotLeader so the caller can log it.
func (m *Machine) Evaluate(ctx context.Context, instanceID string, assessment confidence.Assessment) (*Decision, error) {
	mu := m.lock(instanceID)
	mu.Lock()
	defer mu.Unlock()

	state, err := m.load(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	now := m.now()

	switch state.State {
	case StateInFlight, StateManualOverride:
		// A running pipeline owns the instance; evaluation resumes after it
		// reaches a terminal outcome.
		return nil, nil
	case StateCooldown:
		if err := m.tickCooldownLocked(ctx, &state, assessment, now); err != nil {
			return nil, err
		}
		if state.State == StateCooldown {
			return nil, nil
		}
	}

	// Expire a stale advisory streak before gating on it.
	if m.advisoryStale > 0 && state.ConsecutiveAdvisory > 0 && now.Sub(state.LastAdvisoryAt) > m.advisoryStale {
		state.ConsecutiveAdvisory = 0
		state.AdvisoryTarget = ""
	}

	if !assessment.Eligible || assessment.Confidence < m.advisoryMinConfidence {
		// Health recovered or never degraded enough to count.
		if state.ConsecutiveBad > 0 || state.State == StateEvaluating {
			state.ConsecutiveBad = 0
			state.State = StateStable
			if _, err := m.states.SaveState(ctx, state); err != nil {
				return nil, err
			}
		}
		return nil, nil
	}

	if assessment.Confidence >= m.minConfidence {
		state.ConsecutiveBad++
	} else {
		state.ConsecutiveBad = 0
	}
	state.State = StateEvaluating

	primaryPath := assessment.Confidence >= m.minConfidence && state.ConsecutiveBad >= m.consecutive
	advisoryPath := assessment.Confidence >= m.advisoryMinConfidence &&
		state.ConsecutiveAdvisory >= m.advisoryConsecutive &&
		state.AdvisoryTarget == assessment.TargetDC

	if !primaryPath && !advisoryPath {
		_, err := m.states.SaveState(ctx, state)
		return nil, err
	}

	trigger := TriggerAuto
	if !primaryPath {
		trigger = TriggerAdvisory
	}
	decision := m.newDecision(state, assessment.TargetDC, trigger, assessment.Confidence, assessment.Reasons, now)

	if state.InCooldown(now) {
		if _, err := m.states.SaveState(ctx, state); err != nil {
			return nil, err
		}
		return nil, ErrCooldownActive
	}
	if !m.auto || !m.leadership.IsLeader() {
		// Keep counting in Evaluating; surface the suppressed decision.
		if _, err := m.states.SaveState(ctx, state); err != nil {
			return nil, err
		}
		decision.Outcome = OutcomeSuppressed
		return &decision, ErrNotLeader
	}

	state.State = StateInFlight
	state.ConsecutiveBad = 0
	state.ConsecutiveAdvisory = 0
	state.AdvisoryTarget = ""
	if _, err := m.states.SaveState(ctx, state); err != nil {
		return nil, err
	}
	if err := m.decisions.AppendDecision(ctx, decision); err != nil {
		// The state committed; the record must not be silently dropped.
		return &decision, fmt.Errorf("record decision %s: %w", decision.ID, err)
	}
	return &decision, nil
}

// Manual executes the validation and state transition for an operator
// failover request. It short-circuits the confidence gates but still
// requires the leader lease, and force is required to override an active
// cooldown.
func (m *Machine) Manual(ctx context.Context, req ManualRequest) (*Decision, error) {
	mu := m.lock(req.InstanceID)
	mu.Lock()
	defer mu.Unlock()

	state, err := m.load(ctx, req.InstanceID)
	if err != nil {
		return nil, err
	}
	now := m.now()

	if req.TargetDC == "" {
		return nil, fmt.Errorf("%w: target_dc is required", ErrInvalidManualRequest)
	}
	if req.TargetDC == state.ActiveDC {
		return nil, fmt.Errorf("%w: target %s is already active", ErrInvalidManualRequest, req.TargetDC)
	}
	if state.State == StateInFlight || state.State == StateManualOverride {
		return nil, ErrFailoverInFlight
	}
	if !m.leadership.IsLeader() {
		return nil, ErrNotLeader
	}
	if state.InCooldown(now) && !req.Force {
		return nil, fmt.Errorf("%w: until %s", ErrCooldownActive, state.CooldownUntil.Format(time.RFC3339))
	}

	decision := m.newDecision(state, req.TargetDC, TriggerManual, 1.0, []string{"manual failover: " + req.Reason}, now)
	decision.Force = req.Force
	decision.RequestedBy = req.RequestedBy
	decision.Reason = req.Reason

	state.State = StateManualOverride
	state.ConsecutiveBad = 0
	state.ConsecutiveAdvisory = 0
	state.AdvisoryTarget = ""
	if _, err := m.states.SaveState(ctx, state); err != nil {
		return nil, err
	}
	if err := m.decisions.AppendDecision(ctx, decision); err != nil {
		return &decision, fmt.Errorf("record decision %s: %w", decision.ID, err)
	}
	return &decision, nil
}

// Complete commits the terminal outcome of an executed decision. Success
// moves the active datacenter; both success and terminal failure enter
// cooldown so a misbehaving pipeline cannot retry in a tight loop.
func (m *Machine) Complete(ctx context.Context, decision Decision, outcome Outcome, execErr error) error {
	if outcome != OutcomeSucceeded && outcome != OutcomeFailed {
		return fmt.Errorf("%w: terminal outcome required, got %s", ErrInvalidTransition, outcome)
	}

	mu := m.lock(decision.InstanceID)
	mu.Lock()
	defer mu.Unlock()

	state, err := m.load(ctx, decision.InstanceID)
	if err != nil {
		return err
	}
	if state.State != StateInFlight && state.State != StateManualOverride {
		return fmt.Errorf("%w: complete called in state %s", ErrInvalidTransition, state.State)
	}

	now := m.now()
	if outcome == OutcomeSucceeded {
		state.ActiveDC = decision.ToDC
	}
	state.State = StateCooldown
	state.LastFailoverAt = now
	state.CooldownUntil = now.Add(m.cooldown)
	if _, err := m.states.SaveState(ctx, state); err != nil {
		return err
	}

	return m.decisions.AnnotateDecision(ctx, decision.InstanceID, decision.ID, func(d *Decision) error {
		d.Executed = true
		d.Outcome = outcome
		if execErr != nil {
			d.Error = execErr.Error()
		}
		return nil
	})
}

// Annotate appends a post-failover validation result onto a decision.
func (m *Machine) Annotate(ctx context.Context, instanceID, decisionID string, validation Validation) error {
	return m.decisions.AnnotateDecision(ctx, instanceID, decisionID, func(d *Decision) error {
		d.Validation = &validation
		return nil
	})
}

// Tick advances time-driven transitions, currently cooldown expiry. The
// healthy flag reports whether the instance's active datacenter looks
// healthy right now; an expired cooldown re-enters Evaluating instead of
// Stable when it does not.
func (m *Machine) Tick(ctx context.Context, instanceID string, healthy bool) error {
	mu := m.lock(instanceID)
	mu.Lock()
	defer mu.Unlock()

	state, err := m.load(ctx, instanceID)
	if err != nil {
		return err
	}
	if state.State != StateCooldown || state.InCooldown(m.now()) {
		return nil
	}

	if healthy {
		state.State = StateStable
	} else {
		state.State = StateEvaluating
	}
	_, err = m.states.SaveState(ctx, state)
	return err
}

func (m *Machine) tickCooldownLocked(ctx context.Context, state *InstanceState, assessment confidence.Assessment, now time.Time) error {
	if state.InCooldown(now) {
		return nil
	}
	if assessment.Eligible {
		state.State = StateEvaluating
	} else {
		state.State = StateStable
	}
	updated, err := m.states.SaveState(ctx, *state)
	if err != nil {
		return err
	}
	*state = updated
	return nil
}

func (m *Machine) newDecision(state InstanceState, targetDC string, trigger Trigger, conf float64, reasons []string, now time.Time) Decision {
	return Decision{
		ID:         uuid.NewString(),
		InstanceID: state.InstanceID,
		FromDC:     state.ActiveDC,
		ToDC:       targetDC,
		Trigger:    trigger,
		Confidence: conf,
		Reasons:    append([]string(nil), reasons...),
		CreatedAt:  now,
		Outcome:    OutcomePending,
	}
}
