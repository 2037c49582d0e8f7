// Package engine wires signal collection, health tracking, confidence
// scoring, and the failover state machine into one running daemon.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/failoverd/failoverd/pkg/action"
	"github.com/failoverd/failoverd/pkg/alert"
	"github.com/failoverd/failoverd/pkg/confidence"
	"github.com/failoverd/failoverd/pkg/config"
	"github.com/failoverd/failoverd/pkg/coordinator"
	"github.com/failoverd/failoverd/pkg/failover"
	"github.com/failoverd/failoverd/pkg/health"
	"github.com/failoverd/failoverd/pkg/observability"
	"github.com/failoverd/failoverd/pkg/signal"
)

// Options carries the collaborators the engine runs on. Config, Collector,
// Tracker, Machine, Coordinator, Pipeline, and Alerts are required; the
// optional collaborators may be nil.
type Options struct {
	Config      *config.Config
	Collector   signal.Collector
	Scorer      signal.Scorer
	Impact      signal.ImpactAnalyzer
	Recommender signal.Recommender
	Tracker     *health.Tracker
	Machine     *failover.Machine
	Coordinator coordinator.Coordinator
	Pipeline    *action.Pipeline
	Alerts      *alert.Dispatcher
	Decisions   failover.DecisionStore
	Logger      observability.Logger
	Metrics     observability.MetricsCollector
	Clock       func() time.Time
}

// completeTimeout bounds the terminal state write after a pipeline run.
const completeTimeout = 15 * time.Second

// Engine runs the periodic collection loops and routes status changes into
// evaluation and, when the gates pass, into the action pipeline.
type Engine struct {
	cfg         *config.Config
	instances   map[string]config.InstanceConfig
	collector   signal.Collector
	scorer      signal.Scorer
	impact      signal.ImpactAnalyzer
	recommender signal.Recommender
	tracker     *health.Tracker
	machine     *failover.Machine
	coord       coordinator.Coordinator
	pipeline    *action.Pipeline
	alerts      *alert.Dispatcher
	decisions   failover.DecisionStore
	logger      observability.Logger
	metrics     observability.MetricsCollector
	now         func() time.Time

	mu            sync.Mutex
	lastMetrics   map[string]map[string]float64
	lastErrorRate map[string]float64
	lastAdvisory  map[string]signal.Recommendation
	advisoryRate  map[string]*rate.Limiter
	wasLeader     bool

	wg sync.WaitGroup
}

// New validates the options and builds an engine.
func New(opts Options) (*Engine, error) {
	if opts.Config == nil {
		return nil, errors.New("engine requires a configuration")
	}
	if opts.Collector == nil || opts.Tracker == nil || opts.Machine == nil || opts.Coordinator == nil || opts.Pipeline == nil || opts.Alerts == nil {
		return nil, errors.New("engine requires collector, tracker, machine, coordinator, pipeline, and alerts")
	}
	if opts.Metrics == nil {
		opts.Metrics = observability.NoopMetricsCollector{}
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	instances := make(map[string]config.InstanceConfig, len(opts.Config.Instances))
	for _, inst := range opts.Config.Instances {
		instances[inst.InstanceID()] = inst
	}

	return &Engine{
		cfg:           opts.Config,
		instances:     instances,
		collector:     opts.Collector,
		scorer:        opts.Scorer,
		impact:        opts.Impact,
		recommender:   opts.Recommender,
		tracker:       opts.Tracker,
		machine:       opts.Machine,
		coord:         opts.Coordinator,
		pipeline:      opts.Pipeline,
		alerts:        opts.Alerts,
		decisions:     opts.Decisions,
		logger:        opts.Logger,
		metrics:       opts.Metrics,
		now:           opts.Clock,
		lastMetrics:   make(map[string]map[string]float64),
		lastErrorRate: make(map[string]float64),
		lastAdvisory:  make(map[string]signal.Recommendation),
		advisoryRate:  make(map[string]*rate.Limiter),
	}, nil
}

// Run starts every loop and blocks until the context is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	e.logEvent(ctx, observability.LevelInfo, "", "", "engine_started", "failover engine running", nil)

	// Take an initial leadership pass before the first evaluation can fire.
	e.renewLeadership(ctx)

	e.loop(ctx, e.cfg.CheckInterval(), e.collectChecks)
	if e.scorer != nil {
		e.loop(ctx, e.cfg.AnomalyInterval(), e.scoreAnomalies)
	}
	if e.impact != nil {
		e.loop(ctx, e.cfg.ImpactInterval(), e.collectImpact)
	}
	if e.recommender != nil {
		e.loop(ctx, e.cfg.AnomalyInterval(), e.consultAdvisory)
	}
	e.loop(ctx, e.cfg.CheckInterval(), e.tickCooldowns)
	if e.cfg.Coordinator.Enabled {
		e.loop(ctx, e.cfg.RenewInterval(), e.renewLeadership)
	}

	<-ctx.Done()
	e.wg.Wait()
	e.logEvent(context.Background(), observability.LevelInfo, "", "", "engine_stopped", "failover engine stopped", nil)
	return nil
}

// loop runs fn immediately and then on every tick until ctx is cancelled.
func (e *Engine) loop(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		fn(ctx)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fn(ctx)
			}
		}
	}()
}

func (e *Engine) collectChecks(ctx context.Context) {
	for id := range e.instances {
		observations, err := e.collector.Collect(ctx, id)
		if err != nil {
			// SignalUnavailable: neutral, logged, never escalated.
			e.logEvent(ctx, observability.LevelWarn, id, "", "signal_unavailable", err.Error(), map[string]interface{}{"source": string(signal.SourceCheck)})
			e.metrics.Collect(observability.Metric{
				Name:   "signal_failures_total",
				Type:   observability.MetricCounter,
				Value:  1,
				Labels: map[string]string{"source": string(signal.SourceCheck)},
			})
			continue
		}
		for _, obs := range observations {
			e.rememberMetrics(obs)
			e.ingest(ctx, obs)
		}
		// One evaluation per collection cycle keeps the consecutive counter
		// aligned with observation rounds.
		e.evaluate(ctx, id)
	}
}

func (e *Engine) scoreAnomalies(ctx context.Context) {
	for _, sample := range e.metricSamples() {
		score, factors := e.scorer.Score(sample.instanceID, sample.datacenter, sample.features)
		rationale := ""
		for i, factor := range factors {
			if i > 0 {
				rationale += ", "
			}
			rationale += fmt.Sprintf("%s z=%.1f", factor.Metric, factor.ZScore)
		}
		e.ingest(ctx, signal.Observation{
			InstanceID: sample.instanceID,
			Datacenter: sample.datacenter,
			Kind:       signal.SourceAnomaly,
			Value:      score,
			Confidence: 1.0,
			Rationale:  rationale,
			ObservedAt: e.now(),
		})
	}
}

func (e *Engine) collectImpact(ctx context.Context) {
	for id := range e.instances {
		state, err := e.machine.State(ctx, id)
		if err != nil {
			continue
		}
		errorRate, err := e.impact.ErrorRate(ctx, id, e.cfg.ImpactWindow())
		if err != nil {
			e.logEvent(ctx, observability.LevelWarn, id, "", "signal_unavailable", err.Error(), map[string]interface{}{"source": string(signal.SourceImpact)})
			continue
		}

		e.mu.Lock()
		e.lastErrorRate[id] = errorRate
		e.mu.Unlock()

		e.ingest(ctx, signal.Observation{
			InstanceID: id,
			Datacenter: state.ActiveDC,
			Kind:       signal.SourceImpact,
			Value:      errorRate,
			Confidence: 1.0,
			ObservedAt: e.now(),
		})
	}
}

// consultAdvisory asks the external recommender, at most once per cooldown
// window per instance, and feeds agreeing recommendations into the advisory
// streak.
func (e *Engine) consultAdvisory(ctx context.Context) {
	for id := range e.instances {
		if !e.advisoryAllowed(id) {
			continue
		}
		state, err := e.machine.State(ctx, id)
		if err != nil {
			continue
		}

		advisoryCtx := signal.AdvisoryContext{
			InstanceID: id,
			ActiveDC:   state.ActiveDC,
			Statuses:   make(map[string]string),
			Scores:     make(map[string]float64),
		}
		for _, snap := range e.tracker.SnapshotInstance(id) {
			advisoryCtx.Statuses[snap.Datacenter] = string(snap.Status)
			advisoryCtx.Scores[snap.Datacenter] = snap.Composite
		}
		e.mu.Lock()
		advisoryCtx.ErrorRate = e.lastErrorRate[id]
		advisoryCtx.Metrics = e.lastMetrics[id+"/"+state.ActiveDC]
		e.mu.Unlock()

		rec, err := e.recommender.Recommend(ctx, advisoryCtx)
		if err != nil {
			e.logEvent(ctx, observability.LevelWarn, id, "", "signal_unavailable", err.Error(), map[string]interface{}{"source": string(signal.SourceAdvisory)})
			continue
		}
		if rec.Action != signal.RecommendFailover || rec.TargetDC == "" {
			continue
		}

		e.mu.Lock()
		e.lastAdvisory[id] = rec
		e.mu.Unlock()

		if err := e.machine.ObserveAdvisory(ctx, id, rec.TargetDC, e.now()); err != nil {
			e.logEvent(ctx, observability.LevelWarn, id, "", "advisory_record_failed", err.Error(), nil)
			continue
		}
		e.logEvent(ctx, observability.LevelInfo, id, rec.TargetDC, "advisory_recommendation", rec.Rationale, map[string]interface{}{
			"confidence": rec.Confidence,
		})
	}
}

func (e *Engine) advisoryAllowed(instanceID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	limiter, ok := e.advisoryRate[instanceID]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(e.cfg.Cooldown()), 1)
		e.advisoryRate[instanceID] = limiter
	}
	return limiter.AllowN(e.now(), 1)
}

// ingest feeds one observation into the tracker and reacts to any status
// transition with gauge updates and health alerts. Failover evaluation runs
// once per collection cycle, after every observation has been ingested.
func (e *Engine) ingest(ctx context.Context, obs signal.Observation) {
	snapshot, change, err := e.tracker.Ingest(obs)
	if err != nil {
		e.logEvent(ctx, observability.LevelWarn, obs.InstanceID, obs.Datacenter, "observation_rejected", err.Error(), nil)
		return
	}

	e.metrics.Collect(observability.Metric{
		Name:   "composite_health_score",
		Type:   observability.MetricGauge,
		Value:  snapshot.Composite,
		Labels: map[string]string{"instance": obs.InstanceID, "datacenter": obs.Datacenter},
	})

	if change == nil {
		return
	}

	e.logEvent(ctx, observability.LevelWarn, change.InstanceID, change.Datacenter, "status_changed",
		fmt.Sprintf("health status %s -> %s", change.Previous, change.Current),
		map[string]interface{}{"composite": snapshot.Composite})
	e.metrics.Collect(observability.Metric{
		Name:   "status_transitions_total",
		Type:   observability.MetricCounter,
		Value:  1,
		Labels: map[string]string{"instance": change.InstanceID, "to": string(change.Current)},
	})

	e.dispatchHealthAlert(ctx, *change)
}

func (e *Engine) dispatchHealthAlert(ctx context.Context, change health.StatusChange) {
	var a alert.Alert
	switch {
	case change.Current == health.StatusHealthy && change.Previous.WorseThan(health.StatusHealthy):
		a = alert.Alert{
			Type:     alert.TypeHealthRecovered,
			Severity: alert.SeverityInfo,
			Summary:  fmt.Sprintf("%s in %s recovered to healthy", change.InstanceID, change.Datacenter),
		}
	case change.Current.WorseThan(change.Previous):
		severity := alert.SeverityWarning
		if change.Current == health.StatusFailed {
			severity = alert.SeverityCritical
		} else if change.Current == health.StatusFailing {
			severity = alert.SeverityError
		}
		a = alert.Alert{
			Type:     alert.TypeHealthDegraded,
			Severity: severity,
			Summary:  fmt.Sprintf("%s in %s is %s", change.InstanceID, change.Datacenter, change.Current),
		}
	default:
		return
	}
	a.InstanceID = change.InstanceID
	a.Details = map[string]string{
		"datacenter": change.Datacenter,
		"previous":   string(change.Previous),
		"current":    string(change.Current),
		"composite":  fmt.Sprintf("%.2f", change.Snapshot.Composite),
	}
	if err := e.alerts.Dispatch(ctx, a); err != nil {
		e.logEvent(ctx, observability.LevelError, change.InstanceID, change.Datacenter, "alert_dispatch_failed", err.Error(), nil)
	}
}

// evaluate runs one confidence pass for the instance and pushes the
// assessment through the state machine.
func (e *Engine) evaluate(ctx context.Context, instanceID string) {
	state, err := e.machine.State(ctx, instanceID)
	if err != nil {
		e.logEvent(ctx, observability.LevelError, instanceID, "", "evaluation_failed", err.Error(), nil)
		return
	}

	input := confidence.Input{
		InstanceID:     instanceID,
		ActiveDC:       state.ActiveDC,
		Snapshots:      e.tracker.SnapshotInstance(instanceID),
		LastFailoverAt: state.LastFailoverAt,
		Now:            e.now(),
	}
	if state.ConsecutiveAdvisory > 0 {
		e.mu.Lock()
		rec := e.lastAdvisory[instanceID]
		e.mu.Unlock()
		input.Advisory = &confidence.Advisory{
			TargetDC:   state.AdvisoryTarget,
			Confidence: rec.Confidence,
			Consistent: state.ConsecutiveAdvisory,
		}
	}

	assessment := confidence.Evaluate(input, confidence.Params{
		AdvisoryCeiling: e.cfg.Failover.AdvisoryCeiling,
		Stabilization:   e.cfg.Stabilization(),
	})
	e.metrics.Collect(observability.Metric{
		Name:   "failover_confidence",
		Type:   observability.MetricGauge,
		Value:  assessment.Confidence,
		Labels: map[string]string{"instance": instanceID},
	})

	decision, err := e.machine.Evaluate(ctx, instanceID, assessment)
	switch {
	case errors.Is(err, failover.ErrNotLeader):
		e.logEvent(ctx, observability.LevelWarn, instanceID, "", "decision_suppressed",
			fmt.Sprintf("failover to %s suppressed: %v", assessment.TargetDC, err),
			map[string]interface{}{"confidence": assessment.Confidence})
		e.metrics.Collect(observability.Metric{
			Name:   "decisions_suppressed_total",
			Type:   observability.MetricCounter,
			Value:  1,
			Labels: map[string]string{"instance": instanceID},
		})
	case errors.Is(err, failover.ErrCooldownActive):
		e.logEvent(ctx, observability.LevelInfo, instanceID, "", "decision_deferred", "cooldown active", nil)
	case err != nil:
		e.logEvent(ctx, observability.LevelError, instanceID, "", "evaluation_failed", err.Error(), nil)
		if decision != nil {
			// The in-flight transition committed even though the decision
			// record did not; the pipeline must still run to a terminal
			// outcome or the instance stays wedged in-flight.
			e.execute(ctx, *decision)
		}
	case decision != nil:
		e.execute(ctx, *decision)
	}
}

// ManualFailover validates and executes an operator failover request.
func (e *Engine) ManualFailover(ctx context.Context, req failover.ManualRequest) (*failover.Decision, error) {
	inst, ok := e.instances[req.InstanceID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", failover.ErrUnknownInstance, req.InstanceID)
	}
	if _, ok := inst.Endpoints[req.TargetDC]; !ok {
		return nil, fmt.Errorf("%w: unknown target datacenter %q", failover.ErrInvalidManualRequest, req.TargetDC)
	}

	decision, err := e.machine.Manual(ctx, req)
	if err != nil {
		if decision == nil {
			return nil, err
		}
		// The override committed but its record write failed; keep going so
		// the pipeline reaches a terminal outcome.
		e.logEvent(ctx, observability.LevelError, req.InstanceID, "", "decision_record_failed", err.Error(), nil)
	}
	e.logEvent(ctx, observability.LevelWarn, req.InstanceID, req.TargetDC, "manual_failover_accepted", req.Reason, map[string]interface{}{
		"requested_by": req.RequestedBy,
		"force":        req.Force,
	})
	e.execute(ctx, *decision)
	return decision, nil
}

// execute runs the action pipeline for a committed decision and completes
// the state machine with the terminal outcome. The terminal write runs on a
// context detached from the caller: an expired API request context must not
// leave the instance wedged in-flight without an outcome.
func (e *Engine) execute(ctx context.Context, decision failover.Decision) {
	complete := func(outcome failover.Outcome, execErr error) error {
		completeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), completeTimeout)
		defer cancel()
		return e.machine.Complete(completeCtx, decision, outcome, execErr)
	}

	plan, err := e.plan(decision)
	if err != nil {
		e.logEvent(ctx, observability.LevelError, decision.InstanceID, "", "plan_failed", err.Error(), nil)
		if err := complete(failover.OutcomeFailed, err); err != nil {
			e.logEvent(ctx, observability.LevelError, decision.InstanceID, "", "complete_failed", err.Error(), nil)
		}
		return
	}

	e.mu.Lock()
	preErrorRate := e.lastErrorRate[decision.InstanceID]
	e.mu.Unlock()

	out := e.pipeline.Execute(ctx, plan)
	outcome := failover.OutcomeSucceeded
	if out.Err != nil {
		outcome = failover.OutcomeFailed
	}
	if err := complete(outcome, out.Err); err != nil {
		e.logEvent(ctx, observability.LevelError, decision.InstanceID, "", "complete_failed", err.Error(), nil)
		return
	}
	e.logEvent(ctx, observability.LevelWarn, decision.InstanceID, decision.ToDC, "failover_completed",
		fmt.Sprintf("failover %s -> %s: %s", decision.FromDC, decision.ToDC, outcome),
		map[string]interface{}{"decision_id": decision.ID, "applied_dns": out.AppliedDNS})

	if outcome == failover.OutcomeSucceeded && e.impact != nil {
		e.scheduleValidation(ctx, decision, preErrorRate)
	}
}

// plan resolves the traffic records for a decision, pointed at the target
// datacenter's endpoint.
func (e *Engine) plan(decision failover.Decision) (action.Plan, error) {
	inst, ok := e.instances[decision.InstanceID]
	if !ok {
		return action.Plan{}, fmt.Errorf("%w: %s", failover.ErrUnknownInstance, decision.InstanceID)
	}
	endpoint, ok := inst.Endpoints[decision.ToDC]
	if !ok {
		return action.Plan{}, fmt.Errorf("no endpoint for %s in %s", decision.InstanceID, decision.ToDC)
	}

	records := make([]action.Record, 0, len(inst.Records))
	for _, rc := range inst.Records {
		ttl := rc.TTL
		if ttl <= 0 {
			ttl = e.cfg.DNS.TTL
		}
		recordType := rc.Type
		if recordType == "" {
			recordType = "CNAME"
		}
		records = append(records, action.Record{
			Zone:  e.cfg.DNS.ZoneID,
			Name:  rc.Name,
			Type:  recordType,
			Value: endpoint.Host,
			TTL:   ttl,
		})
	}
	return action.Plan{Decision: decision, Records: records}, nil
}

// scheduleValidation samples the post-failover error rate after the grace
// period and annotates the decision with the comparison.
func (e *Engine) scheduleValidation(ctx context.Context, decision failover.Decision, preErrorRate float64) {
	grace := e.cfg.ValidationGrace()
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		timer := time.NewTimer(grace)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		postErrorRate, err := e.impact.ErrorRate(ctx, decision.InstanceID, e.cfg.ImpactWindow())
		if err != nil {
			e.logEvent(ctx, observability.LevelWarn, decision.InstanceID, "", "validation_unavailable", err.Error(), nil)
			return
		}
		validation := failover.Validation{
			PreErrorRate:  preErrorRate,
			PostErrorRate: postErrorRate,
			Improved:      postErrorRate < preErrorRate,
			CheckedAt:     e.now(),
		}
		if err := e.machine.Annotate(ctx, decision.InstanceID, decision.ID, validation); err != nil {
			e.logEvent(ctx, observability.LevelWarn, decision.InstanceID, "", "validation_annotate_failed", err.Error(), nil)
			return
		}
		e.logEvent(ctx, observability.LevelInfo, decision.InstanceID, decision.ToDC, "failover_validated",
			fmt.Sprintf("error rate %.3f -> %.3f", preErrorRate, postErrorRate),
			map[string]interface{}{"improved": validation.Improved, "decision_id": decision.ID})
	}()
}

func (e *Engine) tickCooldowns(ctx context.Context) {
	for id := range e.instances {
		state, err := e.machine.State(ctx, id)
		if err != nil || state.State != failover.StateCooldown {
			continue
		}
		healthy := false
		if snap, ok := e.tracker.Snapshot(id, state.ActiveDC); ok {
			healthy = snap.Status == health.StatusHealthy
		}
		if err := e.machine.Tick(ctx, id, healthy); err != nil {
			e.logEvent(ctx, observability.LevelError, id, "", "cooldown_tick_failed", err.Error(), nil)
		}
	}
}

func (e *Engine) renewLeadership(ctx context.Context) {
	leader, err := e.coord.TryAcquireOrRenew(ctx)
	if err != nil {
		e.logEvent(ctx, observability.LevelWarn, "", "", "lease_renewal_failed", err.Error(), nil)
	}

	e.metrics.Collect(observability.Metric{
		Name:  "leader",
		Type:  observability.MetricGauge,
		Value: boolToFloat(leader),
	})

	e.mu.Lock()
	changed := leader != e.wasLeader
	e.wasLeader = leader
	e.mu.Unlock()
	if !changed {
		return
	}

	message := "lost leadership, failovers suppressed on this node"
	if leader {
		message = "acquired leadership"
	}
	e.logEvent(ctx, observability.LevelWarn, "", "", "leadership_changed", message, nil)
	if err := e.alerts.Dispatch(ctx, alert.Alert{
		Type:     alert.TypeLeadershipChange,
		Severity: alert.SeverityInfo,
		Summary:  fmt.Sprintf("%s: %s", e.cfg.NodeName, message),
	}); err != nil {
		e.logEvent(ctx, observability.LevelError, "", "", "alert_dispatch_failed", err.Error(), nil)
	}
}

func (e *Engine) rememberMetrics(obs signal.Observation) {
	if obs.Kind != signal.SourceCheck || len(obs.Metrics) == 0 {
		return
	}
	features := make(map[string]float64, len(obs.Metrics))
	for k, v := range obs.Metrics {
		features[k] = v
	}
	e.mu.Lock()
	e.lastMetrics[obs.InstanceID+"/"+obs.Datacenter] = features
	e.mu.Unlock()
}

type metricSample struct {
	instanceID string
	datacenter string
	features   map[string]float64
}

func (e *Engine) metricSamples() []metricSample {
	e.mu.Lock()
	defer e.mu.Unlock()

	samples := make([]metricSample, 0, len(e.lastMetrics))
	for key, features := range e.lastMetrics {
		for i := 0; i < len(key); i++ {
			if key[i] == '/' {
				samples = append(samples, metricSample{
					instanceID: key[:i],
					datacenter: key[i+1:],
					features:   features,
				})
				break
			}
		}
	}
	return samples
}

func (e *Engine) logEvent(ctx context.Context, level observability.Level, instance, datacenter, event, message string, fields map[string]interface{}) {
	if e.logger == nil {
		return
	}
	_ = e.logger.Log(ctx, observability.Event{
		Level:      level,
		Node:       e.cfg.NodeName,
		Component:  "engine",
		Instance:   instance,
		Datacenter: datacenter,
		Event:      event,
		Message:    message,
		Fields:     fields,
	})
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
