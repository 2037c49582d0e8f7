package action

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/failoverd/failoverd/pkg/alert"
	"github.com/failoverd/failoverd/pkg/failover"
	"github.com/failoverd/failoverd/pkg/observability"
)

// Alerter dispatches pipeline lifecycle alerts.
type Alerter interface {
	Dispatch(ctx context.Context, a alert.Alert) error
}

// Plan is one executable failover: the decision plus the records already
// pointed at the target datacenter's endpoint.
type Plan struct {
	Decision failover.Decision
	Records  []Record
}

// Outcome reports what the pipeline achieved. AppliedDNS and Alerted are
// independent: a DNS failure never blocks alert dispatch.
type Outcome struct {
	AppliedDNS bool
	Alerted    bool
	Err        error
}

// Option mutates pipeline construction.
type Option func(*Pipeline)

// WithTimeout sets the hard bound on one execution. An execution that
// exceeds it is marked failed, not abandoned.
func WithTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		p.timeout = d
	}
}

// WithRetries sets the bounded exponential backoff applied to DNS calls.
func WithRetries(attempts int, min, max time.Duration) Option {
	return func(p *Pipeline) {
		p.attempts = attempts
		p.backoffMin = min
		p.backoffMax = max
	}
}

// WithLogger attaches a structured logger.
func WithLogger(logger observability.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithMetrics attaches a metrics collector.
func WithMetrics(metrics observability.MetricsCollector) Option {
	return func(p *Pipeline) {
		p.metrics = metrics
	}
}

// WithSleep overrides the backoff sleep, for tests.
func WithSleep(sleep func(context.Context, time.Duration) error) Option {
	return func(p *Pipeline) {
		p.sleep = sleep
	}
}

// Pipeline turns a committed decision into traffic record updates plus the
// in-progress / complete / failed alert sequence. Every step is idempotent,
// so a retried execution converges instead of compounding.
type Pipeline struct {
	dns     DNSProvider
	alerter Alerter

	timeout    time.Duration
	attempts   int
	backoffMin time.Duration
	backoffMax time.Duration

	logger  observability.Logger
	metrics observability.MetricsCollector
	sleep   func(context.Context, time.Duration) error
}

// NewPipeline builds a pipeline over the given provider and alerter.
func NewPipeline(dns DNSProvider, alerter Alerter, opts ...Option) *Pipeline {
	p := &Pipeline{
		dns:        dns,
		alerter:    alerter,
		timeout:    2 * time.Minute,
		attempts:   5,
		backoffMin: time.Second,
		backoffMax: 30 * time.Second,
		metrics:    observability.NoopMetricsCollector{},
		sleep:      sleepContext,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Execute runs the pipeline for one plan. The returned Outcome is terminal:
// either everything applied, or Err carries the reason and the decision can
// be completed as failed.
func (p *Pipeline) Execute(ctx context.Context, plan Plan) Outcome {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	decision := plan.Decision
	out := Outcome{}

	if err := p.alerter.Dispatch(ctx, alert.Alert{
		Type:       alert.TypeFailoverInProgress,
		Severity:   alert.SeverityCritical,
		InstanceID: decision.InstanceID,
		Summary:    fmt.Sprintf("failover of %s from %s to %s in progress", decision.InstanceID, decision.FromDC, decision.ToDC),
		Details: map[string]string{
			"decision_id": decision.ID,
			"trigger":     string(decision.Trigger),
			"confidence":  fmt.Sprintf("%.2f", decision.Confidence),
		},
	}); err != nil {
		p.log(ctx, observability.LevelError, decision, "alert_in_progress_failed", err)
	} else {
		out.Alerted = true
	}

	dnsErr := p.applyRecords(ctx, decision, plan.Records)
	out.AppliedDNS = dnsErr == nil
	out.Err = dnsErr

	final := alert.Alert{
		Type:       alert.TypeFailoverComplete,
		Severity:   alert.SeverityCritical,
		InstanceID: decision.InstanceID,
		Summary:    fmt.Sprintf("failover of %s to %s complete", decision.InstanceID, decision.ToDC),
		Details: map[string]string{
			"decision_id": decision.ID,
			"from":        decision.FromDC,
			"to":          decision.ToDC,
		},
	}
	if dnsErr != nil {
		final.Type = alert.TypeFailoverFailed
		final.Summary = fmt.Sprintf("failover of %s to %s failed: %v", decision.InstanceID, decision.ToDC, dnsErr)
		final.Details["error"] = dnsErr.Error()
	}
	if err := p.alerter.Dispatch(ctx, final); err != nil {
		p.log(ctx, observability.LevelError, decision, "alert_final_failed", err)
		if dnsErr == nil {
			// DNS applied but nobody was told; surface it without undoing
			// the applied records.
			out.Err = fmt.Errorf("dns applied, final alert failed: %w", err)
		}
	} else {
		out.Alerted = true
	}

	result := "succeeded"
	if out.Err != nil {
		result = "failed"
	}
	p.metrics.Collect(observability.Metric{
		Name:   "failover_executions_total",
		Type:   observability.MetricCounter,
		Value:  1,
		Labels: map[string]string{"result": result, "trigger": string(decision.Trigger)},
	})
	return out
}

func (p *Pipeline) applyRecords(ctx context.Context, decision failover.Decision, records []Record) error {
	for _, record := range records {
		if err := p.applyWithRetry(ctx, decision, record); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) applyWithRetry(ctx context.Context, decision failover.Decision, record Record) error {
	var lastErr error
	for attempt := 1; attempt <= p.attempts; attempt++ {
		start := time.Now()
		err := p.dns.SetRecord(ctx, record)
		p.metrics.Collect(observability.Metric{
			Name:  "dns_update_duration_seconds",
			Type:  observability.MetricHistogram,
			Value: time.Since(start).Seconds(),
			Unit:  "seconds",
		})
		if err == nil {
			return nil
		}
		lastErr = err
		p.log(ctx, observability.LevelWarn, decision, "dns_update_retry", fmt.Errorf("attempt %d/%d for %s: %w", attempt, p.attempts, record.Name, err))

		if attempt == p.attempts {
			break
		}
		if err := p.sleep(ctx, backoffDelay(attempt, p.backoffMin, p.backoffMax)); err != nil {
			return fmt.Errorf("update %s: timed out after attempt %d: %w", record.Name, attempt, lastErr)
		}
	}
	return fmt.Errorf("update %s: %w", record.Name, lastErr)
}

func (p *Pipeline) log(ctx context.Context, level observability.Level, decision failover.Decision, event string, err error) {
	if p.logger == nil {
		return
	}
	_ = p.logger.Log(ctx, observability.Event{
		Level:     level,
		Component: "action",
		Instance:  decision.InstanceID,
		Event:     event,
		Message:   err.Error(),
		Fields:    map[string]interface{}{"decision_id": decision.ID},
	})
}

// backoffDelay doubles from min per attempt, capped at max, with up to 50%
// jitter so retrying nodes spread out.
func backoffDelay(attempt int, min, max time.Duration) time.Duration {
	if min <= 0 {
		min = time.Second
	}
	if max < min {
		max = min
	}
	delay := min
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			delay = max
			break
		}
	}
	jitter := time.Duration(rand.Int63n(int64(delay)/2 + 1))
	delay += jitter
	if delay > max {
		delay = max
	}
	return delay
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
