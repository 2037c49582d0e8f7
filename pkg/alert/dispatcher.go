package alert

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/failoverd/failoverd/pkg/observability"
)

const defaultHistoryLimit = 200

// DispatcherOption mutates dispatcher construction.
type DispatcherOption func(*Dispatcher)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) {
		d.now = now
	}
}

// WithLogger attaches a structured logger.
func WithLogger(logger observability.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithMetrics attaches a metrics collector.
func WithMetrics(metrics observability.MetricsCollector) DispatcherOption {
	return func(d *Dispatcher) {
		d.metrics = metrics
	}
}

// WithMinIntervals sets the per-severity minimum spacing between alerts of
// the same type for the same instance.
func WithMinIntervals(intervals map[Severity]time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		d.intervals = make(map[Severity]time.Duration, len(intervals))
		for sev, interval := range intervals {
			d.intervals[sev] = interval
		}
	}
}

// WithHistoryLimit bounds the retained alert history.
func WithHistoryLimit(limit int) DispatcherOption {
	return func(d *Dispatcher) {
		if limit > 0 {
			d.historyLimit = limit
		}
	}
}

// Dispatcher fans one alert out to every configured channel. Alerts of the
// same type for the same instance are rate-capped per severity; the failover
// lifecycle alerts bypass the caps.
type Dispatcher struct {
	channels     []Channel
	intervals    map[Severity]time.Duration
	logger       observability.Logger
	metrics      observability.MetricsCollector
	historyLimit int
	now          func() time.Time

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	history  []Alert
}

// NewDispatcher builds a dispatcher over the given channels.
func NewDispatcher(channels []Channel, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		channels: channels,
		intervals: map[Severity]time.Duration{
			SeverityCritical: time.Minute,
			SeverityError:    3 * time.Minute,
			SeverityWarning:  5 * time.Minute,
			SeverityInfo:     10 * time.Minute,
		},
		metrics:      observability.NoopMetricsCollector{},
		historyLimit: defaultHistoryLimit,
		now:          time.Now,
		limiters:     make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch sends the alert to every channel. A rate-capped alert is dropped
// without error; channel failures are aggregated and returned but never
// block the remaining channels.
func (d *Dispatcher) Dispatch(ctx context.Context, a Alert) error {
	if a.At.IsZero() {
		a.At = d.now()
	}

	if !a.FailoverRelated() && !d.allow(a) {
		d.metrics.Collect(observability.Metric{
			Name:   "alerts_suppressed_total",
			Type:   observability.MetricCounter,
			Value:  1,
			Labels: map[string]string{"severity": string(a.Severity), "type": a.Type},
		})
		d.logEvent(ctx, observability.LevelInfo, "alert_rate_capped", a, nil)
		return nil
	}

	d.record(a)

	var errs []error
	for _, channel := range d.channels {
		if err := channel.Send(ctx, a); err != nil {
			errs = append(errs, fmt.Errorf("channel %s: %w", channel.Name(), err))
			d.metrics.Collect(observability.Metric{
				Name:   "alert_channel_failures_total",
				Type:   observability.MetricCounter,
				Value:  1,
				Labels: map[string]string{"channel": channel.Name()},
			})
			d.logEvent(ctx, observability.LevelError, "alert_channel_failed", a, map[string]interface{}{
				"channel": channel.Name(),
				"error":   err.Error(),
			})
			continue
		}
		d.metrics.Collect(observability.Metric{
			Name:   "alerts_sent_total",
			Type:   observability.MetricCounter,
			Value:  1,
			Labels: map[string]string{"channel": channel.Name(), "severity": string(a.Severity)},
		})
	}
	return errors.Join(errs...)
}

// History returns the retained alerts, most recent first.
func (d *Dispatcher) History(limit int) []Alert {
	d.mu.Lock()
	defer d.mu.Unlock()

	if limit <= 0 || limit > len(d.history) {
		limit = len(d.history)
	}
	out := make([]Alert, 0, limit)
	for i := len(d.history) - 1; i >= len(d.history)-limit; i-- {
		out = append(out, d.history[i])
	}
	return out
}

func (d *Dispatcher) allow(a Alert) bool {
	interval, ok := d.intervals[a.Severity]
	if !ok || interval <= 0 {
		return true
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	key := a.InstanceID + "/" + a.Type
	limiter, ok := d.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(interval), 1)
		d.limiters[key] = limiter
	}
	return limiter.AllowN(a.At, 1)
}

func (d *Dispatcher) record(a Alert) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.history = append(d.history, a)
	if len(d.history) > d.historyLimit {
		d.history = d.history[len(d.history)-d.historyLimit:]
	}
}

func (d *Dispatcher) logEvent(ctx context.Context, level observability.Level, event string, a Alert, extra map[string]interface{}) {
	if d.logger == nil {
		return
	}
	fields := map[string]interface{}{
		"severity": string(a.Severity),
		"type":     a.Type,
	}
	for k, v := range extra {
		fields[k] = v
	}
	_ = d.logger.Log(ctx, observability.Event{
		Level:     level,
		Component: "alert",
		Instance:  a.InstanceID,
		Event:     event,
		Message:   a.Summary,
		Fields:    fields,
	})
}
