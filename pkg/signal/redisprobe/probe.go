// Package redisprobe implements the check signal source for Redis-backed
// instances: it measures round-trip latency and derives a severity from the
// server's INFO counters.
package redisprobe

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/failoverd/failoverd/pkg/signal"
)

// Endpoint describes one datacenter endpoint of a monitored instance.
type Endpoint struct {
	Datacenter string
	Addr       string
	Password   string
	DB         int
}

// Options configures the probe.
type Options struct {
	// Endpoints maps instance id to its datacenter endpoints.
	Endpoints map[string][]Endpoint
	// DialTimeout bounds connection establishment; defaults to 3s.
	DialTimeout time.Duration
	// ProbeTimeout bounds a single PING+INFO round trip; defaults to 5s.
	ProbeTimeout time.Duration
	// Clock overrides the time source for testing.
	Clock func() time.Time
}

// Probe collects check observations from Redis endpoints.
type Probe struct {
	mu           sync.Mutex
	endpoints    map[string][]Endpoint
	clients      map[string]*redis.Client // keyed by instance/datacenter
	dialTimeout  time.Duration
	probeTimeout time.Duration
	now          func() time.Time
}

// New constructs a Probe from the provided endpoint map.
func New(opts Options) (*Probe, error) {
	if len(opts.Endpoints) == 0 {
		return nil, errors.New("redis probe requires at least one instance endpoint")
	}
	for instanceID, eps := range opts.Endpoints {
		if len(eps) == 0 {
			return nil, fmt.Errorf("instance %s has no endpoints", instanceID)
		}
		for _, ep := range eps {
			if strings.TrimSpace(ep.Datacenter) == "" || strings.TrimSpace(ep.Addr) == "" {
				return nil, fmt.Errorf("instance %s has an endpoint without datacenter or address", instanceID)
			}
		}
	}

	dialTimeout := opts.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 3 * time.Second
	}
	probeTimeout := opts.ProbeTimeout
	if probeTimeout <= 0 {
		probeTimeout = 5 * time.Second
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	return &Probe{
		endpoints:    opts.Endpoints,
		clients:      make(map[string]*redis.Client),
		dialTimeout:  dialTimeout,
		probeTimeout: probeTimeout,
		now:          clock,
	}, nil
}

// Close releases all cached connections.
func (p *Probe) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var firstErr error
	for key, client := range p.clients {
		if err := client.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(p.clients, key)
	}
	return firstErr
}

// Collect implements signal.Collector. An unreachable endpoint yields a
// maximal-severity observation instead of failing the whole pass.
func (p *Probe) Collect(ctx context.Context, instanceID string) ([]signal.Observation, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	endpoints, ok := p.endpoints[instanceID]
	if !ok {
		return nil, fmt.Errorf("unknown instance %q", instanceID)
	}

	observations := make([]signal.Observation, 0, len(endpoints))
	for _, ep := range endpoints {
		if ctx.Err() != nil {
			return observations, ctx.Err()
		}
		observations = append(observations, p.probeEndpoint(ctx, instanceID, ep))
	}
	return observations, nil
}

func (p *Probe) probeEndpoint(ctx context.Context, instanceID string, ep Endpoint) signal.Observation {
	obs := signal.Observation{
		InstanceID: instanceID,
		Datacenter: ep.Datacenter,
		Kind:       signal.SourceCheck,
		Confidence: 1,
		ObservedAt: p.now(),
	}

	probeCtx, cancel := context.WithTimeout(ctx, p.probeTimeout)
	defer cancel()

	client := p.client(instanceID, ep)

	start := p.now()
	if err := client.Ping(probeCtx).Err(); err != nil {
		obs.Value = 1
		obs.Metrics = map[string]float64{"reachable": 0}
		return obs
	}
	latency := p.now().Sub(start)

	metrics := map[string]float64{
		"reachable":  1,
		"latency_ms": float64(latency.Milliseconds()),
	}

	if info, err := client.Info(probeCtx).Result(); err == nil {
		parseInfo(info, metrics)
	}

	obs.Metrics = metrics
	obs.Value = severityFromMetrics(metrics)
	return obs
}

func (p *Probe) client(instanceID string, ep Endpoint) *redis.Client {
	key := instanceID + "/" + ep.Datacenter

	p.mu.Lock()
	defer p.mu.Unlock()

	if client, ok := p.clients[key]; ok {
		return client
	}
	client := redis.NewClient(&redis.Options{
		Addr:         ep.Addr,
		Password:     ep.Password,
		DB:           ep.DB,
		DialTimeout:  p.dialTimeout,
		ReadTimeout:  p.probeTimeout,
		WriteTimeout: p.probeTimeout,
	})
	p.clients[key] = client
	return client
}

// parseInfo extracts the metrics the health tracker and anomaly scorer
// consume from a raw INFO payload.
func parseInfo(info string, metrics map[string]float64) {
	raw := make(map[string]float64)
	for _, line := range strings.Split(info, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		if value, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64); err == nil {
			raw[parts[0]] = value
		}
	}

	used := raw["used_memory"]
	max := raw["maxmemory"]
	if max > 0 {
		metrics["memory_used_percent"] = used / max * 100
	}

	hits := raw["keyspace_hits"]
	misses := raw["keyspace_misses"]
	if hits+misses > 0 {
		metrics["hit_rate"] = hits / (hits + misses)
	}

	metrics["ops_per_second"] = raw["instantaneous_ops_per_sec"]
	metrics["connected_clients"] = raw["connected_clients"]
	metrics["rejected_connections"] = raw["rejected_connections"]
	metrics["evicted_keys"] = raw["evicted_keys"]
}

// severityFromMetrics folds the probe metrics into a [0,1] severity. The
// cutoffs mirror the health thresholds used for discretization: latency above
// 100ms or memory above 90% degrade, memory above 95% or rejected
// connections push towards failing.
func severityFromMetrics(metrics map[string]float64) float64 {
	severity := 0.0

	if latency := metrics["latency_ms"]; latency > 100 {
		s := 0.3 + (latency-100)/1000
		if s > 0.6 {
			s = 0.6
		}
		severity = maxFloat(severity, s)
	}

	if memory := metrics["memory_used_percent"]; memory > 90 {
		s := 0.4
		if memory > 95 {
			s = 0.75
		}
		severity = maxFloat(severity, s)
	}

	if metrics["rejected_connections"] > 0 {
		severity = maxFloat(severity, 0.6)
	}

	return severity
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

var _ signal.Collector = (*Probe)(nil)
