package signal

import (
	"context"
	"time"
)

// Collector probes every datacenter endpoint of an instance and returns one
// check observation per reachable endpoint. Collection failures for a single
// datacenter surface as a maximal-severity observation rather than an error so
// one unreachable endpoint never hides the others.
type Collector interface {
	Collect(ctx context.Context, instanceID string) ([]Observation, error)
}

// Factor names a metric that contributed to an anomaly score.
type Factor struct {
	Metric string
	ZScore float64
}

// Scorer turns a raw feature vector into an anomaly severity in [0,1].
// Implementations keep per-stream state; the instance/datacenter pair
// identifies the stream.
type Scorer interface {
	Score(instanceID, datacenter string, features map[string]float64) (float64, []Factor)
}

// ImpactAnalyzer reports the client-observed error rate for an instance over
// a trailing window.
type ImpactAnalyzer interface {
	ErrorRate(ctx context.Context, instanceID string, window time.Duration) (float64, error)
}

// AdvisoryContext is the evidence handed to an external recommender.
type AdvisoryContext struct {
	InstanceID string
	ActiveDC   string
	// Statuses maps datacenter name to its discretized status string.
	Statuses map[string]string
	// Scores maps datacenter name to its composite severity score.
	Scores map[string]float64
	// ErrorRate is the most recent client-impact error rate, if known.
	ErrorRate float64
	// Metrics is the latest raw feature vector for the active datacenter.
	Metrics map[string]float64
}

// Recommendation is the advisory recommender's answer.
type Recommendation struct {
	Action     string
	TargetDC   string
	Confidence float64
	Rationale  string
}

// RecommendFailover is the only advisory action the engine acts on.
const RecommendFailover = "failover"

// Recommender is the optional external advisory collaborator. Callers are
// responsible for rate limiting; implementations only answer.
type Recommender interface {
	Recommend(ctx context.Context, advisory AdvisoryContext) (Recommendation, error)
}
