package signal

import (
	"fmt"
	"strings"
	"time"
)

// SourceKind identifies the origin of an observation.
type SourceKind string

const (
	// SourceCheck observations come from direct connectivity and resource probes.
	SourceCheck SourceKind = "check"
	// SourceAnomaly observations carry a trained anomaly score for a metric vector.
	SourceAnomaly SourceKind = "anomaly"
	// SourceImpact observations report client-facing error rates.
	SourceImpact SourceKind = "impact"
	// SourceAdvisory observations carry an external, non-authoritative
	// failover recommendation.
	SourceAdvisory SourceKind = "advisory"
)

// Kinds lists every supported source kind.
func Kinds() []SourceKind {
	return []SourceKind{SourceCheck, SourceAnomaly, SourceImpact, SourceAdvisory}
}

// Observation is an immutable record produced by a signal source. Value is a
// severity in [0,1] where higher means worse; for advisory observations it is
// the recommendation confidence instead.
type Observation struct {
	InstanceID string
	Datacenter string
	Kind       SourceKind
	Value      float64
	Confidence float64
	// Metrics carries the raw feature vector behind a check observation so
	// downstream scorers can consume it without re-probing.
	Metrics map[string]float64
	// Action, TargetDC and Rationale are populated for advisory observations only.
	Action     string
	TargetDC   string
	Rationale  string
	ObservedAt time.Time
}

// Validate checks the structural invariants of an observation.
func (o Observation) Validate() error {
	problems := make([]string, 0)
	if strings.TrimSpace(o.InstanceID) == "" {
		problems = append(problems, "instance id is required")
	}
	if strings.TrimSpace(o.Datacenter) == "" {
		problems = append(problems, "datacenter is required")
	}
	switch o.Kind {
	case SourceCheck, SourceAnomaly, SourceImpact, SourceAdvisory:
	default:
		problems = append(problems, fmt.Sprintf("unsupported source kind %q", o.Kind))
	}
	if o.Value < 0 || o.Value > 1 {
		problems = append(problems, fmt.Sprintf("value %v outside [0,1]", o.Value))
	}
	if o.Confidence < 0 || o.Confidence > 1 {
		problems = append(problems, fmt.Sprintf("confidence %v outside [0,1]", o.Confidence))
	}
	if o.ObservedAt.IsZero() {
		problems = append(problems, "observed_at is required")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid observation: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Clone returns a copy with its own metrics map.
func (o Observation) Clone() Observation {
	clone := o
	if len(o.Metrics) > 0 {
		copied := make(map[string]float64, len(o.Metrics))
		for k, v := range o.Metrics {
			copied[k] = v
		}
		clone.Metrics = copied
	}
	return clone
}
