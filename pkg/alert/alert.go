// Package alert fans failover and health notifications out to the
// configured channels, rate-capped per severity.
package alert

import "time"

// Severity orders alert urgency.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Severities lists all severities from least to most urgent.
func Severities() []Severity {
	return []Severity{SeverityInfo, SeverityWarning, SeverityError, SeverityCritical}
}

func (s Severity) rank() int {
	switch s {
	case SeverityWarning:
		return 1
	case SeverityError:
		return 2
	case SeverityCritical:
		return 3
	default:
		return 0
	}
}

// AtLeast reports whether s is as urgent as min.
func (s Severity) AtLeast(min Severity) bool {
	return s.rank() >= min.rank()
}

// Alert types. The failover lifecycle types bypass rate caps.
const (
	TypeFailoverInProgress = "failover_in_progress"
	TypeFailoverComplete   = "failover_complete"
	TypeFailoverFailed     = "failover_failed"
	TypeHealthDegraded     = "health_degraded"
	TypeHealthRecovered    = "health_recovered"
	TypeLeadershipChange   = "leadership_change"
)

// Alert is one notification.
type Alert struct {
	Type       string            `json:"type"`
	Severity   Severity          `json:"severity"`
	InstanceID string            `json:"instance_id,omitempty"`
	Summary    string            `json:"summary"`
	Details    map[string]string `json:"details,omitempty"`
	At         time.Time         `json:"at"`
}

// FailoverRelated reports whether the alert belongs to the failover
// lifecycle and therefore bypasses per-severity rate caps.
func (a Alert) FailoverRelated() bool {
	switch a.Type {
	case TypeFailoverInProgress, TypeFailoverComplete, TypeFailoverFailed:
		return true
	}
	return false
}
