package failover

import "time"

// Trigger identifies what initiated a failover decision.
type Trigger string

const (
	TriggerAuto     Trigger = "auto"
	TriggerAdvisory Trigger = "advisory"
	TriggerManual   Trigger = "manual"
)

// Outcome is the terminal result of executing a decision.
type Outcome string

const (
	OutcomePending    Outcome = "pending"
	OutcomeSucceeded  Outcome = "succeeded"
	OutcomeFailed     Outcome = "failed"
	OutcomeSuppressed Outcome = "suppressed"
)

// Decision is one immutable failover decision record. Execution status and
// post-failover validation are annotated onto it after the fact.
type Decision struct {
	ID          string    `json:"id"`
	InstanceID  string    `json:"instance_id"`
	FromDC      string    `json:"from_dc"`
	ToDC        string    `json:"to_dc"`
	Trigger     Trigger   `json:"trigger"`
	Confidence  float64   `json:"confidence"`
	Reasons     []string  `json:"reasons,omitempty"`
	Force       bool      `json:"force,omitempty"`
	RequestedBy string    `json:"requested_by,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	CreatedAt   time.Time `json:"created_at"`

	Executed bool    `json:"executed"`
	Outcome  Outcome `json:"outcome"`
	Error    string  `json:"error,omitempty"`

	Validation *Validation `json:"validation,omitempty"`
}

// Validation is the post-failover impact comparison annotated onto a
// decision after the grace period.
type Validation struct {
	PreErrorRate  float64   `json:"pre_error_rate"`
	PostErrorRate float64   `json:"post_error_rate"`
	Improved      bool      `json:"improved"`
	CheckedAt     time.Time `json:"checked_at"`
}

// ManualRequest is an operator-initiated failover.
type ManualRequest struct {
	InstanceID  string `json:"instance_id"`
	TargetDC    string `json:"target_dc"`
	Force       bool   `json:"force"`
	Reason      string `json:"reason"`
	RequestedBy string `json:"requested_by"`
}
