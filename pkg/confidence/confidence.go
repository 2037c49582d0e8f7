// Package confidence turns health snapshots into a failover recommendation
// with an explainable confidence score.
//
// Evaluation is a pure function of its input: no clocks, no stores, no side
// effects. The engine owns time and feeds it in.
package confidence

import (
	"fmt"
	"sort"
	"time"

	"github.com/failoverd/failoverd/pkg/health"
)

// Params bounds the score composition.
type Params struct {
	// AdvisoryCeiling caps the advisory contribution unless local evidence
	// corroborates it.
	AdvisoryCeiling float64
	// Stabilization is the period after a failover during which the score
	// carries a flapping discount.
	Stabilization time.Duration
}

// DefaultParams mirrors the shipped configuration defaults.
func DefaultParams() Params {
	return Params{
		AdvisoryCeiling: 0.8,
		Stabilization:   time.Hour,
	}
}

// Advisory is the advisory source state relevant to scoring.
type Advisory struct {
	TargetDC   string
	Confidence float64
	// Consistent counts consecutive non-stale recommendations agreeing on
	// the same target.
	Consistent int
}

// Input is everything Evaluate needs to score one instance.
type Input struct {
	InstanceID     string
	ActiveDC       string
	Snapshots      []health.Snapshot
	Advisory       *Advisory
	LastFailoverAt time.Time
	Now            time.Time
}

// Assessment is the outcome of one evaluation.
type Assessment struct {
	InstanceID string
	// Eligible reports whether a viable target exists at all. When false,
	// Confidence is zero and TargetDC empty.
	Eligible   bool
	TargetDC   string
	Confidence float64
	// Reasons explain the score composition in evaluation order.
	Reasons []string
}

const (
	baseScore          = 0.5
	activeFailedBonus  = 0.25
	activeFailingBonus = 0.15
	marginWeight       = 0.2
	advisoryWeight     = 0.2
	earlyFlapDiscount  = 0.3
	lateFlapDiscount   = 0.1
	lateFlapHorizon    = 24 * time.Hour
)

// Evaluate scores whether the instance should fail away from its active
// datacenter, and to where.
func Evaluate(in Input, params Params) Assessment {
	out := Assessment{InstanceID: in.InstanceID}

	var active *health.Snapshot
	candidates := make([]health.Snapshot, 0, len(in.Snapshots))
	for i := range in.Snapshots {
		snap := in.Snapshots[i]
		if snap.Datacenter == in.ActiveDC {
			active = &in.Snapshots[i]
			continue
		}
		if snap.Status == health.StatusHealthy || snap.Status == health.StatusDegraded {
			candidates = append(candidates, snap)
		}
	}

	if active == nil || active.Status == health.StatusUnknown {
		out.Reasons = append(out.Reasons, "active datacenter has no health data")
		return out
	}
	if len(candidates) == 0 {
		out.Reasons = append(out.Reasons, "no healthy or degraded failover candidate")
		return out
	}

	// Best candidate first: lowest composite, healthier status breaking ties.
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Composite != candidates[j].Composite {
			return candidates[i].Composite < candidates[j].Composite
		}
		return candidates[j].Status.WorseThan(candidates[i].Status)
	})
	target := candidates[0]

	if !active.Status.WorseThan(target.Status) {
		out.Reasons = append(out.Reasons, fmt.Sprintf("active %s is no worse than best candidate %s", active.Status, target.Status))
		return out
	}

	out.Eligible = true
	out.TargetDC = target.Datacenter
	score := baseScore
	out.Reasons = append(out.Reasons, fmt.Sprintf("base score %.2f", baseScore))

	switch active.Status {
	case health.StatusFailed:
		score += activeFailedBonus
		out.Reasons = append(out.Reasons, fmt.Sprintf("active datacenter failed: +%.2f", activeFailedBonus))
	case health.StatusFailing:
		score += activeFailingBonus
		out.Reasons = append(out.Reasons, fmt.Sprintf("active datacenter failing: +%.2f", activeFailingBonus))
	}

	margin := active.Composite - target.Composite
	if margin > 0 {
		contribution := margin * marginWeight
		score += contribution
		out.Reasons = append(out.Reasons, fmt.Sprintf("severity margin %.2f over %s: +%.2f", margin, target.Datacenter, contribution))
	}

	if in.Advisory != nil && in.Advisory.TargetDC == target.Datacenter && in.Advisory.Consistent > 0 {
		contribution := clamp(in.Advisory.Confidence, 0, 1) * advisoryWeight
		score += contribution
		out.Reasons = append(out.Reasons, fmt.Sprintf("advisory agrees on %s (%d consistent): +%.2f", target.Datacenter, in.Advisory.Consistent, contribution))
	}

	if discount, reason := flapDiscount(in, params); discount > 0 {
		score -= discount
		out.Reasons = append(out.Reasons, reason)
	}

	score = clamp(score, 0, 1)

	// Advisory-led failovers are capped: without corroborating local
	// evidence the score cannot cross the ceiling.
	if !localEvidence(*active) && score > params.AdvisoryCeiling {
		score = params.AdvisoryCeiling
		out.Reasons = append(out.Reasons, fmt.Sprintf("no corroborating local evidence: capped at %.2f", params.AdvisoryCeiling))
	}

	out.Confidence = score
	return out
}

// localEvidence reports whether the active datacenter itself shows failure,
// as opposed to an advisory-only push.
func localEvidence(active health.Snapshot) bool {
	return active.Status == health.StatusFailing || active.Status == health.StatusFailed
}

func flapDiscount(in Input, params Params) (float64, string) {
	if in.LastFailoverAt.IsZero() {
		return 0, ""
	}
	since := in.Now.Sub(in.LastFailoverAt)
	stabilization := params.Stabilization
	if stabilization <= 0 {
		stabilization = time.Hour
	}
	if since < stabilization {
		return earlyFlapDiscount, fmt.Sprintf("failover %s ago, inside stabilization: -%.2f", since.Round(time.Second), earlyFlapDiscount)
	}
	if since < lateFlapHorizon {
		return lateFlapDiscount, fmt.Sprintf("failover %s ago, inside 24h: -%.2f", since.Round(time.Minute), lateFlapDiscount)
	}
	return 0, ""
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
