package confidence

import (
	"strings"
	"testing"
	"time"

	"github.com/failoverd/failoverd/pkg/health"
)

func snap(dc string, status health.Status, composite float64) health.Snapshot {
	return health.Snapshot{
		InstanceID: "sessions",
		Datacenter: dc,
		Status:     status,
		Composite:  composite,
	}
}

func baseInput() Input {
	return Input{
		InstanceID: "sessions",
		ActiveDC:   "dc-east",
		Now:        time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestEvaluateFailedActiveHealthyCandidate(t *testing.T) {
	in := baseInput()
	in.Snapshots = []health.Snapshot{
		snap("dc-east", health.StatusFailed, 0.9),
		snap("dc-west", health.StatusHealthy, 0.05),
	}

	out := Evaluate(in, DefaultParams())
	if !out.Eligible {
		t.Fatalf("expected eligible assessment, reasons: %v", out.Reasons)
	}
	if out.TargetDC != "dc-west" {
		t.Errorf("expected target dc-west, got %q", out.TargetDC)
	}
	// 0.5 base + 0.25 failed + 0.85*0.2 margin = 0.92
	want := 0.5 + 0.25 + 0.85*0.2
	if diff := out.Confidence - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("expected confidence %v, got %v (%v)", want, out.Confidence, out.Reasons)
	}
}

func TestEvaluateAdvisoryRaisesConfidence(t *testing.T) {
	in := baseInput()
	in.Snapshots = []health.Snapshot{
		snap("dc-east", health.StatusFailed, 0.9),
		snap("dc-west", health.StatusHealthy, 0.05),
	}

	without := Evaluate(in, DefaultParams())

	in.Advisory = &Advisory{TargetDC: "dc-west", Confidence: 0.9, Consistent: 2}
	with := Evaluate(in, DefaultParams())

	if with.Confidence <= without.Confidence {
		t.Errorf("expected advisory to raise confidence: %v vs %v", with.Confidence, without.Confidence)
	}
}

func TestEvaluateAdvisoryOnlyIsCapped(t *testing.T) {
	in := baseInput()
	// active degraded, not failing: advisory pushes but local evidence is weak
	in.Snapshots = []health.Snapshot{
		snap("dc-east", health.StatusDegraded, 0.4),
		snap("dc-west", health.StatusHealthy, 0.02),
	}
	in.Advisory = &Advisory{TargetDC: "dc-west", Confidence: 1.0, Consistent: 5}

	out := Evaluate(in, DefaultParams())
	if !out.Eligible {
		t.Fatalf("expected eligible assessment, reasons: %v", out.Reasons)
	}
	if out.Confidence > DefaultParams().AdvisoryCeiling {
		t.Errorf("expected confidence capped at %v, got %v", DefaultParams().AdvisoryCeiling, out.Confidence)
	}
}

func TestEvaluateAdvisoryDisagreeingTargetIgnored(t *testing.T) {
	in := baseInput()
	in.Snapshots = []health.Snapshot{
		snap("dc-east", health.StatusFailed, 0.9),
		snap("dc-west", health.StatusHealthy, 0.05),
		snap("dc-south", health.StatusDegraded, 0.3),
	}
	in.Advisory = &Advisory{TargetDC: "dc-south", Confidence: 1.0, Consistent: 3}

	out := Evaluate(in, DefaultParams())
	if out.TargetDC != "dc-west" {
		t.Errorf("expected best candidate dc-west regardless of advisory, got %q", out.TargetDC)
	}
	for _, reason := range out.Reasons {
		if strings.Contains(reason, "advisory agrees") {
			t.Errorf("expected no advisory contribution, got reason %q", reason)
		}
	}
}

func TestEvaluateFlapDiscount(t *testing.T) {
	tests := []struct {
		name     string
		since    time.Duration
		discount float64
	}{
		{name: "inside stabilization", since: 30 * time.Minute, discount: 0.3},
		{name: "inside 24h", since: 6 * time.Hour, discount: 0.1},
		{name: "beyond 24h", since: 48 * time.Hour, discount: 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			in := baseInput()
			in.Snapshots = []health.Snapshot{
				snap("dc-east", health.StatusFailed, 0.9),
				snap("dc-west", health.StatusHealthy, 0.05),
			}

			clean := Evaluate(in, DefaultParams())

			in.LastFailoverAt = in.Now.Add(-tc.since)
			discounted := Evaluate(in, DefaultParams())

			diff := clean.Confidence - discounted.Confidence
			if diff-tc.discount > 1e-9 || tc.discount-diff > 1e-9 {
				t.Errorf("expected discount %v, got %v", tc.discount, diff)
			}
		})
	}
}

func TestEvaluateNoViableCandidate(t *testing.T) {
	in := baseInput()
	in.Snapshots = []health.Snapshot{
		snap("dc-east", health.StatusFailed, 0.95),
		snap("dc-west", health.StatusFailing, 0.7),
	}

	out := Evaluate(in, DefaultParams())
	if out.Eligible {
		t.Fatal("expected ineligible assessment with no viable candidate")
	}
	if out.Confidence != 0 || out.TargetDC != "" {
		t.Errorf("expected zero assessment, got %+v", out)
	}
}

func TestEvaluateNeverPicksWorseTarget(t *testing.T) {
	in := baseInput()
	in.Snapshots = []health.Snapshot{
		snap("dc-east", health.StatusDegraded, 0.3),
		snap("dc-west", health.StatusDegraded, 0.45),
	}

	out := Evaluate(in, DefaultParams())
	if out.Eligible {
		t.Errorf("expected ineligible when candidate is no better than active, got %+v", out)
	}
}

func TestEvaluateRanksCandidatesBySeverity(t *testing.T) {
	in := baseInput()
	in.Snapshots = []health.Snapshot{
		snap("dc-east", health.StatusFailed, 0.95),
		snap("dc-west", health.StatusDegraded, 0.35),
		snap("dc-south", health.StatusHealthy, 0.1),
	}

	out := Evaluate(in, DefaultParams())
	if out.TargetDC != "dc-south" {
		t.Errorf("expected least-severe candidate dc-south, got %q", out.TargetDC)
	}
}

func TestEvaluateUnknownActive(t *testing.T) {
	in := baseInput()
	in.Snapshots = []health.Snapshot{
		snap("dc-west", health.StatusHealthy, 0.05),
	}

	out := Evaluate(in, DefaultParams())
	if out.Eligible {
		t.Errorf("expected ineligible assessment without active health data, got %+v", out)
	}
}
