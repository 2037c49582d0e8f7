package coordinator

import (
	"context"
	"testing"
)

func TestStaticAlwaysLeads(t *testing.T) {
	c := NewStatic()

	if !c.IsLeader() {
		t.Error("expected standalone coordinator to lead")
	}
	leader, err := c.TryAcquireOrRenew(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !leader {
		t.Error("expected acquisition to succeed in standalone mode")
	}
	if err := c.Resign(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
