package store

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/failoverd/failoverd/pkg/failover"
)

func TestMemorySaveStateAssignsVersions(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory(0)

	state := failover.InstanceState{InstanceID: "sessions", ActiveDC: "dc-east", State: failover.StateStable}
	saved, err := mem.SaveState(ctx, state)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if saved.Version != 1 {
		t.Errorf("expected version 1 after first save, got %d", saved.Version)
	}

	saved.State = failover.StateEvaluating
	saved, err = mem.SaveState(ctx, saved)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if saved.Version != 2 {
		t.Errorf("expected version 2 after second save, got %d", saved.Version)
	}
}

func TestMemorySaveStateDetectsConflicts(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory(0)

	first, err := mem.SaveState(ctx, failover.InstanceState{InstanceID: "sessions", ActiveDC: "dc-east"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Two writers start from the same version; the second must lose.
	stale := first
	first.ActiveDC = "dc-west"
	if _, err := mem.SaveState(ctx, first); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stale.ActiveDC = "dc-south"
	_, err = mem.SaveState(ctx, stale)
	if !errors.Is(err, failover.ErrVersionConflict) {
		t.Errorf("expected ErrVersionConflict, got %v", err)
	}
}

func TestMemorySaveStateRejectsPhantomVersion(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory(0)

	_, err := mem.SaveState(ctx, failover.InstanceState{InstanceID: "sessions", Version: 7})
	if !errors.Is(err, failover.ErrVersionConflict) {
		t.Errorf("expected ErrVersionConflict for unseen version, got %v", err)
	}
}

func TestMemoryLoadStateNotFound(t *testing.T) {
	mem := NewMemory(0)
	_, err := mem.LoadState(context.Background(), "missing")
	if !errors.Is(err, failover.ErrStateNotFound) {
		t.Errorf("expected ErrStateNotFound, got %v", err)
	}
}

func TestMemoryDecisionHistoryBounded(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory(3)

	for i := 0; i < 5; i++ {
		decision := failover.Decision{ID: fmt.Sprintf("d-%d", i), InstanceID: "sessions"}
		if err := mem.AppendDecision(ctx, decision); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	history, err := mem.ListDecisions(ctx, "sessions", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected history capped at 3, got %d", len(history))
	}
	if history[0].ID != "d-4" {
		t.Errorf("expected most recent decision first, got %s", history[0].ID)
	}
	if history[2].ID != "d-2" {
		t.Errorf("expected oldest surviving decision last, got %s", history[2].ID)
	}
}

func TestMemoryAnnotateDecision(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory(0)

	if err := mem.AppendDecision(ctx, failover.Decision{ID: "d-1", InstanceID: "sessions"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err := mem.AnnotateDecision(ctx, "sessions", "d-1", func(d *failover.Decision) error {
		d.Executed = true
		d.Outcome = failover.OutcomeSucceeded
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	history, err := mem.ListDecisions(ctx, "sessions", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !history[0].Executed || history[0].Outcome != failover.OutcomeSucceeded {
		t.Errorf("expected annotation applied, got %+v", history[0])
	}
}

func TestMemoryAnnotateUnknownDecision(t *testing.T) {
	mem := NewMemory(0)
	err := mem.AnnotateDecision(context.Background(), "sessions", "missing", func(d *failover.Decision) error {
		return nil
	})
	if err == nil {
		t.Fatal("expected error annotating unknown decision, got nil")
	}
}
