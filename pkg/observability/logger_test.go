package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestJSONLoggerEmitsEvent(t *testing.T) {
	var buf bytes.Buffer
	logger := NewJSONLogger(&buf, WithTimeSource(func() time.Time { return time.Unix(100, 0).UTC() }))

	event := Event{
		Level:      LevelInfo,
		Node:       "engine-a",
		Instance:   "cache-service",
		Datacenter: "primary",
		Event:      "status_changed",
		Message:    "active datacenter degraded",
		Fields: map[string]interface{}{
			"from": "healthy",
			"to":   "degraded",
		},
	}

	if err := logger.Log(context.Background(), event); err != nil {
		t.Fatalf("log event: %v", err)
	}

	var payload Event
	if err := json.Unmarshal(buf.Bytes(), &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}

	if payload.Timestamp.Unix() != 100 {
		t.Fatalf("expected timestamp to be set, got %v", payload.Timestamp)
	}
	if payload.Level != LevelInfo {
		t.Fatalf("unexpected level: %s", payload.Level)
	}
	if payload.Instance != "cache-service" || payload.Datacenter != "primary" {
		t.Fatalf("expected instance context preserved, got %+v", payload)
	}
	if payload.Fields["to"] != "degraded" {
		t.Fatalf("expected status field preserved, got %v", payload.Fields)
	}
}

func TestJSONLoggerDefaultsNode(t *testing.T) {
	var buf bytes.Buffer
	logger := NewJSONLogger(&buf, WithNode("engine-a"))

	if err := logger.Log(context.Background(), Event{Event: "leader_elected"}); err != nil {
		t.Fatalf("log event: %v", err)
	}
	var payload Event
	if err := json.Unmarshal(buf.Bytes(), &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.Node != "engine-a" {
		t.Fatalf("expected configured node stamped on event, got %q", payload.Node)
	}

	buf.Reset()
	if err := logger.Log(context.Background(), Event{Event: "leader_elected", Node: "engine-b"}); err != nil {
		t.Fatalf("log event: %v", err)
	}
	if err := json.Unmarshal(buf.Bytes(), &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.Node != "engine-b" {
		t.Fatalf("expected explicit node preserved, got %q", payload.Node)
	}
}

func TestJSONLoggerRequiresWriter(t *testing.T) {
	logger := NewJSONLogger(nil)
	if err := logger.Log(context.Background(), Event{Event: "test"}); err == nil {
		t.Fatal("expected error when writer is nil")
	}
}

func TestEventCloneCopiesFields(t *testing.T) {
	event := Event{Event: "decision_suppressed", Fields: map[string]interface{}{"confidence": 0.97}}
	clone := event.Clone()
	clone.Fields["confidence"] = 0.1
	if event.Fields["confidence"] != 0.97 {
		t.Fatalf("clone mutation leaked into original: %v", event.Fields)
	}
}
