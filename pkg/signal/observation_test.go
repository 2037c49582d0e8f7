package signal

import (
	"strings"
	"testing"
	"time"
)

func TestObservationValidate(t *testing.T) {
	base := Observation{
		InstanceID: "cache-service",
		Datacenter: "primary",
		Kind:       SourceCheck,
		Value:      0.2,
		Confidence: 1,
		ObservedAt: time.Unix(100, 0),
	}

	cases := []struct {
		name    string
		mutate  func(*Observation)
		wantErr string
	}{
		{name: "valid", mutate: func(*Observation) {}},
		{name: "missing instance", mutate: func(o *Observation) { o.InstanceID = " " }, wantErr: "instance id"},
		{name: "missing datacenter", mutate: func(o *Observation) { o.Datacenter = "" }, wantErr: "datacenter"},
		{name: "bad kind", mutate: func(o *Observation) { o.Kind = "weather" }, wantErr: "source kind"},
		{name: "value out of range", mutate: func(o *Observation) { o.Value = 1.5 }, wantErr: "outside [0,1]"},
		{name: "negative confidence", mutate: func(o *Observation) { o.Confidence = -0.1 }, wantErr: "outside [0,1]"},
		{name: "missing timestamp", mutate: func(o *Observation) { o.ObservedAt = time.Time{} }, wantErr: "observed_at"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			obs := base
			tc.mutate(&obs)
			err := obs.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("expected valid observation, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestObservationCloneCopiesMetrics(t *testing.T) {
	obs := Observation{
		InstanceID: "cache-service",
		Datacenter: "primary",
		Kind:       SourceCheck,
		Metrics:    map[string]float64{"latency_ms": 12},
		ObservedAt: time.Unix(100, 0),
	}
	clone := obs.Clone()
	clone.Metrics["latency_ms"] = 99
	if obs.Metrics["latency_ms"] != 12 {
		t.Fatalf("clone mutation leaked into original: %v", obs.Metrics)
	}
}
