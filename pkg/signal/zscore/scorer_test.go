package zscore

import (
	"testing"
)

func steadyFeatures() map[string]float64 {
	return map[string]float64{
		"latency_ms":           10,
		"memory_used_percent":  40,
		"hit_rate":             0.9,
		"ops_per_second":       1000,
		"connected_clients":    50,
		"rejected_connections": 0,
		"evicted_keys":         0,
	}
}

func TestScorerColdStartScoresZero(t *testing.T) {
	scorer := New(WithMinSamples(10))
	for i := 0; i < 9; i++ {
		score, factors := scorer.Score("cache-service", "primary", steadyFeatures())
		if score != 0 || factors != nil {
			t.Fatalf("expected zero score during warmup, got %v %v", score, factors)
		}
	}
}

func TestScorerFlagsDeviation(t *testing.T) {
	scorer := New(WithMinSamples(10))

	// Warm the stream with slightly jittered steady traffic.
	for i := 0; i < 50; i++ {
		features := steadyFeatures()
		features["latency_ms"] = 10 + float64(i%5)
		features["ops_per_second"] = 1000 + float64(i%7)*10
		scorer.Score("cache-service", "primary", features)
	}

	spike := steadyFeatures()
	spike["latency_ms"] = 800

	score, factors := scorer.Score("cache-service", "primary", spike)
	if score < 0.9 {
		t.Fatalf("expected high anomaly score for latency spike, got %v", score)
	}
	if len(factors) == 0 || factors[0].Metric != "latency_ms" {
		t.Fatalf("expected latency_ms as leading factor, got %+v", factors)
	}
}

func TestScorerStreamsAreIndependent(t *testing.T) {
	scorer := New(WithMinSamples(5))

	for i := 0; i < 20; i++ {
		scorer.Score("cache-service", "primary", steadyFeatures())
	}

	// A brand new stream must warm up from scratch.
	score, _ := scorer.Score("cache-service", "secondary", steadyFeatures())
	if score != 0 {
		t.Fatalf("expected cold score for fresh stream, got %v", score)
	}
}
