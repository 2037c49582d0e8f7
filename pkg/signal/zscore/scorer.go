// Package zscore provides the bundled anomaly scorer: a rolling z-score model
// over the probe feature vector. It stands in for an externally trained model
// behind the same contract.
package zscore

import (
	"math"
	"sort"
	"sync"

	"github.com/failoverd/failoverd/pkg/signal"
)

// Features scored for anomalies, in stable order.
var scoredFeatures = []string{
	"latency_ms",
	"memory_used_percent",
	"hit_rate",
	"ops_per_second",
	"connected_clients",
	"rejected_connections",
	"evicted_keys",
}

const defaultMinSamples = 20

// Scorer keeps Welford running statistics per stream and feature and reports
// how far the newest vector deviates from the stream's history.
type Scorer struct {
	mu         sync.Mutex
	streams    map[string]map[string]*runningStats
	minSamples int
}

type runningStats struct {
	count int
	mean  float64
	m2    float64
}

func (s *runningStats) push(value float64) {
	s.count++
	delta := value - s.mean
	s.mean += delta / float64(s.count)
	s.m2 += delta * (value - s.mean)
}

func (s *runningStats) stddev() float64 {
	if s.count < 2 {
		return 0
	}
	return math.Sqrt(s.m2 / float64(s.count-1))
}

// Option customises the scorer.
type Option func(*Scorer)

// WithMinSamples sets how many samples a stream needs before scores are
// emitted; below it everything scores zero to avoid cold-start false alarms.
func WithMinSamples(n int) Option {
	return func(s *Scorer) {
		if n > 0 {
			s.minSamples = n
		}
	}
}

// New constructs a Scorer.
func New(opts ...Option) *Scorer {
	scorer := &Scorer{
		streams:    make(map[string]map[string]*runningStats),
		minSamples: defaultMinSamples,
	}
	for _, opt := range opts {
		opt(scorer)
	}
	return scorer
}

// Score implements signal.Scorer. The returned severity is the largest
// absolute z-score across features squashed into [0,1]; factors list every
// feature with |z| >= 2 sorted by magnitude.
func (s *Scorer) Score(instanceID, datacenter string, features map[string]float64) (float64, []signal.Factor) {
	stream := instanceID + "/" + datacenter

	s.mu.Lock()
	defer s.mu.Unlock()

	stats, ok := s.streams[stream]
	if !ok {
		stats = make(map[string]*runningStats, len(scoredFeatures))
		s.streams[stream] = stats
	}

	trained := true
	zscores := make(map[string]float64, len(scoredFeatures))
	for _, name := range scoredFeatures {
		value, present := features[name]
		if !present {
			continue
		}
		rs, ok := stats[name]
		if !ok {
			rs = &runningStats{}
			stats[name] = rs
		}
		if rs.count < s.minSamples {
			trained = false
		}
		if sd := rs.stddev(); sd > 0 {
			zscores[name] = (value - rs.mean) / sd
		}
		rs.push(value)
	}

	if !trained {
		return 0, nil
	}

	maxAbs := 0.0
	factors := make([]signal.Factor, 0, len(zscores))
	for name, z := range zscores {
		abs := math.Abs(z)
		if abs > maxAbs {
			maxAbs = abs
		}
		if abs >= 2 {
			factors = append(factors, signal.Factor{Metric: name, ZScore: z})
		}
	}
	sort.Slice(factors, func(i, j int) bool {
		return math.Abs(factors[i].ZScore) > math.Abs(factors[j].ZScore)
	})

	// Squash |z| into [0,1]: z=2 ~ 0.46, z=4 ~ 0.76, z=8 ~ 0.95.
	score := 1 - math.Exp(-maxAbs/3.2)
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score, factors
}

var _ signal.Scorer = (*Scorer)(nil)
