package observability

// MetricType distinguishes the supported measurement kinds.
type MetricType string

const (
	// MetricCounter accumulates monotonically increasing values.
	MetricCounter MetricType = "counter"
	// MetricHistogram records value distributions such as latencies.
	MetricHistogram MetricType = "histogram"
	// MetricGauge tracks a value that can move up and down, such as the
	// current composite health score or leadership status.
	MetricGauge MetricType = "gauge"
)

// Metric is a single measurement emitted by an engine component.
type Metric struct {
	Name        string
	Type        MetricType
	Value       float64
	Labels      map[string]string
	Description string
	Unit        string
}

// MetricsCollector consumes metrics for aggregation and exposure.
type MetricsCollector interface {
	Collect(Metric)
}

// MetricsCollectorFunc adapts a function into a MetricsCollector.
type MetricsCollectorFunc func(Metric)

// Collect implements MetricsCollector.
func (f MetricsCollectorFunc) Collect(metric Metric) {
	f(metric)
}

// NoopMetricsCollector discards all measurements.
type NoopMetricsCollector struct{}

// Collect implements MetricsCollector.
func (NoopMetricsCollector) Collect(Metric) {}

var _ MetricsCollector = MetricsCollectorFunc(nil)
var _ MetricsCollector = NoopMetricsCollector{}
