package health

// Status is the discretized health of one instance in one datacenter.
type Status string

const (
	StatusUnknown  Status = "unknown"
	StatusHealthy  Status = "healthy"
	StatusDegraded Status = "degraded"
	StatusFailing  Status = "failing"
	StatusFailed   Status = "failed"
)

// Statuses lists all states from best to worst.
func Statuses() []Status {
	return []Status{StatusUnknown, StatusHealthy, StatusDegraded, StatusFailing, StatusFailed}
}

// rank orders the known statuses by severity. Unknown carries rank zero and
// is excluded from failover candidacy before ranking matters.
func (s Status) rank() int {
	switch s {
	case StatusHealthy:
		return 1
	case StatusDegraded:
		return 2
	case StatusFailing:
		return 3
	case StatusFailed:
		return 4
	default:
		return 0
	}
}

// WorseThan reports whether s is strictly less healthy than other.
func (s Status) WorseThan(other Status) bool {
	return s.rank() > other.rank()
}
