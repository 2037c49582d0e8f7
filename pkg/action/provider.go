// Package action executes committed failover decisions: traffic record
// updates and the alert lifecycle around them.
package action

import (
	"context"

	"github.com/failoverd/failoverd/pkg/observability"
)

// Record is one traffic record pointed at the failover target.
type Record struct {
	Zone  string
	Name  string
	Type  string
	Value string
	TTL   int64
}

// DNSProvider applies traffic records. SetRecord must be idempotent:
// re-applying an already-current record is a no-op success.
type DNSProvider interface {
	SetRecord(ctx context.Context, record Record) error
}

// DNSProviderFunc adapts a function to the DNSProvider interface.
type DNSProviderFunc func(ctx context.Context, record Record) error

func (f DNSProviderFunc) SetRecord(ctx context.Context, record Record) error {
	return f(ctx, record)
}

// DryRunProvider logs the records it would apply without touching anything.
type DryRunProvider struct {
	logger observability.Logger
}

func NewDryRunProvider(logger observability.Logger) *DryRunProvider {
	return &DryRunProvider{logger: logger}
}

func (p *DryRunProvider) SetRecord(ctx context.Context, record Record) error {
	if p.logger == nil {
		return nil
	}
	return p.logger.Log(ctx, observability.Event{
		Level:     observability.LevelInfo,
		Component: "action",
		Event:     "dns_dry_run",
		Message:   "would upsert traffic record",
		Fields: map[string]interface{}{
			"zone":  record.Zone,
			"name":  record.Name,
			"type":  record.Type,
			"value": record.Value,
			"ttl":   record.TTL,
		},
	})
}
