// Package route53 applies traffic records through AWS Route 53.
package route53

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/route53"
	"github.com/aws/aws-sdk-go-v2/service/route53/types"

	"github.com/failoverd/failoverd/pkg/action"
)

// API is the subset of the Route 53 client the provider uses.
type API interface {
	ChangeResourceRecordSets(ctx context.Context, in *route53.ChangeResourceRecordSetsInput, optFns ...func(*route53.Options)) (*route53.ChangeResourceRecordSetsOutput, error)
}

// Options configures the provider.
type Options struct {
	Region string
	// AccessKey and SecretKey select static credentials; leave both empty
	// to use the default AWS credential chain.
	AccessKey string
	SecretKey string
	// ZoneID is the default hosted zone for records that carry none.
	ZoneID string
}

// Provider upserts records into Route 53 hosted zones. UPSERT makes the
// operation idempotent: re-applying a current record is a no-op.
type Provider struct {
	api    API
	zoneID string
}

// New connects to Route 53 with the given options.
func New(ctx context.Context, opts Options) (*Provider, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(opts.Region),
	}
	if opts.AccessKey != "" && opts.SecretKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &Provider{api: route53.NewFromConfig(cfg), zoneID: opts.ZoneID}, nil
}

// NewWithAPI builds a provider over an existing client, for tests.
func NewWithAPI(api API, zoneID string) *Provider {
	return &Provider{api: api, zoneID: zoneID}
}

func (p *Provider) SetRecord(ctx context.Context, record action.Record) error {
	zone := record.Zone
	if zone == "" {
		zone = p.zoneID
	}
	if zone == "" {
		return fmt.Errorf("record %s has no hosted zone", record.Name)
	}

	recordType := types.RRType(strings.ToUpper(record.Type))
	if recordType == "" {
		recordType = types.RRTypeCname
	}
	ttl := record.TTL
	if ttl <= 0 {
		ttl = 60
	}

	_, err := p.api.ChangeResourceRecordSets(ctx, &route53.ChangeResourceRecordSetsInput{
		HostedZoneId: aws.String(zone),
		ChangeBatch: &types.ChangeBatch{
			Comment: aws.String("failoverd traffic steering"),
			Changes: []types.Change{
				{
					Action: types.ChangeActionUpsert,
					ResourceRecordSet: &types.ResourceRecordSet{
						Name: aws.String(fqdn(record.Name)),
						Type: recordType,
						TTL:  aws.Int64(ttl),
						ResourceRecords: []types.ResourceRecord{
							{Value: aws.String(recordValue(recordType, record.Value))},
						},
					},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("upsert %s in zone %s: %w", record.Name, zone, err)
	}
	return nil
}

// fqdn normalizes a record name to its trailing-dot form.
func fqdn(name string) string {
	if strings.HasSuffix(name, ".") {
		return name
	}
	return name + "."
}

// recordValue normalizes CNAME targets to trailing-dot form; address records
// pass through untouched.
func recordValue(recordType types.RRType, value string) string {
	if recordType == types.RRTypeCname {
		return fqdn(value)
	}
	return value
}
