package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const DefaultConfigPath = "/etc/failoverd/config.yaml"

// Config represents the runtime configuration for the failover engine daemon.
type Config struct {
	NodeName    string            `yaml:"node_name"`
	Instances   []InstanceConfig  `yaml:"instances"`
	Sources     SourcesConfig     `yaml:"sources"`
	Health      HealthConfig      `yaml:"health"`
	Failover    FailoverConfig    `yaml:"failover"`
	Coordinator CoordinatorConfig `yaml:"coordinator"`
	DNS         DNSConfig         `yaml:"dns"`
	Alerts      AlertsConfig      `yaml:"alerts"`
	API         APIConfig         `yaml:"api"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	DryRun      bool              `yaml:"dry_run"`
}

// InstanceConfig describes one replicated service and its datacenter endpoints.
type InstanceConfig struct {
	Name      string                    `yaml:"name"`
	ID        string                    `yaml:"id"`
	ActiveDC  string                    `yaml:"active_dc"`
	Password  string                    `yaml:"password"`
	Endpoints map[string]EndpointConfig `yaml:"endpoints"`
	Records   []DNSRecordConfig         `yaml:"dns_records"`
}

// InstanceID returns the configured id, defaulting to the instance name.
func (i InstanceConfig) InstanceID() string {
	if strings.TrimSpace(i.ID) != "" {
		return i.ID
	}
	return i.Name
}

// EndpointConfig is a single datacenter endpoint of an instance.
type EndpointConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Addr returns the host:port form of the endpoint.
func (e EndpointConfig) Addr() string {
	return fmt.Sprintf("%s:%d", e.Host, e.Port)
}

// DNSRecordConfig names a traffic record that must follow the active datacenter.
type DNSRecordConfig struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
	TTL  int64  `yaml:"ttl"`
}

// SourcesConfig sets the independent collection cadences and the optional
// external signal collaborators.
type SourcesConfig struct {
	CheckIntervalSec   int             `yaml:"check_interval_sec"`
	AnomalyIntervalSec int             `yaml:"anomaly_interval_sec"`
	ImpactIntervalSec  int             `yaml:"impact_interval_sec"`
	ImpactWindowSec    int             `yaml:"impact_window_sec"`
	Impact             *EndpointTarget `yaml:"impact"`
	Advisory           *AdvisoryConfig `yaml:"advisory"`
}

// EndpointTarget configures an optional HTTP collaborator.
type EndpointTarget struct {
	Endpoint   string `yaml:"endpoint"`
	APIKey     string `yaml:"api_key"`
	TimeoutSec int    `yaml:"timeout_sec"`
}

// AdvisoryConfig configures the optional advisory recommender.
type AdvisoryConfig struct {
	Endpoint   string `yaml:"endpoint"`
	APIKey     string `yaml:"api_key"`
	TimeoutSec int    `yaml:"timeout_sec"`
	// StaleSec bounds how long an advisory observation keeps counting
	// towards the consecutive-recommendation threshold.
	StaleSec int `yaml:"stale_sec"`
}

// HealthConfig drives snapshot aggregation and status discretization.
type HealthConfig struct {
	WindowSize        int                `yaml:"window_size"`
	WindowSec         int                `yaml:"window_sec"`
	Weights           map[string]float64 `yaml:"weights"`
	DegradedThreshold float64            `yaml:"degraded_threshold"`
	FailingThreshold  float64            `yaml:"failing_threshold"`
	FailedThreshold   float64            `yaml:"failed_threshold"`
}

// FailoverConfig carries the decision gates and action pipeline bounds.
type FailoverConfig struct {
	Auto                         bool    `yaml:"auto"`
	ConfidenceThreshold          float64 `yaml:"confidence_threshold"`
	ConsecutiveThreshold         int     `yaml:"consecutive_threshold"`
	AdvisoryConsecutiveThreshold int     `yaml:"advisory_consecutive_threshold"`
	AdvisoryConfidenceThreshold  float64 `yaml:"advisory_confidence_threshold"`
	AdvisoryCeiling              float64 `yaml:"advisory_ceiling"`
	CooldownSec                  int     `yaml:"cooldown_sec"`
	StabilizationSec             int     `yaml:"stabilization_sec"`
	ValidationGraceSec           int     `yaml:"validation_grace_sec"`
	ActionTimeoutSec             int     `yaml:"action_timeout_sec"`
	RetryMinSec                  int     `yaml:"retry_min_sec"`
	RetryMaxSec                  int     `yaml:"retry_max_sec"`
	RetryMaxAttempts             int     `yaml:"retry_max_attempts"`
	HistoryLimit                 int     `yaml:"history_limit"`
}

// CoordinatorConfig configures leader election and shared state storage.
type CoordinatorConfig struct {
	Enabled          bool           `yaml:"enabled"`
	EtcdEndpoints    []string       `yaml:"etcd_endpoints"`
	EtcdNamespace    string         `yaml:"etcd_namespace"`
	EtcdTLS          *EtcdTLSConfig `yaml:"etcd_tls"`
	LeaseKey         string         `yaml:"lease_key"`
	LeaseTTLSec      int            `yaml:"lease_ttl_sec"`
	RenewIntervalSec int            `yaml:"renew_interval_sec"`
	DialTimeoutSec   int            `yaml:"dial_timeout_sec"`
}

// EtcdTLSConfig configures optional TLS settings for connecting to etcd.
type EtcdTLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CAFile   string `yaml:"ca_file"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	Insecure bool   `yaml:"insecure_skip_verify"`
}

// DNSConfig selects and configures the traffic-steering provider.
type DNSConfig struct {
	Provider  string `yaml:"provider"`
	ZoneID    string `yaml:"zone_id"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	TTL       int64  `yaml:"ttl"`
}

// AlertsConfig enumerates the alert channels and their severity rate caps.
type AlertsConfig struct {
	Slack     *SlackConfig     `yaml:"slack"`
	Email     *EmailConfig     `yaml:"email"`
	PagerDuty *PagerDutyConfig `yaml:"pagerduty"`
	// MinIntervalSec maps severity to the minimum spacing between alerts of
	// the same type for the same instance. Failover alerts bypass these caps.
	MinIntervalSec map[string]int `yaml:"min_interval_sec"`
}

// SlackConfig configures the Slack webhook channel.
type SlackConfig struct {
	WebhookURL string `yaml:"webhook_url"`
}

// EmailConfig configures the SMTP channel.
type EmailConfig struct {
	Host        string   `yaml:"host"`
	Port        int      `yaml:"port"`
	From        string   `yaml:"from"`
	To          []string `yaml:"to"`
	Username    string   `yaml:"username"`
	Password    string   `yaml:"password"`
	TLSMode     string   `yaml:"tls_mode"`
	SkipVerify  bool     `yaml:"insecure_skip_verify"`
}

// PagerDutyConfig configures the PagerDuty events channel.
type PagerDutyConfig struct {
	ServiceKey string `yaml:"service_key"`
	ClientURL  string `yaml:"client_url"`
}

// APIConfig exposes the operator HTTP surface.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	APIKey  string `yaml:"api_key"`
}

// MetricsConfig defines observability exposure options.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// ValidationError aggregates multiple configuration validation failures.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s", strings.Join(e.Problems, "; "))
}

func (e *ValidationError) Is(target error) bool {
	var other *ValidationError
	return errors.As(target, &other)
}

// Load reads, parses, and validates a configuration from disk.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()
	return decode(f)
}

func decode(r io.Reader) (*Config, error) {
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)

	var cfg Config
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	cfg.applyEnvOverrides(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks for semantic correctness in the configuration.
func (c *Config) Validate() error {
	problems := make([]string, 0)

	if strings.TrimSpace(c.NodeName) == "" {
		problems = append(problems, "node_name is required")
	}
	if len(c.Instances) == 0 {
		problems = append(problems, "at least one instance must be configured")
	}
	seen := make(map[string]struct{}, len(c.Instances))
	for i := range c.Instances {
		for _, p := range c.Instances[i].validate() {
			problems = append(problems, fmt.Sprintf("instance[%d]: %s", i, p))
		}
		id := c.Instances[i].InstanceID()
		if _, dup := seen[id]; dup {
			problems = append(problems, fmt.Sprintf("instance[%d]: duplicate instance id %q", i, id))
		}
		seen[id] = struct{}{}
	}

	if c.Sources.CheckIntervalSec <= 0 {
		problems = append(problems, "sources.check_interval_sec must be greater than zero")
	}
	if c.Sources.AnomalyIntervalSec <= 0 {
		problems = append(problems, "sources.anomaly_interval_sec must be greater than zero")
	}
	if c.Sources.Impact != nil && strings.TrimSpace(c.Sources.Impact.Endpoint) == "" {
		problems = append(problems, "sources.impact.endpoint is required when impact analysis is configured")
	}
	if c.Sources.Advisory != nil {
		if strings.TrimSpace(c.Sources.Advisory.Endpoint) == "" {
			problems = append(problems, "sources.advisory.endpoint is required when advisory is configured")
		}
		if c.Sources.Advisory.StaleSec <= 0 {
			problems = append(problems, "sources.advisory.stale_sec must be greater than zero")
		}
	}

	if !(c.Health.DegradedThreshold > 0 && c.Health.DegradedThreshold < c.Health.FailingThreshold &&
		c.Health.FailingThreshold < c.Health.FailedThreshold && c.Health.FailedThreshold <= 1) {
		problems = append(problems, "health thresholds must satisfy 0 < degraded < failing < failed <= 1")
	}
	if c.Health.WindowSize <= 0 && c.Health.WindowSec <= 0 {
		problems = append(problems, "health window must be bounded by window_size or window_sec")
	}
	for kind, weight := range c.Health.Weights {
		if weight < 0 {
			problems = append(problems, fmt.Sprintf("health.weights[%s] must be non-negative", kind))
		}
	}

	if c.Failover.ConfidenceThreshold <= 0 || c.Failover.ConfidenceThreshold > 1 {
		problems = append(problems, "failover.confidence_threshold must be within (0,1]")
	}
	if c.Failover.ConsecutiveThreshold < 1 {
		problems = append(problems, "failover.consecutive_threshold must be at least 1")
	}
	if c.Failover.AdvisoryConsecutiveThreshold < 1 {
		problems = append(problems, "failover.advisory_consecutive_threshold must be at least 1")
	}
	if c.Failover.AdvisoryConfidenceThreshold <= 0 || c.Failover.AdvisoryConfidenceThreshold > 1 {
		problems = append(problems, "failover.advisory_confidence_threshold must be within (0,1]")
	}
	if c.Failover.AdvisoryCeiling < 0 || c.Failover.AdvisoryCeiling > 1 {
		problems = append(problems, "failover.advisory_ceiling must be within [0,1]")
	}
	if c.Failover.CooldownSec < 0 {
		problems = append(problems, "failover.cooldown_sec must be non-negative")
	}
	if c.Failover.RetryMaxSec < c.Failover.RetryMinSec {
		problems = append(problems, "failover.retry_max_sec must be greater than or equal to retry_min_sec")
	}
	if c.Failover.ActionTimeoutSec <= 0 {
		problems = append(problems, "failover.action_timeout_sec must be greater than zero")
	}

	if c.Coordinator.Enabled {
		if len(c.Coordinator.EtcdEndpoints) == 0 {
			problems = append(problems, "coordinator.etcd_endpoints must contain at least one endpoint")
		}
		if strings.TrimSpace(c.Coordinator.LeaseKey) == "" {
			problems = append(problems, "coordinator.lease_key is required")
		}
		if c.Coordinator.LeaseTTLSec <= 0 {
			problems = append(problems, "coordinator.lease_ttl_sec must be greater than zero")
		}
		if c.Coordinator.RenewIntervalSec <= 0 {
			problems = append(problems, "coordinator.renew_interval_sec must be greater than zero")
		}
		if c.Coordinator.RenewIntervalSec*2 > c.Coordinator.LeaseTTLSec {
			problems = append(problems, "coordinator.renew_interval_sec must be at most half of lease_ttl_sec to avoid spurious demotions")
		}
		if c.Coordinator.EtcdTLS != nil && c.Coordinator.EtcdTLS.Enabled {
			if strings.TrimSpace(c.Coordinator.EtcdTLS.CAFile) == "" {
				problems = append(problems, "coordinator.etcd_tls.ca_file is required when TLS is enabled")
			}
			if strings.TrimSpace(c.Coordinator.EtcdTLS.CertFile) == "" {
				problems = append(problems, "coordinator.etcd_tls.cert_file is required when TLS is enabled")
			}
			if strings.TrimSpace(c.Coordinator.EtcdTLS.KeyFile) == "" {
				problems = append(problems, "coordinator.etcd_tls.key_file is required when TLS is enabled")
			}
		}
	}

	if c.Failover.Auto && !c.DryRun {
		switch c.DNS.Provider {
		case "route53":
			if strings.TrimSpace(c.DNS.ZoneID) == "" {
				problems = append(problems, "dns.zone_id is required for the route53 provider")
			}
		case "none", "":
			problems = append(problems, "dns.provider is required when automatic failover is enabled")
		default:
			problems = append(problems, fmt.Sprintf("dns.provider %q is not supported", c.DNS.Provider))
		}
	}

	if c.Alerts.Email != nil {
		email := c.Alerts.Email
		if strings.TrimSpace(email.Host) == "" || email.Port <= 0 {
			problems = append(problems, "alerts.email requires host and port")
		}
		if strings.TrimSpace(email.From) == "" || len(email.To) == 0 {
			problems = append(problems, "alerts.email requires from and at least one to address")
		}
	}
	if c.Alerts.Slack != nil && strings.TrimSpace(c.Alerts.Slack.WebhookURL) == "" {
		problems = append(problems, "alerts.slack.webhook_url is required when slack is configured")
	}
	if c.Alerts.PagerDuty != nil && strings.TrimSpace(c.Alerts.PagerDuty.ServiceKey) == "" {
		problems = append(problems, "alerts.pagerduty.service_key is required when pagerduty is configured")
	}

	if c.API.Enabled {
		if strings.TrimSpace(c.API.Listen) == "" {
			problems = append(problems, "api.listen must be set when api.enabled is true")
		}
		if strings.TrimSpace(c.API.APIKey) == "" {
			problems = append(problems, "api.api_key must be set when api.enabled is true")
		}
	}
	if c.Metrics.Enabled && strings.TrimSpace(c.Metrics.Listen) == "" {
		problems = append(problems, "metrics.listen must be set when metrics.enabled is true")
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

func (i InstanceConfig) validate() []string {
	problems := make([]string, 0)
	if strings.TrimSpace(i.Name) == "" {
		problems = append(problems, "name is required")
	}
	if len(i.Endpoints) < 2 {
		problems = append(problems, "at least two datacenter endpoints are required")
	}
	for dc, ep := range i.Endpoints {
		if strings.TrimSpace(ep.Host) == "" || ep.Port <= 0 {
			problems = append(problems, fmt.Sprintf("endpoint %s requires host and port", dc))
		}
	}
	if strings.TrimSpace(i.ActiveDC) == "" {
		problems = append(problems, "active_dc is required")
	} else if _, ok := i.Endpoints[i.ActiveDC]; !ok && len(i.Endpoints) > 0 {
		problems = append(problems, fmt.Sprintf("active_dc %q has no endpoint", i.ActiveDC))
	}
	for j, record := range i.Records {
		if strings.TrimSpace(record.Name) == "" {
			problems = append(problems, fmt.Sprintf("dns_records[%d]: name is required", j))
		}
	}
	return problems
}

func (c *Config) applyDefaults() {
	if c.Sources.CheckIntervalSec == 0 {
		c.Sources.CheckIntervalSec = 30
	}
	if c.Sources.AnomalyIntervalSec == 0 {
		c.Sources.AnomalyIntervalSec = 60
	}
	if c.Sources.ImpactIntervalSec == 0 {
		c.Sources.ImpactIntervalSec = 60
	}
	if c.Sources.ImpactWindowSec == 0 {
		c.Sources.ImpactWindowSec = 300
	}
	if c.Sources.Advisory != nil && c.Sources.Advisory.StaleSec == 0 {
		c.Sources.Advisory.StaleSec = 600
	}

	if c.Health.WindowSize == 0 && c.Health.WindowSec == 0 {
		c.Health.WindowSize = 120
		c.Health.WindowSec = 900
	}
	if len(c.Health.Weights) == 0 {
		c.Health.Weights = map[string]float64{
			"check":   0.5,
			"anomaly": 0.3,
			"impact":  0.2,
		}
	}
	if c.Health.DegradedThreshold == 0 {
		c.Health.DegradedThreshold = 0.25
	}
	if c.Health.FailingThreshold == 0 {
		c.Health.FailingThreshold = 0.5
	}
	if c.Health.FailedThreshold == 0 {
		c.Health.FailedThreshold = 0.8
	}

	if c.Failover.ConfidenceThreshold == 0 {
		c.Failover.ConfidenceThreshold = 0.95
	}
	if c.Failover.ConsecutiveThreshold == 0 {
		c.Failover.ConsecutiveThreshold = 3
	}
	if c.Failover.AdvisoryConsecutiveThreshold == 0 {
		c.Failover.AdvisoryConsecutiveThreshold = 2
	}
	if c.Failover.AdvisoryConfidenceThreshold == 0 {
		c.Failover.AdvisoryConfidenceThreshold = 0.8
	}
	if c.Failover.AdvisoryCeiling == 0 {
		c.Failover.AdvisoryCeiling = 0.8
	}
	if c.Failover.CooldownSec == 0 {
		c.Failover.CooldownSec = 1800
	}
	if c.Failover.StabilizationSec == 0 {
		c.Failover.StabilizationSec = 3600
	}
	if c.Failover.ValidationGraceSec == 0 {
		c.Failover.ValidationGraceSec = 300
	}
	if c.Failover.ActionTimeoutSec == 0 {
		c.Failover.ActionTimeoutSec = 120
	}
	if c.Failover.RetryMinSec == 0 {
		c.Failover.RetryMinSec = 1
	}
	if c.Failover.RetryMaxSec == 0 {
		c.Failover.RetryMaxSec = 30
	}
	if c.Failover.RetryMaxAttempts == 0 {
		c.Failover.RetryMaxAttempts = 5
	}
	if c.Failover.HistoryLimit == 0 {
		c.Failover.HistoryLimit = 100
	}

	if c.Coordinator.Enabled {
		if strings.TrimSpace(c.Coordinator.LeaseKey) == "" {
			c.Coordinator.LeaseKey = "/failoverd/leader"
		}
		if c.Coordinator.LeaseTTLSec == 0 {
			c.Coordinator.LeaseTTLSec = 30
		}
		if c.Coordinator.RenewIntervalSec == 0 {
			c.Coordinator.RenewIntervalSec = 10
		}
		if c.Coordinator.DialTimeoutSec == 0 {
			c.Coordinator.DialTimeoutSec = 5
		}
	}

	if c.DNS.Provider == "" {
		c.DNS.Provider = "none"
	}
	if c.DNS.TTL == 0 {
		c.DNS.TTL = 60
	}
	if c.DNS.Region == "" {
		c.DNS.Region = "us-east-1"
	}

	if len(c.Alerts.MinIntervalSec) == 0 {
		c.Alerts.MinIntervalSec = map[string]int{
			"critical": 60,
			"error":    180,
			"warning":  300,
			"info":     600,
		}
	}

	if c.API.Listen == "" {
		c.API.Listen = "127.0.0.1:8080"
	}
	if c.Metrics.Listen == "" {
		c.Metrics.Listen = "127.0.0.1:9090"
	}
}

// applyEnvOverrides lets secrets come from the environment instead of the
// configuration file.
func (c *Config) applyEnvOverrides(getenv func(string) string) {
	if v := getenv("AWS_ACCESS_KEY_ID"); v != "" {
		c.DNS.AccessKey = v
	}
	if v := getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
		c.DNS.SecretKey = v
	}
	if v := getenv("AWS_REGION"); v != "" {
		c.DNS.Region = v
	}
	if v := getenv("FAILOVERD_API_KEY"); v != "" {
		c.API.APIKey = v
	}
	if c.Alerts.Slack != nil {
		if v := getenv("SLACK_WEBHOOK_URL"); v != "" {
			c.Alerts.Slack.WebhookURL = v
		}
	}
	if c.Alerts.Email != nil {
		if v := getenv("SMTP_PASSWORD"); v != "" {
			c.Alerts.Email.Password = v
		}
	}
	if c.Sources.Advisory != nil {
		if v := getenv("ADVISORY_API_KEY"); v != "" {
			c.Sources.Advisory.APIKey = v
		}
	}
	for i := range c.Instances {
		envKey := "REDIS_PASSWORD_" + strings.ToUpper(strings.ReplaceAll(c.Instances[i].InstanceID(), "-", "_"))
		if v := getenv(envKey); v != "" {
			c.Instances[i].Password = v
		}
	}
}

// CheckInterval returns the cadence of the connectivity probe source.
func (c *Config) CheckInterval() time.Duration {
	return time.Duration(c.Sources.CheckIntervalSec) * time.Second
}

// AnomalyInterval returns the cadence of the anomaly scoring source.
func (c *Config) AnomalyInterval() time.Duration {
	return time.Duration(c.Sources.AnomalyIntervalSec) * time.Second
}

// ImpactInterval returns the cadence of the client-impact source.
func (c *Config) ImpactInterval() time.Duration {
	return time.Duration(c.Sources.ImpactIntervalSec) * time.Second
}

// ImpactWindow returns the trailing window queried from the impact analyzer.
func (c *Config) ImpactWindow() time.Duration {
	return time.Duration(c.Sources.ImpactWindowSec) * time.Second
}

// AdvisoryStaleHorizon returns how long advisory observations stay countable.
func (c *Config) AdvisoryStaleHorizon() time.Duration {
	if c.Sources.Advisory == nil {
		return 0
	}
	return time.Duration(c.Sources.Advisory.StaleSec) * time.Second
}

// ObservationWindow returns the time bound of the health tracker window.
func (c *Config) ObservationWindow() time.Duration {
	return time.Duration(c.Health.WindowSec) * time.Second
}

// Cooldown returns the post-failover cooldown interval.
func (c *Config) Cooldown() time.Duration {
	return time.Duration(c.Failover.CooldownSec) * time.Second
}

// Stabilization returns the period over which the flapping discount decays.
func (c *Config) Stabilization() time.Duration {
	return time.Duration(c.Failover.StabilizationSec) * time.Second
}

// ValidationGrace returns the delay before the post-failover validation pass.
func (c *Config) ValidationGrace() time.Duration {
	return time.Duration(c.Failover.ValidationGraceSec) * time.Second
}

// ActionTimeout returns the hard bound on a single action pipeline execution.
func (c *Config) ActionTimeout() time.Duration {
	return time.Duration(c.Failover.ActionTimeoutSec) * time.Second
}

// RetryBounds returns the exponential backoff window for action retries.
func (c *Config) RetryBounds() (time.Duration, time.Duration) {
	return time.Duration(c.Failover.RetryMinSec) * time.Second, time.Duration(c.Failover.RetryMaxSec) * time.Second
}

// LeaseTTL returns the leader lease time to live.
func (c *Config) LeaseTTL() time.Duration {
	return time.Duration(c.Coordinator.LeaseTTLSec) * time.Second
}

// RenewInterval returns the cadence of leader lease renewal.
func (c *Config) RenewInterval() time.Duration {
	return time.Duration(c.Coordinator.RenewIntervalSec) * time.Second
}

// EtcdDialTimeout returns the etcd connection timeout.
func (c *Config) EtcdDialTimeout() time.Duration {
	return time.Duration(c.Coordinator.DialTimeoutSec) * time.Second
}
