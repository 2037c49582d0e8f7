package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const validConfigYAML = `
node_name: node-a
instances:
  - name: sessions
    active_dc: dc-east
    endpoints:
      dc-east:
        host: redis-east.internal
        port: 6379
      dc-west:
        host: redis-west.internal
        port: 6379
    dns_records:
      - name: sessions.db.example.com
        type: CNAME
failover:
  auto: true
coordinator:
  enabled: true
  etcd_endpoints:
    - https://etcd-1:2379
dns:
  provider: route53
  zone_id: Z123456
api:
  enabled: true
  listen: 127.0.0.1:8080
  api_key: secret
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadValidConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfigYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.NodeName != "node-a" {
		t.Errorf("expected node name node-a, got %q", cfg.NodeName)
	}
	if len(cfg.Instances) != 1 {
		t.Fatalf("expected one instance, got %d", len(cfg.Instances))
	}
	if got := cfg.Instances[0].InstanceID(); got != "sessions" {
		t.Errorf("expected instance id to default to name, got %q", got)
	}
	if got := cfg.Instances[0].Endpoints["dc-east"].Addr(); got != "redis-east.internal:6379" {
		t.Errorf("unexpected endpoint addr %q", got)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfigYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Failover.ConfidenceThreshold != 0.95 {
		t.Errorf("expected default confidence threshold 0.95, got %v", cfg.Failover.ConfidenceThreshold)
	}
	if cfg.Failover.ConsecutiveThreshold != 3 {
		t.Errorf("expected default consecutive threshold 3, got %d", cfg.Failover.ConsecutiveThreshold)
	}
	if cfg.Failover.HistoryLimit != 100 {
		t.Errorf("expected default history limit 100, got %d", cfg.Failover.HistoryLimit)
	}
	if cfg.Failover.AdvisoryConfidenceThreshold != 0.8 {
		t.Errorf("expected default advisory confidence threshold 0.8, got %v", cfg.Failover.AdvisoryConfidenceThreshold)
	}
	if cfg.Health.Weights["check"] != 0.5 {
		t.Errorf("expected default check weight 0.5, got %v", cfg.Health.Weights["check"])
	}
	if cfg.Alerts.MinIntervalSec["critical"] != 60 {
		t.Errorf("expected default critical min interval 60, got %d", cfg.Alerts.MinIntervalSec["critical"])
	}
	if cfg.Coordinator.LeaseTTLSec != 30 || cfg.Coordinator.RenewIntervalSec != 10 {
		t.Errorf("unexpected lease defaults: ttl=%d renew=%d", cfg.Coordinator.LeaseTTLSec, cfg.Coordinator.RenewIntervalSec)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	_, err := Load(writeConfig(t, validConfigYAML+"\nunknown_key: true\n"))
	if err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
	if !strings.Contains(err.Error(), "unknown_key") {
		t.Errorf("expected error to name the unknown field, got %v", err)
	}
}

func TestValidateAggregatesProblems(t *testing.T) {
	cfg := &Config{}
	cfg.applyDefaults()

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}

	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if len(validationErr.Problems) < 2 {
		t.Errorf("expected multiple problems, got %v", validationErr.Problems)
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(cfg *Config)
		problem string
	}{
		{
			name: "active dc without endpoint",
			mutate: func(cfg *Config) {
				cfg.Instances[0].ActiveDC = "dc-south"
			},
			problem: "active_dc",
		},
		{
			name: "single endpoint",
			mutate: func(cfg *Config) {
				delete(cfg.Instances[0].Endpoints, "dc-west")
			},
			problem: "at least two datacenter endpoints",
		},
		{
			name: "duplicate instance ids",
			mutate: func(cfg *Config) {
				cfg.Instances = append(cfg.Instances, cfg.Instances[0])
			},
			problem: "duplicate instance id",
		},
		{
			name: "inverted health thresholds",
			mutate: func(cfg *Config) {
				cfg.Health.DegradedThreshold = 0.9
			},
			problem: "health thresholds",
		},
		{
			name: "confidence threshold out of range",
			mutate: func(cfg *Config) {
				cfg.Failover.ConfidenceThreshold = 1.5
			},
			problem: "confidence_threshold",
		},
		{
			name: "advisory confidence threshold out of range",
			mutate: func(cfg *Config) {
				cfg.Failover.AdvisoryConfidenceThreshold = 1.2
			},
			problem: "advisory_confidence_threshold",
		},
		{
			name: "renew interval too close to lease ttl",
			mutate: func(cfg *Config) {
				cfg.Coordinator.RenewIntervalSec = 20
			},
			problem: "renew_interval_sec",
		},
		{
			name: "auto failover without dns zone",
			mutate: func(cfg *Config) {
				cfg.DNS.ZoneID = ""
			},
			problem: "zone_id",
		},
		{
			name: "unsupported dns provider",
			mutate: func(cfg *Config) {
				cfg.DNS.Provider = "cloudflare"
			},
			problem: "not supported",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, validConfigYAML))
			if err != nil {
				t.Fatalf("unexpected error loading base config: %v", err)
			}

			tc.mutate(cfg)
			err = cfg.Validate()
			if err == nil {
				t.Fatalf("expected validation error containing %q, got nil", tc.problem)
			}
			if !strings.Contains(err.Error(), tc.problem) {
				t.Errorf("expected error containing %q, got %v", tc.problem, err)
			}
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfigYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	env := map[string]string{
		"AWS_ACCESS_KEY_ID":       "AKIAEXAMPLE",
		"AWS_SECRET_ACCESS_KEY":   "shh",
		"FAILOVERD_API_KEY":       "rotated",
		"REDIS_PASSWORD_SESSIONS": "hunter2",
	}
	cfg.applyEnvOverrides(func(key string) string { return env[key] })

	if cfg.DNS.AccessKey != "AKIAEXAMPLE" {
		t.Errorf("expected aws access key override, got %q", cfg.DNS.AccessKey)
	}
	if cfg.API.APIKey != "rotated" {
		t.Errorf("expected api key override, got %q", cfg.API.APIKey)
	}
	if cfg.Instances[0].Password != "hunter2" {
		t.Errorf("expected instance password override, got %q", cfg.Instances[0].Password)
	}
}

func TestDurationAccessors(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfigYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Cooldown().Seconds() != 1800 {
		t.Errorf("unexpected cooldown %v", cfg.Cooldown())
	}
	minDelay, maxDelay := cfg.RetryBounds()
	if minDelay.Seconds() != 1 || maxDelay.Seconds() != 30 {
		t.Errorf("unexpected retry bounds %v %v", minDelay, maxDelay)
	}
	if cfg.ObservationWindow().Seconds() != 900 {
		t.Errorf("unexpected observation window %v", cfg.ObservationWindow())
	}
}
