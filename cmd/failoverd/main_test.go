package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func simulateConfig(eastAddr, westAddr string) string {
	eastHost, eastPort := splitHostPort(eastAddr)
	westHost, westPort := splitHostPort(westAddr)
	return fmt.Sprintf(`
node_name: node-a
instances:
  - name: sessions
    active_dc: dc-east
    endpoints:
      dc-east:
        host: %s
        port: %s
      dc-west:
        host: %s
        port: %s
    dns_records:
      - name: sessions.db.example.com
        type: CNAME
failover:
  auto: false
dns:
  provider: none
`, eastHost, eastPort, westHost, westPort)
}

func splitHostPort(addr string) (string, string) {
	idx := strings.LastIndex(addr, ":")
	return addr[:idx], addr[idx+1:]
}

func TestRunDispatchesCommands(t *testing.T) {
	cases := []struct {
		name string
		args []string
		want int
	}{
		{name: "no arguments", args: nil, want: exitUsage},
		{name: "unknown command", args: []string{"bogus"}, want: exitUsage},
		{name: "version", args: []string{"version"}, want: exitOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := run(tc.args); got != tc.want {
				t.Fatalf("expected exit code %d, got %d", tc.want, got)
			}
		})
	}
}

func TestCommandValidateAcceptsValidConfig(t *testing.T) {
	configPath := writeConfig(t, simulateConfig("redis-east.internal:6379", "redis-west.internal:6379"))

	var stdout, stderr bytes.Buffer
	exitCode := commandValidateWithWriters([]string{"--config", configPath}, &stdout, &stderr)
	if exitCode != exitOK {
		t.Fatalf("expected exitOK, got %d (stderr: %s)", exitCode, stderr.String())
	}
	if !strings.Contains(stdout.String(), "is valid") {
		t.Fatalf("expected validation confirmation, got: %s", stdout.String())
	}
}

func TestCommandValidateRejectsBrokenConfig(t *testing.T) {
	configPath := writeConfig(t, `
node_name: node-a
instances: []
`)

	var stdout, stderr bytes.Buffer
	exitCode := commandValidateWithWriters([]string{"--config", configPath}, &stdout, &stderr)
	if exitCode != exitConfigError {
		t.Fatalf("expected exitConfigError, got %d (stdout: %s)", exitCode, stdout.String())
	}
	if !strings.Contains(stderr.String(), "configuration invalid") {
		t.Fatalf("expected validation failure message, got: %s", stderr.String())
	}
}

func TestCommandValidateMissingFile(t *testing.T) {
	var stdout, stderr bytes.Buffer
	exitCode := commandValidateWithWriters([]string{"--config", filepath.Join(t.TempDir(), "absent.yaml")}, &stdout, &stderr)
	if exitCode != exitConfigError {
		t.Fatalf("expected exitConfigError for missing file, got %d", exitCode)
	}
}

func TestCommandSimulateWithUnreachableEndpoints(t *testing.T) {
	// Port 1 on loopback is refused immediately, so the probe reports the
	// endpoints as failed without waiting out a timeout.
	configPath := writeConfig(t, simulateConfig("127.0.0.1:1", "127.0.0.1:1"))

	var stdout, stderr bytes.Buffer
	exitCode := commandSimulateWithWriters([]string{"--config", configPath}, &stdout, &stderr)
	if exitCode != exitOK {
		t.Fatalf("expected exitOK, got %d (stderr: %s)", exitCode, stderr.String())
	}

	output := stdout.String()
	if !strings.Contains(output, "instance sessions (active dc-east):") {
		t.Fatalf("expected instance section, got: %s", output)
	}
	if !strings.Contains(output, "failed") {
		t.Fatalf("expected failed endpoint status, got: %s", output)
	}
	if !strings.Contains(output, "no failover candidate") {
		t.Fatalf("expected no candidate with every endpoint down, got: %s", output)
	}
	if !strings.Contains(output, "no failover actions performed in simulation mode") {
		t.Fatalf("expected simulation notice, got: %s", output)
	}
}

func TestCommandSimulateRejectsBrokenConfig(t *testing.T) {
	configPath := writeConfig(t, "node_name: [")

	var stdout, stderr bytes.Buffer
	exitCode := commandSimulateWithWriters([]string{"--config", configPath}, &stdout, &stderr)
	if exitCode != exitConfigError {
		t.Fatalf("expected exitConfigError, got %d (stdout: %s)", exitCode, stdout.String())
	}
}
