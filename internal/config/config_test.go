package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v, want nil", err)
	}
	if cfg.Analysis.WatchdogTimeout != 120*time.Second {
		t.Errorf("watchdog = %s, want 2m0s", cfg.Analysis.WatchdogTimeout)
	}
	if cfg.Analysis.Cooldown != 30*time.Second {
		t.Errorf("cooldown = %s, want 30s", cfg.Analysis.Cooldown)
	}
	if cfg.Scan.DefaultPrefix != "192.168.1" {
		t.Errorf("default prefix = %q, want 192.168.1", cfg.Scan.DefaultPrefix)
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("SCAN_DEFAULT_PREFIX", "10.0.5")
	t.Setenv("SCAN_PROBE_PORTS", "80, 8554")
	t.Setenv("SCAN_PROBE_TIMEOUT", "250ms")
	t.Setenv("ANALYSIS_COOLDOWN", "45")
	t.Setenv("MINIO_USE_SSL", "true")
	t.Setenv("HTTP_PORT", "not-a-number")

	cfg := Default()
	cfg.ApplyEnv()

	if cfg.Scan.DefaultPrefix != "10.0.5" {
		t.Errorf("prefix = %q, want 10.0.5", cfg.Scan.DefaultPrefix)
	}
	if len(cfg.Scan.ProbePorts) != 2 || cfg.Scan.ProbePorts[1] != 8554 {
		t.Errorf("probe ports = %v, want [80 8554]", cfg.Scan.ProbePorts)
	}
	if cfg.Scan.ProbeTimeout != 250*time.Millisecond {
		t.Errorf("probe timeout = %s, want 250ms", cfg.Scan.ProbeTimeout)
	}
	if cfg.Analysis.Cooldown != 45*time.Second {
		t.Errorf("cooldown = %s, want 45s", cfg.Analysis.Cooldown)
	}
	if !cfg.MinIO.UseSSL {
		t.Errorf("minio use_ssl = false, want true")
	}
	if cfg.Server.Port != 8090 {
		t.Errorf("server port = %d, want default 8090 on invalid input", cfg.Server.Port)
	}
}

func TestLoadMergesClassifyPortsIntoScanPorts(t *testing.T) {
	t.Setenv("CAMSCOUT_CONFIG", "")
	t.Setenv("SCAN_PROBE_PORTS", "80")
	t.Setenv("CLASSIFY_PORTS", "8000,80,8443")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	got := cfg.Scan.ProbePorts
	if len(got) != 3 || got[0] != 80 || got[1] != 8000 || got[2] != 8443 {
		t.Fatalf("probe ports = %v, want [80 8000 8443]", got)
	}
}

func TestDefaultScanPortsCoverClassifyPorts(t *testing.T) {
	cfg := Default()
	probe := make(map[int]bool)
	for _, p := range cfg.Scan.ProbePorts {
		probe[p] = true
	}
	for _, p := range cfg.Classify.Ports {
		if !probe[p] {
			t.Errorf("classify port %d missing from scan ports %v", p, cfg.Scan.ProbePorts)
		}
	}
}

func TestLoadFileOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cam-scout.yaml")
	content := `
scan:
  default_prefix: "172.16.0"
  max_concurrency: 8
analysis:
  watchdog_timeout: 90s
mqtt:
  host: broker.local
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := Default()
	if err := cfg.LoadFile(path); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Scan.DefaultPrefix != "172.16.0" || cfg.Scan.MaxConcurrency != 8 {
		t.Errorf("scan = %+v, want prefix 172.16.0 concurrency 8", cfg.Scan)
	}
	if cfg.Analysis.WatchdogTimeout != 90*time.Second {
		t.Errorf("watchdog = %s, want 1m30s", cfg.Analysis.WatchdogTimeout)
	}
	if cfg.Analysis.Cooldown != 30*time.Second {
		t.Errorf("cooldown = %s, want untouched 30s", cfg.Analysis.Cooldown)
	}
	if !cfg.MQTT.Enabled() {
		t.Errorf("mqtt should be enabled when host is set")
	}
}

func TestValidateRejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad prefix", func(c *Config) { c.Scan.DefaultPrefix = "192.168" }, "default_prefix"},
		{"no ports", func(c *Config) { c.Classify.Ports = nil }, "classify.ports"},
		{"retention below cooldown", func(c *Config) { c.Analysis.Retention = time.Second }, "retention"},
		{"zero concurrency", func(c *Config) { c.Scan.MaxConcurrency = 0 }, "max_concurrency"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("Validate() = %v, want error containing %q", err, tc.want)
			}
		})
	}
}

func TestValidPrefix(t *testing.T) {
	cases := map[string]bool{
		"192.168.1": true,
		"127.0.0":   true,
		"10.0.256":  false,
		"10.0":      false,
		"10.0.0.1":  false,
		"a.b.c":     false,
		"10..1":     false,
		"10.01.1":   false,
	}
	for in, want := range cases {
		if got := ValidPrefix(in); got != want {
			t.Errorf("ValidPrefix(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestInitLoggerFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := initLogger(LogConfig{Level: "debug", Format: "json"}, &buf)
	logger.Debug("hello", "component", "test")
	if !strings.Contains(buf.String(), `"component":"test"`) {
		t.Fatalf("json log line = %q, want component attribute", buf.String())
	}
}
