package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadLayersYAMLOverDefaults(t *testing.T) {
	path := writeConfig(t, `
data_dir: /tmp/pc
employee_id: "42"
remote:
  base_url: http://127.0.0.1:8088
  timeout: 3s
cache:
  backend: file
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DataDir != "/tmp/pc" || cfg.EmployeeID != "42" {
		t.Fatalf("expected yaml values, got %+v", cfg)
	}
	if cfg.Remote.BaseURL != "http://127.0.0.1:8088" || cfg.Remote.Timeout != 3*time.Second {
		t.Fatalf("expected remote overrides, got %+v", cfg.Remote)
	}
	if cfg.Cache.Backend != "file" || cfg.Cache.Key != "attendance.snapshot" {
		t.Fatalf("expected file backend with default key, got %+v", cfg.Cache)
	}
	if cfg.Session.MaxDuration != 12*time.Hour || cfg.Session.TickInterval != time.Second {
		t.Fatalf("expected session defaults, got %+v", cfg.Session)
	}
	if cfg.DBPath() != filepath.Join("/tmp/pc", "punchclock.db") {
		t.Fatalf("unexpected db path %s", cfg.DBPath())
	}
}

func TestLoadEnvironmentOverridesYAML(t *testing.T) {
	path := writeConfig(t, "employee_id: \"42\"\nlog:\n  level: info\n")
	t.Setenv("PUNCHCLOCK_EMPLOYEE_ID", "77")
	t.Setenv("PUNCHCLOCK_TOKEN", "secret")
	t.Setenv("PUNCHCLOCK_LOG_LEVEL", "debug")
	t.Setenv("PUNCHCLOCK_SESSION_MAX_DURATION", "8h")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.EmployeeID != "77" || cfg.AccessToken != "secret" {
		t.Fatalf("expected env identity, got %q/%q", cfg.EmployeeID, cfg.AccessToken)
	}
	if cfg.Log.Level != "debug" || cfg.Session.MaxDuration != 8*time.Hour {
		t.Fatalf("expected env overrides, got log=%+v session=%+v", cfg.Log, cfg.Session)
	}
}

func TestLoadIgnoresTokenInYAML(t *testing.T) {
	path := writeConfig(t, "access_token: leaked\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AccessToken != "" {
		t.Fatalf("expected token to come only from the environment, got %q", cfg.AccessToken)
	}
}

func TestLoadExplicitMissingPathFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil || !strings.Contains(err.Error(), "read config") {
		t.Fatalf("expected read error, got %v", err)
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := writeConfig(t, "remote: [unterminated\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"defaults", func(*Config) {}, ""},
		{"empty data dir", func(c *Config) { c.DataDir = " " }, "data dir"},
		{"empty base url", func(c *Config) { c.Remote.BaseURL = "" }, "base url"},
		{"zero timeout", func(c *Config) { c.Remote.Timeout = 0 }, "positive"},
		{"tick above ceiling", func(c *Config) { c.Session.TickInterval = 13 * time.Hour }, "exceeds"},
		{"bad timezone", func(c *Config) { c.DisplayTimezone = "Mars/Olympus" }, "timezone"},
		{"unknown provider", func(c *Config) { c.Location.Provider = "gps" }, "provider"},
		{"unknown permission", func(c *Config) { c.Location.Permission = "maybe" }, "permission"},
		{"provider permission without plugin", func(c *Config) { c.Location.Permission = "provider" }, "requires the plugin"},
		{"plugin without path", func(c *Config) { c.Location.Provider = "plugin" }, "plugin path"},
		{"plugin with path", func(c *Config) {
			c.Location.Provider = "plugin"
			c.Location.Permission = "provider"
			c.Location.PluginPath = "/usr/local/bin/locator"
		}, ""},
		{"unknown backend", func(c *Config) { c.Cache.Backend = "etcd" }, "cache backend"},
		{"empty cache key", func(c *Config) { c.Cache.Key = "" }, "cache key"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.want == "" {
				if err != nil {
					t.Fatalf("expected valid config, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}
