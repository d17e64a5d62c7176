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
		t.Fatal(err)
	}
	return path
}

func TestLoad_MergesWithDefaults(t *testing.T) {
	path := writeConfig(t, `
parallel: 64
jobs:
  - name: edge
    cidrs: 192.0.2.0/28
    ports: "443,8443"
    sni:
      192.0.2.5: [a.example, b.example]
schedules:
  - name: nightly
    job: edge
    frequency: "0 2 * * *"
    fullScan: true
`)
	c, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if c.Parallel != 64 {
		t.Errorf("parallel = %d", c.Parallel)
	}
	if c.ListenAddr != ":8080" || c.Timeout != 5*time.Second {
		t.Errorf("defaults not merged: %+v", c)
	}
	job := c.Job("edge")
	if job == nil {
		t.Fatal("job edge missing")
	}
	if got := job.SNI["192.0.2.5"]; len(got) != 2 {
		t.Errorf("sni = %v", got)
	}
	if c.Schedules[0].Frequency != "0 2 * * *" {
		t.Errorf("frequency = %q", c.Schedules[0].Frequency)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		c := Defaults()
		c.Jobs = []JobConfig{{Name: "edge", CIDRs: "10.0.0.0/24", Ports: "443"}}
		c.Schedules = []ScheduleConfig{{Name: "s", Job: "edge", Frequency: "@daily", FullScan: true}}
		return c
	}
	if err := base().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"zero parallel", func(c *Config) { c.Parallel = 0 }, "parallel"},
		{"negative parallel", func(c *Config) { c.Parallel = -3 }, "parallel"},
		{"zero timeout", func(c *Config) { c.Timeout = 0 }, "timeout"},
		{"crit above warn", func(c *Config) { c.CritBefore = c.WarnBefore + time.Hour }, "critBefore"},
		{"empty listen addr", func(c *Config) { c.ListenAddr = "" }, "listenAddr"},
		{"empty db path", func(c *Config) { c.DatabasePath = "" }, "databasePath"},
		{"job without name", func(c *Config) { c.Jobs[0].Name = "" }, "name"},
		{"job without cidrs", func(c *Config) { c.Jobs[0].CIDRs = "" }, "cidrs"},
		{"job without ports", func(c *Config) { c.Jobs[0].Ports = "" }, "ports"},
		{"duplicate job", func(c *Config) { c.Jobs = append(c.Jobs, c.Jobs[0]) }, "duplicate"},
		{"schedule unknown job", func(c *Config) { c.Schedules[0].Job = "ghost" }, "unknown job"},
		{"schedule without frequency", func(c *Config) { c.Schedules[0].Frequency = "" }, "frequency"},
		{"schedule without mode", func(c *Config) { c.Schedules[0].FullScan = false }, "fullScan or rescan"},
		{"sinceLastScan without rescan", func(c *Config) { c.Schedules[0].SinceLastScan = time.Hour }, "requires rescan"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := base()
			tc.mutate(c)
			err := c.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error %q does not mention %q", err, tc.wantErr)
			}
		})
	}
}

func TestToStore(t *testing.T) {
	j := JobConfig{Name: "edge", CIDRs: "10.0.0.0/24", Ports: "443", ExcludeTargets: "10.0.0.1"}
	got := j.ToStore()
	if got.Name != "edge" || got.CIDRs != "10.0.0.0/24" || got.ExcludeTargets != "10.0.0.1" {
		t.Errorf("ToStore = %+v", got)
	}
}
