// Package config loads and validates the YAML runtime configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/certscope/certscope/internal/store"
)

// JobConfig is one named scan specification. CIDRs, ports and excludes
// are comma-separated lists; sni maps an address literal to the hostnames
// probed on it.
type JobConfig struct {
	Name           string              `yaml:"name"`
	CIDRs          string              `yaml:"cidrs"`
	Ports          string              `yaml:"ports"`
	ExcludeTargets string              `yaml:"excludeTargets"`
	SNI            map[string][]string `yaml:"sni"`
}

// ToStore converts the config entry to its catalog representation.
func (j JobConfig) ToStore() store.Job {
	return store.Job{
		Name:           j.Name,
		CIDRs:          j.CIDRs,
		Ports:          j.Ports,
		ExcludeTargets: j.ExcludeTargets,
	}
}

// ScheduleConfig binds a cron frequency to a job. A full scan enumerates
// the job's address space; a rescan revisits targets already in the
// catalog, optionally only those last seen before sinceLastScan ago.
type ScheduleConfig struct {
	Name          string        `yaml:"name"`
	Job           string        `yaml:"job"`
	Frequency     string        `yaml:"frequency"`
	FullScan      bool          `yaml:"fullScan"`
	Rescan        bool          `yaml:"rescan"`
	SinceLastScan time.Duration `yaml:"sinceLastScan"`
}

// Config holds certscope runtime configuration.
type Config struct {
	DatabasePath string           `yaml:"databasePath"` // default "certscope.db"
	ListenAddr   string           `yaml:"listenAddr"`   // default ":8080"
	MetricsPath  string           `yaml:"metricsPath"`  // default "/metrics"
	Parallel     int              `yaml:"parallel"`     // default 256
	Timeout      time.Duration    `yaml:"timeout"`      // default 5s
	WarnBefore   time.Duration    `yaml:"warnBefore"`   // default 720h (30d)
	CritBefore   time.Duration    `yaml:"critBefore"`   // default 336h (14d)
	Jobs         []JobConfig      `yaml:"jobs"`
	Schedules    []ScheduleConfig `yaml:"schedules"`
}

// Defaults returns a Config with sane defaults.
func Defaults() *Config {
	return &Config{
		DatabasePath: "certscope.db",
		ListenAddr:   ":8080",
		MetricsPath:  "/metrics",
		Parallel:     256,
		Timeout:      5 * time.Second,
		WarnBefore:   720 * time.Hour, // 30 days
		CritBefore:   336 * time.Hour, // 14 days
	}
}

// Load reads a YAML config file and merges with defaults.
func Load(path string) (*Config, error) {
	c := Defaults()
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return c, nil
}

// Validate checks that the config values are sane. Malformed entries
// inside CIDR and port lists are not checked here; the enumerator skips
// those per entry at scan time.
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("databasePath must not be empty")
	}
	if c.ListenAddr == "" {
		return fmt.Errorf("listenAddr must not be empty")
	}
	if c.Parallel <= 0 {
		return fmt.Errorf("parallel must be positive, got %d", c.Parallel)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	if c.WarnBefore <= 0 {
		return fmt.Errorf("warnBefore must be positive, got %s", c.WarnBefore)
	}
	if c.CritBefore <= 0 {
		return fmt.Errorf("critBefore must be positive, got %s", c.CritBefore)
	}
	if c.CritBefore >= c.WarnBefore {
		return fmt.Errorf("critBefore (%s) must be less than warnBefore (%s)", c.CritBefore, c.WarnBefore)
	}

	jobs := make(map[string]bool, len(c.Jobs))
	for i, j := range c.Jobs {
		if j.Name == "" {
			return fmt.Errorf("jobs[%d]: name must not be empty", i)
		}
		if jobs[j.Name] {
			return fmt.Errorf("jobs[%d]: duplicate name %q", i, j.Name)
		}
		jobs[j.Name] = true
		if j.CIDRs == "" {
			return fmt.Errorf("job %q: cidrs must not be empty", j.Name)
		}
		if j.Ports == "" {
			return fmt.Errorf("job %q: ports must not be empty", j.Name)
		}
	}

	names := make(map[string]bool, len(c.Schedules))
	for i, s := range c.Schedules {
		if s.Name == "" {
			return fmt.Errorf("schedules[%d]: name must not be empty", i)
		}
		if names[s.Name] {
			return fmt.Errorf("schedules[%d]: duplicate name %q", i, s.Name)
		}
		names[s.Name] = true
		if s.Frequency == "" {
			return fmt.Errorf("schedule %q: frequency must not be empty", s.Name)
		}
		if !jobs[s.Job] {
			return fmt.Errorf("schedule %q: references unknown job %q", s.Name, s.Job)
		}
		if !s.FullScan && !s.Rescan {
			return fmt.Errorf("schedule %q: at least one of fullScan or rescan must be set", s.Name)
		}
		if s.SinceLastScan < 0 {
			return fmt.Errorf("schedule %q: sinceLastScan must not be negative", s.Name)
		}
		if s.SinceLastScan > 0 && !s.Rescan {
			return fmt.Errorf("schedule %q: sinceLastScan requires rescan", s.Name)
		}
	}
	return nil
}

// Job returns the named job config, or nil.
func (c *Config) Job(name string) *JobConfig {
	for i := range c.Jobs {
		if c.Jobs[i].Name == name {
			return &c.Jobs[i]
		}
	}
	return nil
}
