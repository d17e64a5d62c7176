package cli

import (
	"bytes"
	"strings"
	"testing"
)

func TestRootCommand_Help(t *testing.T) {
	cmd := rootCmd
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--help"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("root --help failed: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "certscope") {
		t.Error("expected 'certscope' in help output")
	}
	for _, sub := range []string{"scan", "run", "verify", "check", "trust", "jobs", "version"} {
		if !strings.Contains(out, sub) {
			t.Errorf("expected %q subcommand in help output", sub)
		}
	}
}

func TestVersionCommand(t *testing.T) {
	SetBuildInfo("test-v0.0.1", "abc", "today")
	defer SetBuildInfo("dev", "none", "unknown")

	ver, _, err := rootCmd.Find([]string{"version"})
	if err != nil {
		t.Fatalf("failed to find 'version' command: %v", err)
	}
	if ver.Use != "version" {
		t.Errorf("expected Use='version', got %q", ver.Use)
	}
	if version != "test-v0.0.1" {
		t.Errorf("expected version 'test-v0.0.1', got %q", version)
	}
}

func TestRootCommand_LogFlags(t *testing.T) {
	cmd := rootCmd

	logLevel := cmd.PersistentFlags().Lookup("log-level")
	if logLevel == nil {
		t.Fatal("expected --log-level persistent flag")
	}
	if logLevel.DefValue != "info" {
		t.Errorf("expected default log-level 'info', got %q", logLevel.DefValue)
	}

	logFormat := cmd.PersistentFlags().Lookup("log-format")
	if logFormat == nil {
		t.Fatal("expected --log-format persistent flag")
	}
	if logFormat.DefValue != "text" {
		t.Errorf("expected default log-format 'text', got %q", logFormat.DefValue)
	}
}

func TestScanCommand_Flags(t *testing.T) {
	scan, _, err := rootCmd.Find([]string{"scan"})
	if err != nil {
		t.Fatalf("failed to find 'scan' command: %v", err)
	}
	for _, name := range []string{"config", "all", "parallel", "timeout", "rescan", "since-last-scan"} {
		if scan.Flags().Lookup(name) == nil {
			t.Errorf("scan is missing --%s flag", name)
		}
	}
}

func TestTrustCommand_Subcommands(t *testing.T) {
	for _, path := range [][]string{{"trust", "add"}, {"trust", "remove"}, {"trust", "export"}} {
		if _, _, err := rootCmd.Find(path); err != nil {
			t.Errorf("failed to find %v: %v", path, err)
		}
	}
}

func TestCheckCommand_RequiresHost(t *testing.T) {
	chk, _, err := rootCmd.Find([]string{"check"})
	if err != nil {
		t.Fatalf("failed to find 'check' command: %v", err)
	}
	if err := chk.Args(chk, nil); err == nil {
		t.Error("check without a host should be rejected")
	}
	if err := chk.Args(chk, []string{"web.example"}); err != nil {
		t.Errorf("check with a host rejected: %v", err)
	}
}
