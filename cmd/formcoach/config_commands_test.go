package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCommand()
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func TestConfigInitWritesSampleFile(t *testing.T) {
	target := filepath.Join(t.TempDir(), "config.toml")

	out, err := runCommand(t, "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if !strings.Contains(out, target) {
		t.Fatalf("output must name the written file, got %q", out)
	}
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("sample config not written: %v", err)
	}

	if _, err := runCommand(t, "config", "init", "--path", target); err == nil {
		t.Fatal("a second init without --overwrite must fail")
	}
}

func TestConfigValidateReportsBrokenRules(t *testing.T) {
	dir := t.TempDir()

	rulesPath := filepath.Join(dir, "rules.toml")
	rules := `
[[exercise]]
id = "squat"
name = "Squat"
primary_joint = "left_hip"
start_threshold = 160.0
target_extremum = 100.0
debounce_velocity = 20.0
min_rep_duration_ms = 600

[[exercise]]
id = "cable_curl"
name = "Cable Curl"
primary_joint = "left_wrist"
start_threshold = 160.0
target_extremum = 60.0
`
	if err := os.WriteFile(rulesPath, []byte(rules), 0o644); err != nil {
		t.Fatalf("write rules: %v", err)
	}

	cfgPath := filepath.Join(dir, "config.toml")
	cfgBody := fmt.Sprintf(`
[paths]
state_dir = %q
log_dir = %q
rules_path = %q
`, filepath.Join(dir, "state"), filepath.Join(dir, "log"), rulesPath)
	if err := os.WriteFile(cfgPath, []byte(cfgBody), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	out, err := runCommand(t, "config", "validate", "--config", cfgPath)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !strings.Contains(out, "1 usable, 1 rejected") {
		t.Fatalf("expected rule counts in output, got %q", out)
	}
	if !strings.Contains(out, "cable_curl") || !strings.Contains(out, "left_wrist") {
		t.Fatalf("rejected exercise must be reported with its error, got %q", out)
	}
}
