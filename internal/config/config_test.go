package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"formcoach/internal/config"
)

func TestDefaultValidates(t *testing.T) {
	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestLoadAppliesOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[sync]
max_skew_ms = 25
sync_timeout_ms = 150

[fusion]
confidence_threshold = 0.4

[camera_a]
id = "overhead"
snapshot_url = "http://127.0.0.1:8080/shot.jpg"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if !exists {
		t.Fatalf("expected config at %s to exist", resolved)
	}
	if cfg.Sync.MaxSkewMS != 25 {
		t.Fatalf("expected max_skew_ms 25, got %d", cfg.Sync.MaxSkewMS)
	}
	if cfg.Fusion.ConfidenceThreshold != 0.4 {
		t.Fatalf("expected confidence_threshold 0.4, got %f", cfg.Fusion.ConfidenceThreshold)
	}
	if cfg.CameraA.ID != "overhead" {
		t.Fatalf("expected camera_a.id overhead, got %q", cfg.CameraA.ID)
	}
	// Untouched sections keep defaults.
	if cfg.Angles.VelocityWindow != 3 {
		t.Fatalf("expected default velocity_window 3, got %d", cfg.Angles.VelocityWindow)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantMsg string
	}{
		{
			name:    "duplicate camera ids",
			content: "[camera_a]\nid = \"x\"\n[camera_b]\nid = \"x\"\n",
			wantMsg: "camera ids must differ",
		},
		{
			name:    "sync timeout below skew",
			content: "[sync]\nmax_skew_ms = 300\nsync_timeout_ms = 100\n",
			wantMsg: "sync.sync_timeout_ms",
		},
		{
			name:    "confidence threshold out of range",
			content: "[fusion]\nconfidence_threshold = 1.5\n",
			wantMsg: "fusion.confidence_threshold",
		},
		{
			name:    "bad affine length",
			content: "[camera_a]\naffine = [1.0, 0.0]\n",
			wantMsg: "affine",
		},
		{
			name:    "velocity window too small",
			content: "[angles]\nvelocity_window = 1\n",
			wantMsg: "angles.velocity_window",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			if err := os.WriteFile(path, []byte(tc.content), 0o644); err != nil {
				t.Fatal(err)
			}
			_, _, _, err := config.Load(path)
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tc.wantMsg) {
				t.Fatalf("expected error containing %q, got %v", tc.wantMsg, err)
			}
		})
	}
}

func TestCreateSampleRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("create sample: %v", err)
	}
	if _, _, _, err := config.Load(path); err != nil {
		t.Fatalf("sample config should load cleanly: %v", err)
	}
}
