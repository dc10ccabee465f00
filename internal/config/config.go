package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	StateDir  string `toml:"state_dir"`
	LogDir    string `toml:"log_dir"`
	RulesPath string `toml:"rules_path"`
}

// Camera describes one capture endpoint. The snapshot URL is polled at the
// configured interval; frames arrive timestamped by the poller.
type Camera struct {
	ID             string    `toml:"id"`
	SnapshotURL    string    `toml:"snapshot_url"`
	PollIntervalMS int       `toml:"poll_interval_ms"`
	TimeoutMS      int       `toml:"timeout_ms"`
	Affine         []float64 `toml:"affine"` // 6 coefficients mapping image coords into rig coords
}

// Sync contains stream synchronizer windows and queue sizing.
type Sync struct {
	QueueCapacity     int `toml:"queue_capacity"`
	MaxSkewMS         int `toml:"max_skew_ms"`
	SyncTimeoutMS     int `toml:"sync_timeout_ms"`
	CameraLostTimeout int `toml:"camera_lost_timeout"` // seconds
}

// Fusion contains keypoint fusion thresholds.
type Fusion struct {
	ConfidenceThreshold  float64 `toml:"confidence_threshold"`
	SmoothingFactor      float64 `toml:"smoothing_factor"`
	OcclusionDecay       float64 `toml:"occlusion_decay"`
	MaxOcclusionDuration int     `toml:"max_occlusion_duration"` // seconds
}

// Angles contains joint angle engine settings.
type Angles struct {
	VelocityWindow int `toml:"velocity_window"` // samples
}

// Pose contains the external pose estimation service endpoint.
type Pose struct {
	ServiceURL string `toml:"service_url"`
	TimeoutMS  int    `toml:"timeout_ms"`
}

// Session contains analysis session timing.
type Session struct {
	PauseTimeout int `toml:"pause_timeout"` // seconds
}

// Feedback contains outbound feedback delivery settings.
type Feedback struct {
	PushURL        string `toml:"push_url"`
	Language       string `toml:"language"`
	CooldownSec    int    `toml:"cooldown_seconds"`
	QueueSize      int    `toml:"queue_size"`
	RequestTimeout int    `toml:"request_timeout"` // seconds
}

// Logging contains log output settings.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for FormCoach.
type Config struct {
	Paths    Paths    `toml:"paths"`
	CameraA  Camera   `toml:"camera_a"`
	CameraB  Camera   `toml:"camera_b"`
	Sync     Sync     `toml:"sync"`
	Fusion   Fusion   `toml:"fusion"`
	Angles   Angles   `toml:"angles"`
	Pose     Pose     `toml:"pose"`
	Session  Session  `toml:"session"`
	Feedback Feedback `toml:"feedback"`
	Logging  Logging  `toml:"logging"`
}

// DefaultConfigPath returns the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/formcoach/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("formcoach.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// Duration accessors so callers never convert config integers themselves.

func (s Sync) MaxSkew() time.Duration { return time.Duration(s.MaxSkewMS) * time.Millisecond }

func (s Sync) SyncTimeout() time.Duration { return time.Duration(s.SyncTimeoutMS) * time.Millisecond }

func (s Sync) CameraLost() time.Duration { return time.Duration(s.CameraLostTimeout) * time.Second }

func (f Fusion) MaxOcclusion() time.Duration {
	return time.Duration(f.MaxOcclusionDuration) * time.Second
}

func (s Session) PauseTimeoutDuration() time.Duration {
	return time.Duration(s.PauseTimeout) * time.Second
}

func (f Feedback) Cooldown() time.Duration { return time.Duration(f.CooldownSec) * time.Second }

func (c Camera) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

func (c Camera) Timeout() time.Duration { return time.Duration(c.TimeoutMS) * time.Millisecond }

func (p Pose) Timeout() time.Duration { return time.Duration(p.TimeoutMS) * time.Millisecond }

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
