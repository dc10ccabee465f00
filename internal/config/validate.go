package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateCameras(); err != nil {
		return err
	}
	if err := c.validateSync(); err != nil {
		return err
	}
	if err := c.validateFusion(); err != nil {
		return err
	}
	if err := c.validateAngles(); err != nil {
		return err
	}
	if err := c.validateSession(); err != nil {
		return err
	}
	if err := c.validateFeedback(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateCameras() error {
	if c.CameraA.ID == "" || c.CameraB.ID == "" {
		return errors.New("camera_a.id and camera_b.id must be set")
	}
	if c.CameraA.ID == c.CameraB.ID {
		return fmt.Errorf("camera ids must differ, both are %q", c.CameraA.ID)
	}
	if err := ensurePositiveMap(map[string]int{
		"camera_a.poll_interval_ms": c.CameraA.PollIntervalMS,
		"camera_b.poll_interval_ms": c.CameraB.PollIntervalMS,
		"camera_a.timeout_ms":       c.CameraA.TimeoutMS,
		"camera_b.timeout_ms":       c.CameraB.TimeoutMS,
	}); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateSync() error {
	if err := ensurePositiveMap(map[string]int{
		"sync.queue_capacity":      c.Sync.QueueCapacity,
		"sync.max_skew_ms":         c.Sync.MaxSkewMS,
		"sync.sync_timeout_ms":     c.Sync.SyncTimeoutMS,
		"sync.camera_lost_timeout": c.Sync.CameraLostTimeout,
	}); err != nil {
		return err
	}
	if c.Sync.SyncTimeoutMS < c.Sync.MaxSkewMS {
		return errors.New("sync.sync_timeout_ms must be >= sync.max_skew_ms")
	}
	return nil
}

func (c *Config) validateFusion() error {
	if c.Fusion.ConfidenceThreshold <= 0 || c.Fusion.ConfidenceThreshold >= 1 {
		return errors.New("fusion.confidence_threshold must be between 0 and 1 exclusive")
	}
	if c.Fusion.SmoothingFactor <= 0 || c.Fusion.SmoothingFactor > 1 {
		return errors.New("fusion.smoothing_factor must be in (0, 1]")
	}
	if c.Fusion.OcclusionDecay <= 0 || c.Fusion.OcclusionDecay >= 1 {
		return errors.New("fusion.occlusion_decay must be between 0 and 1 exclusive")
	}
	if c.Fusion.MaxOcclusionDuration <= 0 {
		return errors.New("fusion.max_occlusion_duration must be positive")
	}
	return nil
}

func (c *Config) validateAngles() error {
	if c.Angles.VelocityWindow < 2 {
		return errors.New("angles.velocity_window must be at least 2 samples")
	}
	return nil
}

func (c *Config) validateSession() error {
	if c.Session.PauseTimeout <= 0 {
		return errors.New("session.pause_timeout must be positive")
	}
	return nil
}

func (c *Config) validateFeedback() error {
	if c.Feedback.CooldownSec < 0 {
		return errors.New("feedback.cooldown_seconds must be >= 0")
	}
	if c.Feedback.QueueSize < 1 {
		return errors.New("feedback.queue_size must be >= 1")
	}
	if c.Feedback.RequestTimeout <= 0 {
		return errors.New("feedback.request_timeout must be positive")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
