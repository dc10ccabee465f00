package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	var err error
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return err
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return err
	}
	if strings.TrimSpace(c.Paths.RulesPath) != "" {
		if c.Paths.RulesPath, err = expandPath(c.Paths.RulesPath); err != nil {
			return err
		}
	}

	c.CameraA.ID = strings.TrimSpace(c.CameraA.ID)
	c.CameraB.ID = strings.TrimSpace(c.CameraB.ID)
	c.CameraA.SnapshotURL = strings.TrimSpace(c.CameraA.SnapshotURL)
	c.CameraB.SnapshotURL = strings.TrimSpace(c.CameraB.SnapshotURL)
	c.Pose.ServiceURL = strings.TrimSpace(c.Pose.ServiceURL)
	c.Feedback.PushURL = strings.TrimSpace(c.Feedback.PushURL)
	c.Feedback.Language = strings.TrimSpace(c.Feedback.Language)
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))

	for name, cam := range map[string]*Camera{"camera_a": &c.CameraA, "camera_b": &c.CameraB} {
		if len(cam.Affine) == 0 {
			cam.Affine = identityAffine()
		}
		if len(cam.Affine) != 6 {
			return fmt.Errorf("%s.affine must contain exactly 6 coefficients, got %d", name, len(cam.Affine))
		}
	}
	return nil
}
