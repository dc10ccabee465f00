// Package config loads, normalizes, and validates FormCoach configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), and reads TOML files. The Config type centralizes every knob
// the daemon and CLI need: camera endpoints and calibration, synchronizer
// windows, fusion thresholds, feedback delivery, and storage paths.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths and clear validation errors.
package config
