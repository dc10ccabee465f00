// Package faults defines the error taxonomy shared across the analysis
// pipeline and helpers for wrapping component errors with context while
// preserving the sentinel for classification via errors.Is.
package faults

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTrackingLoss marks occlusion or out-of-frame conditions that exceeded
	// the configured duration threshold.
	ErrTrackingLoss = errors.New("tracking loss")
	// ErrCameraDesync marks a frame with no counterpart within the skew window.
	ErrCameraDesync = errors.New("camera desync")
	// ErrSyncTimeout marks one camera going silent past the sync timeout.
	ErrSyncTimeout = errors.New("synchronization timeout")
	// ErrInvalidCommand marks unrecognized or malformed voice input.
	ErrInvalidCommand = errors.New("invalid command")
	// ErrRuleConfig marks a malformed exercise rule set.
	ErrRuleConfig = errors.New("rule config error")
	// ErrSessionAborted marks user cancellation of the active session.
	ErrSessionAborted = errors.New("session aborted")
)

// Wrap tags an error with one of the sentinels above and component context.
func Wrap(marker error, component, message string, err error) error {
	detail := buildDetail(component, message)
	if marker == nil {
		marker = errors.New("pipeline failure")
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Recoverable reports whether the pipeline should pause and attempt recovery
// instead of failing the session outright.
func Recoverable(err error) bool {
	return errors.Is(err, ErrTrackingLoss) ||
		errors.Is(err, ErrCameraDesync) ||
		errors.Is(err, ErrSyncTimeout)
}

func buildDetail(component, message string) string {
	parts := make([]string, 0, 2)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "pipeline failure"
	}
	return strings.Join(parts, ": ")
}
