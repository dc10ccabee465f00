// Package logging constructs the slog loggers used across FormCoach.
//
// It provides a console handler that prints one line per record with the
// component name as a prefix, a JSON handler for machine consumption, and a
// set of attribute helpers so call sites do not import log/slog directly.
// Obtain loggers through New or NewFromConfig and derive per-component
// loggers with NewComponentLogger.
package logging
