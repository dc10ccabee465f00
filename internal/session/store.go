package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"formcoach/internal/config"
	"formcoach/internal/exercise"
)

// ErrNotFound indicates the requested session does not exist.
var ErrNotFound = errors.New("session not found")

// Store persists finalized sessions to SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the session database and applies migrations.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := filepath.Join(cfg.Paths.StateDir, "sessions.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save persists a finalized session with its repetitions and error events.
func (s *Store) Save(ctx context.Context, sess *ExerciseSession) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO sessions (
            id, exercise_id, target_reps, started_at, ended_at, aborted,
            total_reps, complete_reps, incomplete_reps, average_rom, efficiency
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID,
		sess.ExerciseID,
		sess.TargetReps,
		formatTime(sess.StartedAt),
		formatTime(sess.EndedAt),
		boolToInt(sess.Aborted),
		sess.Metrics.TotalReps,
		sess.Metrics.CompleteReps,
		sess.Metrics.IncompleteReps,
		sess.Metrics.AverageROM,
		sess.Metrics.Efficiency,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}

	for _, rep := range sess.Reps {
		trajectory, err := json.Marshal(rep.Trajectory)
		if err != nil {
			return fmt.Errorf("marshal trajectory: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO repetitions (
                session_id, rep_index, started_at, ended_at, status,
                range_of_motion, peak_velocity, symmetry, trajectory_json
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			sess.ID,
			rep.Index,
			formatTime(rep.StartedAt),
			formatTime(rep.EndedAt),
			string(rep.Status),
			rep.Metrics.RangeOfMotion,
			rep.Metrics.PeakVelocity,
			rep.Metrics.Symmetry,
			string(trajectory),
		)
		if err != nil {
			return fmt.Errorf("insert repetition %d: %w", rep.Index, err)
		}
		for _, ev := range rep.Errors {
			_, err = tx.ExecContext(ctx,
				`INSERT INTO error_events (session_id, rep_index, label, severity, phase, occurred_at)
                 VALUES (?, ?, ?, ?, ?, ?)`,
				sess.ID,
				rep.Index,
				ev.Label,
				string(ev.Severity),
				string(ev.Phase),
				formatTime(ev.Timestamp),
			)
			if err != nil {
				return fmt.Errorf("insert error event: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit session: %w", err)
	}
	return nil
}

// Summary is the listing view of a stored session, without trajectories.
type Summary struct {
	ID         string
	ExerciseID string
	TargetReps int
	StartedAt  time.Time
	EndedAt    time.Time
	Aborted    bool
	Metrics    Metrics
}

// List returns stored sessions ordered by start time, newest first.
func (s *Store) List(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, exercise_id, target_reps, started_at, ended_at, aborted,
                total_reps, complete_reps, incomplete_reps, average_rom, efficiency
         FROM sessions ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		summary, err := scanSummary(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, summary)
	}
	return out, rows.Err()
}

// Get loads one session with all repetitions and error events.
func (s *Store) Get(ctx context.Context, id string) (*ExerciseSession, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, exercise_id, target_reps, started_at, ended_at, aborted,
                total_reps, complete_reps, incomplete_reps, average_rom, efficiency
         FROM sessions WHERE id = ?`, id)
	summary, err := scanSummary(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, err
	}

	sess := &ExerciseSession{
		ID:         summary.ID,
		ExerciseID: summary.ExerciseID,
		TargetReps: summary.TargetReps,
		StartedAt:  summary.StartedAt,
		EndedAt:    summary.EndedAt,
		Aborted:    summary.Aborted,
		Metrics:    summary.Metrics,
	}

	if err := s.loadReps(ctx, sess); err != nil {
		return nil, err
	}
	if err := s.loadErrors(ctx, sess); err != nil {
		return nil, err
	}
	for _, rep := range sess.Reps {
		for _, ev := range rep.Errors {
			sess.Metrics.ErrorCounts[string(ev.Severity)]++
		}
	}
	return sess, nil
}

func (s *Store) loadReps(ctx context.Context, sess *ExerciseSession) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT rep_index, started_at, ended_at, status,
                range_of_motion, peak_velocity, symmetry, trajectory_json
         FROM repetitions WHERE session_id = ? ORDER BY rep_index`, sess.ID)
	if err != nil {
		return fmt.Errorf("load repetitions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rep Repetition
		var startedAt, endedAt, status, trajectory string
		if err := rows.Scan(&rep.Index, &startedAt, &endedAt, &status,
			&rep.Metrics.RangeOfMotion, &rep.Metrics.PeakVelocity, &rep.Metrics.Symmetry,
			&trajectory); err != nil {
			return fmt.Errorf("scan repetition: %w", err)
		}
		rep.SessionID = sess.ID
		rep.Status = RepStatus(status)
		if rep.StartedAt, err = parseTime(startedAt); err != nil {
			return err
		}
		if rep.EndedAt, err = parseTime(endedAt); err != nil {
			return err
		}
		if err := json.Unmarshal([]byte(trajectory), &rep.Trajectory); err != nil {
			return fmt.Errorf("unmarshal trajectory: %w", err)
		}
		sess.Reps = append(sess.Reps, rep)
	}
	return rows.Err()
}

func (s *Store) loadErrors(ctx context.Context, sess *ExerciseSession) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT rep_index, label, severity, phase, occurred_at
         FROM error_events WHERE session_id = ? ORDER BY rep_index, id`, sess.ID)
	if err != nil {
		return fmt.Errorf("load error events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ev ErrorEvent
		var severity, phase, occurredAt string
		if err := rows.Scan(&ev.RepetitionIndex, &ev.Label, &severity, &phase, &occurredAt); err != nil {
			return fmt.Errorf("scan error event: %w", err)
		}
		ev.Severity = exercise.Severity(severity)
		ev.Phase = exercise.Phase(phase)
		if ev.Timestamp, err = parseTime(occurredAt); err != nil {
			return err
		}
		if ev.RepetitionIndex >= 0 && ev.RepetitionIndex < len(sess.Reps) {
			sess.Reps[ev.RepetitionIndex].Errors = append(sess.Reps[ev.RepetitionIndex].Errors, ev)
		}
	}
	return rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSummary(row rowScanner) (Summary, error) {
	var summary Summary
	var startedAt, endedAt string
	var aborted int
	err := row.Scan(&summary.ID, &summary.ExerciseID, &summary.TargetReps,
		&startedAt, &endedAt, &aborted,
		&summary.Metrics.TotalReps, &summary.Metrics.CompleteReps,
		&summary.Metrics.IncompleteReps, &summary.Metrics.AverageROM,
		&summary.Metrics.Efficiency)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Summary{}, err
		}
		return Summary{}, fmt.Errorf("scan session: %w", err)
	}
	summary.Aborted = aborted != 0
	summary.Metrics.ErrorCounts = make(map[string]int)
	if summary.StartedAt, err = parseTime(startedAt); err != nil {
		return Summary{}, err
	}
	if summary.EndedAt, err = parseTime(endedAt); err != nil {
		return Summary{}, err
	}
	return summary, nil
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored timestamp %q: %w", value, err)
	}
	return t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
