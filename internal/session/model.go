// Package session holds the analysis session model: repetitions with their
// angle trajectories, detected error events, per-rep and per-session metrics,
// and the SQLite store that persists finalized sessions.
package session

import (
	"time"

	"formcoach/internal/angles"
	"formcoach/internal/exercise"
)

// RepStatus marks how a repetition ended.
type RepStatus string

const (
	RepComplete   RepStatus = "complete"
	RepIncomplete RepStatus = "incomplete"
)

// ErrorEvent is one deduplicated technique fault detected in a repetition.
type ErrorEvent struct {
	RepetitionIndex int               `json:"repetition_index"`
	Label           string            `json:"label"`
	Severity        exercise.Severity `json:"severity"`
	Phase           exercise.Phase    `json:"phase"`
	Timestamp       time.Time         `json:"timestamp"`
}

// RepMetrics are the continuous measurements computed for a closed repetition.
type RepMetrics struct {
	RangeOfMotion float64 `json:"range_of_motion"` // degrees, max-min of the primary joint
	PeakVelocity  float64 `json:"peak_velocity"`   // degrees per second, absolute
	Symmetry      float64 `json:"symmetry"`        // mean abs left/right difference, degrees
}

// Repetition is one segmented movement cycle. It is immutable once closed.
type Repetition struct {
	SessionID  string          `json:"session_id"`
	Index      int             `json:"index"`
	StartedAt  time.Time       `json:"started_at"`
	EndedAt    time.Time       `json:"ended_at"`
	Status     RepStatus       `json:"status"`
	Trajectory []angles.Sample `json:"trajectory"`
	Errors     []ErrorEvent    `json:"errors"`
	Metrics    RepMetrics      `json:"metrics"`
}

// Metrics are the aggregates computed when a session is finalized.
type Metrics struct {
	TotalReps      int            `json:"total_reps"`
	CompleteReps   int            `json:"complete_reps"`
	IncompleteReps int            `json:"incomplete_reps"`
	AverageROM     float64        `json:"average_rom"`
	Efficiency     float64        `json:"efficiency"` // complete / total
	ErrorCounts    map[string]int `json:"error_counts"`
}

// ExerciseSession is one full exercise run. After finalization the session is
// exported by copy and never mutated again.
type ExerciseSession struct {
	ID         string       `json:"id"`
	ExerciseID string       `json:"exercise_id"`
	TargetReps int          `json:"target_reps"`
	StartedAt  time.Time    `json:"started_at"`
	EndedAt    time.Time    `json:"ended_at"`
	Aborted    bool         `json:"aborted"`
	Reps       []Repetition `json:"reps"`
	Metrics    Metrics      `json:"metrics"`
}

// Clone returns a deep copy safe to hand to persistence or UI collaborators.
func (s *ExerciseSession) Clone() *ExerciseSession {
	out := *s
	out.Reps = make([]Repetition, len(s.Reps))
	for i, rep := range s.Reps {
		out.Reps[i] = rep
		out.Reps[i].Trajectory = append([]angles.Sample(nil), rep.Trajectory...)
		out.Reps[i].Errors = append([]ErrorEvent(nil), rep.Errors...)
	}
	if s.Metrics.ErrorCounts != nil {
		out.Metrics.ErrorCounts = make(map[string]int, len(s.Metrics.ErrorCounts))
		for k, v := range s.Metrics.ErrorCounts {
			out.Metrics.ErrorCounts[k] = v
		}
	}
	return &out
}
