package session

import (
	"time"

	"github.com/google/uuid"

	"formcoach/internal/angles"
	"formcoach/internal/exercise"
)

// Context is the mutable state of one running exercise session. It is owned
// by the pipeline goroutine and never shared; everything leaving the context
// leaves as a copy.
type Context struct {
	id         string
	def        exercise.Definition
	targetReps int
	startedAt  time.Time

	reps    []Repetition
	open    *Repetition
	aborted bool
}

// NewContext starts a session for one exercise run.
func NewContext(def exercise.Definition, targetReps int, startedAt time.Time) *Context {
	return &Context{
		id:         uuid.NewString(),
		def:        def,
		targetReps: targetReps,
		startedAt:  startedAt,
	}
}

func (c *Context) ID() string                      { return c.id }
func (c *Context) Definition() exercise.Definition { return c.def }
func (c *Context) TargetReps() int                 { return c.targetReps }

// CompletedReps counts closed repetitions with status complete.
func (c *Context) CompletedReps() int {
	n := 0
	for _, rep := range c.reps {
		if rep.Status == RepComplete {
			n++
		}
	}
	return n
}

// OpenRep starts a new repetition. Any previously open repetition must have
// been closed or discarded first.
func (c *Context) OpenRep(startedAt time.Time) *Repetition {
	c.open = &Repetition{
		SessionID: c.id,
		Index:     len(c.reps),
		StartedAt: startedAt,
	}
	return c.open
}

// Open returns the in-progress repetition, or nil.
func (c *Context) Open() *Repetition { return c.open }

// AppendSample buffers one primary trajectory sample into the open repetition.
func (c *Context) AppendSample(sample angles.Sample) {
	if c.open != nil {
		c.open.Trajectory = append(c.open.Trajectory, sample)
	}
}

// CloseRep seals the open repetition with the given status and returns it.
// Returns nil when no repetition is open.
func (c *Context) CloseRep(endedAt time.Time, status RepStatus) *Repetition {
	if c.open == nil {
		return nil
	}
	c.open.EndedAt = endedAt
	c.open.Status = status
	closed := *c.open
	c.reps = append(c.reps, closed)
	c.open = nil
	return &c.reps[len(c.reps)-1]
}

// DiscardOpen drops the in-progress repetition without recording it.
func (c *Context) DiscardOpen() { c.open = nil }

// Abort marks the session as user-cancelled; already closed reps are kept.
func (c *Context) Abort() { c.aborted = true }

// AttachAnalysis stores the detector output on an already closed repetition.
func (c *Context) AttachAnalysis(index int, events []ErrorEvent, metrics RepMetrics) {
	if index < 0 || index >= len(c.reps) {
		return
	}
	c.reps[index].Errors = events
	c.reps[index].Metrics = metrics
}

// Finalize computes aggregates and exports an immutable session copy.
func (c *Context) Finalize(endedAt time.Time) *ExerciseSession {
	metrics := Metrics{ErrorCounts: make(map[string]int)}
	var romSum float64
	var romCount int
	for _, rep := range c.reps {
		metrics.TotalReps++
		switch rep.Status {
		case RepComplete:
			metrics.CompleteReps++
			romSum += rep.Metrics.RangeOfMotion
			romCount++
		case RepIncomplete:
			metrics.IncompleteReps++
		}
		for _, ev := range rep.Errors {
			metrics.ErrorCounts[string(ev.Severity)]++
		}
	}
	if romCount > 0 {
		metrics.AverageROM = romSum / float64(romCount)
	}
	if metrics.TotalReps > 0 {
		metrics.Efficiency = float64(metrics.CompleteReps) / float64(metrics.TotalReps)
	}

	out := &ExerciseSession{
		ID:         c.id,
		ExerciseID: c.def.ID,
		TargetReps: c.targetReps,
		StartedAt:  c.startedAt,
		EndedAt:    endedAt,
		Aborted:    c.aborted,
		Reps:       c.reps,
		Metrics:    metrics,
	}
	return out.Clone()
}
