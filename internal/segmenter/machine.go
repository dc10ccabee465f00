// Package segmenter turns the primary joint's angle trajectory into discrete
// repetitions via an explicit state machine. The machine is owned by the
// pipeline goroutine; all methods are single-threaded.
package segmenter

import (
	"log/slog"
	"time"

	"formcoach/internal/angles"
	"formcoach/internal/exercise"
	"formcoach/internal/faults"
	"formcoach/internal/logging"
	"formcoach/internal/session"
)

// State is the machine's current mode.
type State string

const (
	StateIdle          State = "idle"
	StateAwaitingStart State = "awaiting_start"
	StateInRep         State = "in_rep"
	StateRepComplete   State = "rep_complete"
	StatePaused        State = "paused"
	StateError         State = "error"
)

// PauseCause identifies what suspended analysis. A camera outage holds the
// pause until that camera reports back; a tracking loss clears on the next
// successful fusion.
type PauseCause string

const (
	PauseTrackingLost PauseCause = "tracking_lost"
	PauseCameraLost   PauseCause = "camera_lost"
)

// EventKind classifies machine transition events.
type EventKind string

const (
	EventSessionStarted EventKind = "session_started"
	EventRepStarted     EventKind = "rep_started"
	EventRepCompleted   EventKind = "rep_completed"
	EventRepDiscarded   EventKind = "rep_discarded"
	EventSetCompleted   EventKind = "set_completed"
	EventPaused         EventKind = "paused"
	EventResumed        EventKind = "resumed"
	EventRecoveryFailed EventKind = "recovery_failed"
	EventSessionStopped EventKind = "session_stopped"
)

// Event is one observable transition. Rep is set on events that close a
// repetition.
type Event struct {
	Kind     EventKind
	From     State
	To       State
	At       time.Time
	RepIndex int
	Rep      *session.Repetition
}

// Snapshot captures the machine for O(1) pause/resume or crash recovery.
type Snapshot struct {
	State           State           `json:"state"`
	Resume          State           `json:"resume"`
	Cause           PauseCause      `json:"cause,omitempty"`
	ReachedExtremum bool            `json:"reached_extremum"`
	PausedAt        time.Time       `json:"paused_at"`
	OpenTrajectory  []angles.Sample `json:"open_trajectory"`
	OpenStartedAt   time.Time       `json:"open_started_at"`
	ClosedReps      int             `json:"closed_reps"`
}

// Machine segments repetitions for one exercise session.
type Machine struct {
	pauseTimeout time.Duration
	logger       *slog.Logger

	state   State
	resume  State      // state to return to after a pause
	cause   PauseCause // what triggered the current pause
	sess    *session.Context
	def     exercise.Definition
	reached bool
	paused  time.Time
}

// NewMachine builds an idle machine.
func NewMachine(pauseTimeout time.Duration, logger *slog.Logger) *Machine {
	return &Machine{
		pauseTimeout: pauseTimeout,
		logger:       logging.NewComponentLogger(logger, "segmenter"),
		state:        StateIdle,
	}
}

// State returns the current machine state.
func (m *Machine) State() State { return m.state }

// Session returns the active session context, or nil when idle with no run.
func (m *Machine) Session() *session.Context { return m.sess }

// Start begins a session. Only valid from Idle.
func (m *Machine) Start(def exercise.Definition, targetReps int, at time.Time) (Event, error) {
	if m.state != StateIdle {
		return Event{}, faults.Wrap(faults.ErrInvalidCommand, "segmenter",
			"cannot start while a session is active", nil)
	}
	m.sess = session.NewContext(def, targetReps, at)
	m.def = def
	m.reached = false
	event := m.transition(EventSessionStarted, StateAwaitingStart, at)
	m.logger.Info("session started",
		logging.String(logging.FieldSession, m.sess.ID()),
		logging.String(logging.FieldExercise, def.ID),
		logging.Int("target_reps", targetReps),
	)
	return event, nil
}

// Observe feeds angle samples for one frame and returns any transition events.
// Only the exercise's primary joint governs phase boundaries; the earliest
// timestamped crossing wins when several samples arrive together. While a rep
// is open every joint's samples are buffered so the detector sees the full
// trajectory.
func (m *Machine) Observe(samples []angles.Sample) []Event {
	var events []Event
	for _, sample := range samples {
		primary := sample.Triplet == m.def.PrimaryJoint
		switch m.state {
		case StateAwaitingStart:
			if !primary {
				continue
			}
			if ev, ok := m.tryStartRep(sample); ok {
				events = append(events, ev)
			}
		case StateInRep:
			if !primary {
				m.sess.AppendSample(sample)
				continue
			}
			events = append(events, m.observeInRep(sample)...)
		}
	}
	return events
}

func (m *Machine) tryStartRep(sample angles.Sample) (Event, bool) {
	if !crossedInto(m.def, sample.Angle) {
		return Event{}, false
	}
	if abs(sample.Velocity) <= m.def.DebounceVelocity {
		return Event{}, false
	}
	m.reached = false
	m.sess.OpenRep(sample.Timestamp)
	m.sess.AppendSample(sample)
	event := m.transition(EventRepStarted, StateInRep, sample.Timestamp)
	event.RepIndex = m.sess.Open().Index
	return event, true
}

func (m *Machine) observeInRep(sample angles.Sample) []Event {
	m.sess.AppendSample(sample)
	if reachedExtremum(m.def, sample.Angle) {
		m.reached = true
	}
	if !returnedToStart(m.def, sample.Angle) {
		return nil
	}

	open := m.sess.Open()
	elapsed := sample.Timestamp.Sub(open.StartedAt)
	if !m.reached || elapsed < time.Duration(m.def.MinRepDurationMS)*time.Millisecond {
		// Oscillation back to the start without a real repetition.
		index := open.Index
		m.sess.DiscardOpen()
		ev := m.transition(EventRepDiscarded, StateAwaitingStart, sample.Timestamp)
		ev.RepIndex = index
		return []Event{ev}
	}

	rep := m.sess.CloseRep(sample.Timestamp, session.RepComplete)
	completed := m.transition(EventRepCompleted, StateRepComplete, sample.Timestamp)
	completed.RepIndex = rep.Index
	completed.Rep = rep
	events := []Event{completed}
	m.logger.Info("rep completed",
		logging.String(logging.FieldSession, m.sess.ID()),
		logging.Int("rep", rep.Index+1),
		logging.Int("target", m.sess.TargetReps()),
	)

	if m.sess.CompletedReps() >= m.sess.TargetReps() {
		done := m.transition(EventSetCompleted, StateIdle, sample.Timestamp)
		done.RepIndex = rep.Index
		events = append(events, done)
	} else {
		m.state = StateAwaitingStart
	}
	return events
}

// Pause suspends the machine on a tracking or camera loss. No-op when idle
// or already paused, but a camera loss arriving during a tracking pause
// takes over the pause: only the camera's return may end it.
func (m *Machine) Pause(at time.Time, cause PauseCause) (Event, bool) {
	if m.state == StatePaused {
		if cause == PauseCameraLost {
			m.cause = PauseCameraLost
		}
		return Event{}, false
	}
	if m.state == StateIdle || m.state == StateError {
		return Event{}, false
	}
	m.resume = m.state
	m.paused = at
	m.cause = cause
	return m.transition(EventPaused, StatePaused, at), true
}

// Resume returns to the pre-pause state when the pause's cause is cleared in
// time. A resume for a different cause is ignored: a successful fusion on the
// surviving camera must not end a camera-lost pause.
func (m *Machine) Resume(at time.Time, cause PauseCause) (Event, bool) {
	if m.state != StatePaused || cause != m.cause {
		return Event{}, false
	}
	if at.Sub(m.paused) > m.pauseTimeout {
		return Event{}, false
	}
	return m.transition(EventResumed, m.resume, at), true
}

// Tick checks the pause deadline. Past the timeout the machine enters Error,
// closes any open repetition as incomplete, and settles in Idle.
func (m *Machine) Tick(at time.Time) []Event {
	if m.state != StatePaused || at.Sub(m.paused) <= m.pauseTimeout {
		return nil
	}
	m.state = StateError
	m.logger.Warn("pause timeout exceeded, abandoning recovery",
		logging.String(logging.FieldSession, m.sess.ID()),
		logging.Duration("paused_for", at.Sub(m.paused)),
	)
	failed := Event{Kind: EventRecoveryFailed, From: StatePaused, To: StateError, At: at}
	if rep := m.sess.CloseRep(at, session.RepIncomplete); rep != nil {
		failed.RepIndex = rep.Index
		failed.Rep = rep
	}
	m.state = StateIdle
	return []Event{failed}
}

// Stop cancels the active session; an open repetition is discarded. No-op
// when the machine is already idle.
func (m *Machine) Stop(at time.Time) (Event, bool) {
	if m.state == StateIdle {
		return Event{}, false
	}
	if m.sess != nil {
		m.sess.DiscardOpen()
		m.sess.Abort()
	}
	return m.transition(EventSessionStopped, StateIdle, at), true
}

// Snapshot serializes the machine's resumable state.
func (m *Machine) Snapshot() Snapshot {
	snap := Snapshot{
		State:           m.state,
		Resume:          m.resume,
		Cause:           m.cause,
		ReachedExtremum: m.reached,
		PausedAt:        m.paused,
	}
	if m.sess != nil {
		snap.ClosedReps = m.sess.CompletedReps()
		if open := m.sess.Open(); open != nil {
			snap.OpenStartedAt = open.StartedAt
			snap.OpenTrajectory = append([]angles.Sample(nil), open.Trajectory...)
		}
	}
	return snap
}

func (m *Machine) transition(kind EventKind, to State, at time.Time) Event {
	from := m.state
	m.state = to
	return Event{Kind: kind, From: from, To: to, At: at}
}

// crossedInto reports whether the angle has passed the start threshold in the
// direction of the target extremum.
func crossedInto(def exercise.Definition, angle float64) bool {
	if def.Descending() {
		return angle < def.StartThreshold
	}
	return angle > def.StartThreshold
}

func reachedExtremum(def exercise.Definition, angle float64) bool {
	if def.Descending() {
		return angle <= def.TargetExtremum
	}
	return angle >= def.TargetExtremum
}

func returnedToStart(def exercise.Definition, angle float64) bool {
	if def.Descending() {
		return angle >= def.StartThreshold
	}
	return angle <= def.StartThreshold
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
