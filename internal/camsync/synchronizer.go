package camsync

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"formcoach/internal/config"
	"formcoach/internal/logging"
	"formcoach/internal/pose"
)

// ErrClosed is returned by Next after Close.
var ErrClosed = errors.New("synchronizer closed")

// EventKind classifies synchronizer events.
type EventKind string

const (
	EventCameraLost     EventKind = "camera_lost"
	EventCameraRestored EventKind = "camera_restored"
)

// Event reports a camera availability change.
type Event struct {
	Kind     EventKind
	CameraID string
	At       time.Time
}

// Pair is one synchronized frame set. Partner is nil when the other camera
// has produced nothing yet; Degraded marks pairs built without a timely match.
type Pair struct {
	Primary  pose.CameraFrame
	Partner  *pose.CameraFrame
	Degraded bool
}

// Timestamp is the pair's position on the session timeline.
func (p Pair) Timestamp() time.Time { return p.Primary.CapturedAt }

// Stats exposes synchronizer counters for diagnostics.
type Stats struct {
	Paired   uint64
	Degraded uint64
	DropsA   uint64
	DropsB   uint64
}

// Synchronizer merges two camera feeds into one ordered pair stream.
type Synchronizer struct {
	cfg    config.Sync
	idA    string
	idB    string
	logger *slog.Logger
	now    func() time.Time

	mu          sync.Mutex
	queueA      *frameQueue
	queueB      *frameQueue
	lastB       *pose.CameraFrame
	lastSeen    map[string]time.Time
	lostLatched map[string]bool
	lastEmitted time.Time
	waitKey     time.Time
	waitStart   time.Time
	paired      uint64
	degraded    uint64
	closed      bool

	signal chan struct{}
	events chan Event
}

// New constructs a synchronizer for the two configured cameras.
func New(cfg config.Sync, cameraA, cameraB string, logger *slog.Logger) *Synchronizer {
	s := &Synchronizer{
		cfg:         cfg,
		idA:         cameraA,
		idB:         cameraB,
		logger:      logging.NewComponentLogger(logger, "camsync"),
		now:         time.Now,
		queueA:      newFrameQueue(cfg.QueueCapacity),
		queueB:      newFrameQueue(cfg.QueueCapacity),
		lastSeen:    make(map[string]time.Time, 2),
		lostLatched: make(map[string]bool, 2),
		signal:      make(chan struct{}, 1),
		events:      make(chan Event, 4),
	}
	start := s.now()
	s.lastSeen[cameraA] = start
	s.lastSeen[cameraB] = start
	return s
}

// Events delivers camera lost/restored notifications. The channel is
// buffered and never blocks frame processing; stale events are dropped.
func (s *Synchronizer) Events() <-chan Event { return s.events }

// Push routes a captured frame into its camera queue. It never blocks: on a
// full queue the oldest unconsumed frame is discarded.
func (s *Synchronizer) Push(frame pose.CameraFrame) {
	s.mu.Lock()
	switch frame.CameraID {
	case s.idA:
		s.queueA.push(frame)
	case s.idB:
		copied := frame
		s.lastB = &copied
		s.queueB.push(frame)
	default:
		s.mu.Unlock()
		s.logger.Warn("frame from unknown camera dropped", logging.String(logging.FieldCamera, frame.CameraID))
		return
	}
	now := s.now()
	s.lastSeen[frame.CameraID] = now
	if s.lostLatched[frame.CameraID] {
		s.lostLatched[frame.CameraID] = false
		s.emitEvent(Event{Kind: EventCameraRestored, CameraID: frame.CameraID, At: now})
	}
	s.mu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
	}
}

// Next blocks until a pair (matched or degraded) is available, the context
// is cancelled, or the synchronizer is closed.
func (s *Synchronizer) Next(ctx context.Context) (Pair, error) {
	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return Pair{}, ErrClosed
		}
		if pair, ok := s.tryPair(); ok {
			s.mu.Unlock()
			return pair, nil
		}
		s.checkCameraLoss()
		wait := s.nextWait()
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return Pair{}, ctx.Err()
		case <-s.signal:
		case <-time.After(wait):
		}
	}
}

// tryPair attempts to emit the next pair. Caller holds the lock.
func (s *Synchronizer) tryPair() (Pair, bool) {
	for !s.queueA.empty() {
		head := s.queueA.head()
		if !head.CapturedAt.After(s.lastEmitted) {
			// Out-of-order or duplicate capture; keep output monotonic.
			s.queueA.popHead()
			s.queueA.drops++
			continue
		}

		headTS := head.CapturedAt.UnixNano()
		if i := s.queueB.closestTo(headTS); i >= 0 {
			candidate := s.queueB.frames[i]
			skew := candidate.CapturedAt.Sub(head.CapturedAt)
			if skew < 0 {
				skew = -skew
			}
			if skew <= s.cfg.MaxSkew() {
				s.queueA.popHead()
				s.queueB.removeThrough(i)
				matched := candidate
				s.lastB = &matched
				s.lastEmitted = head.CapturedAt
				s.waitKey = time.Time{}
				s.paired++
				return Pair{Primary: head, Partner: &matched}, true
			}
		}

		// No B frame within the skew window; wait up to the sync timeout
		// before emitting a degraded pair with the last known B frame.
		now := s.now()
		if !s.waitKey.Equal(head.CapturedAt) {
			s.waitKey = head.CapturedAt
			s.waitStart = now
		}
		if now.Sub(s.waitStart) < s.cfg.SyncTimeout() {
			return Pair{}, false
		}

		s.queueA.popHead()
		s.lastEmitted = head.CapturedAt
		s.waitKey = time.Time{}
		s.degraded++
		pair := Pair{Primary: head, Degraded: true}
		if s.lastB != nil {
			stale := *s.lastB
			pair.Partner = &stale
		}
		s.logger.Debug("emitting degraded pair",
			logging.Time("capture", head.CapturedAt),
			logging.String(logging.FieldCamera, s.idB),
		)
		return pair, true
	}
	return Pair{}, false
}

// checkCameraLoss emits a camera lost event once per outage. Caller holds the lock.
func (s *Synchronizer) checkCameraLoss() {
	now := s.now()
	for _, id := range []string{s.idA, s.idB} {
		if s.lostLatched[id] {
			continue
		}
		if now.Sub(s.lastSeen[id]) > s.cfg.CameraLost() {
			s.lostLatched[id] = true
			s.logger.Warn("camera lost",
				logging.String(logging.FieldCamera, id),
				logging.Duration("silent_for", now.Sub(s.lastSeen[id])),
			)
			s.emitEvent(Event{Kind: EventCameraLost, CameraID: id, At: now})
		}
	}
}

func (s *Synchronizer) emitEvent(event Event) {
	select {
	case s.events <- event:
	default:
	}
}

// nextWait bounds how long Next may sleep before re-checking timeouts.
func (s *Synchronizer) nextWait() time.Duration {
	wait := s.cfg.SyncTimeout()
	if wait <= 0 || wait > 50*time.Millisecond {
		wait = 50 * time.Millisecond
	}
	return wait
}

// Stats returns a snapshot of synchronizer counters.
func (s *Synchronizer) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Paired:   s.paired,
		Degraded: s.degraded,
		DropsA:   s.queueA.drops,
		DropsB:   s.queueB.drops,
	}
}

// Close stops the synchronizer; subsequent Next calls return ErrClosed.
func (s *Synchronizer) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	select {
	case s.signal <- struct{}{}:
	default:
	}
}
