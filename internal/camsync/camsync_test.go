package camsync

import (
	"context"
	"testing"
	"time"

	"formcoach/internal/config"
	"formcoach/internal/logging"
	"formcoach/internal/pose"
)

func testSyncConfig() config.Sync {
	return config.Sync{
		QueueCapacity:     4,
		MaxSkewMS:         40,
		SyncTimeoutMS:     60,
		CameraLostTimeout: 2,
	}
}

func frame(camera string, ts time.Time) pose.CameraFrame {
	return pose.CameraFrame{CameraID: camera, CapturedAt: ts, Image: []byte{0x1}}
}

func TestFrameQueueDropsOldestOnOverflow(t *testing.T) {
	q := newFrameQueue(2)
	base := time.Unix(0, 0)
	q.push(frame("a", base))
	q.push(frame("a", base.Add(time.Millisecond)))
	q.push(frame("a", base.Add(2*time.Millisecond)))

	if q.drops != 1 {
		t.Fatalf("expected 1 drop, got %d", q.drops)
	}
	if len(q.frames) != 2 {
		t.Fatalf("expected 2 buffered frames, got %d", len(q.frames))
	}
	if !q.head().CapturedAt.Equal(base.Add(time.Millisecond)) {
		t.Fatalf("oldest frame should have been dropped, head is %v", q.head().CapturedAt)
	}
}

func TestNextMatchesClosestWithinSkew(t *testing.T) {
	s := New(testSyncConfig(), "front", "side", logging.NewNop())
	base := time.Now()

	s.Push(frame("side", base.Add(-30*time.Millisecond)))
	s.Push(frame("side", base.Add(10*time.Millisecond)))
	s.Push(frame("front", base))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	pair, err := s.Next(ctx)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if pair.Degraded {
		t.Fatal("pair within skew must not be degraded")
	}
	if pair.Partner == nil {
		t.Fatal("expected a partner frame")
	}
	if !pair.Partner.CapturedAt.Equal(base.Add(10 * time.Millisecond)) {
		t.Fatalf("expected the closest side frame, got %v", pair.Partner.CapturedAt)
	}
	if got := s.Stats().Paired; got != 1 {
		t.Fatalf("expected 1 paired, got %d", got)
	}
}

func TestNextEmitsDegradedPairAfterSyncTimeout(t *testing.T) {
	s := New(testSyncConfig(), "front", "side", logging.NewNop())
	base := time.Now()

	// A stale side frame gets consumed by a match first, leaving the side
	// queue empty for the next front frame.
	s.Push(frame("side", base))
	s.Push(frame("front", base.Add(time.Millisecond)))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := s.Next(ctx); err != nil {
		t.Fatalf("first next: %v", err)
	}

	s.Push(frame("front", base.Add(100*time.Millisecond)))
	pair, err := s.Next(ctx)
	if err != nil {
		t.Fatalf("second next: %v", err)
	}
	if !pair.Degraded {
		t.Fatal("expected a degraded pair after the sync timeout")
	}
	if pair.Partner == nil {
		t.Fatal("degraded pair should carry the last known side frame")
	}
	if !pair.Partner.CapturedAt.Equal(base) {
		t.Fatalf("expected stale side frame at %v, got %v", base, pair.Partner.CapturedAt)
	}
	if got := s.Stats().Degraded; got != 1 {
		t.Fatalf("expected 1 degraded, got %d", got)
	}
}

func TestOutputIsMonotonic(t *testing.T) {
	s := New(testSyncConfig(), "front", "side", logging.NewNop())
	base := time.Now()

	s.Push(frame("side", base))
	s.Push(frame("side", base.Add(50*time.Millisecond)))
	s.Push(frame("front", base.Add(50*time.Millisecond)))
	s.Push(frame("front", base)) // arrives late, older capture time

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	first, err := s.Next(ctx)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if !first.Timestamp().Equal(base.Add(50 * time.Millisecond)) {
		t.Fatalf("unexpected first pair timestamp %v", first.Timestamp())
	}

	// The out-of-order frame must be discarded, not emitted.
	shortCtx, shortCancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer shortCancel()
	if pair, err := s.Next(shortCtx); err == nil {
		if !pair.Timestamp().After(first.Timestamp()) {
			t.Fatalf("emitted non-monotonic pair at %v", pair.Timestamp())
		}
	}
}

func TestCameraLossLatchesOncePerOutage(t *testing.T) {
	s := New(testSyncConfig(), "front", "side", logging.NewNop())

	// Simulate a clock far past the loss threshold.
	future := time.Now().Add(10 * time.Second)
	s.now = func() time.Time { return future }

	s.mu.Lock()
	s.checkCameraLoss()
	s.checkCameraLoss()
	s.mu.Unlock()

	lost := map[string]int{}
	for {
		select {
		case ev := <-s.Events():
			if ev.Kind == EventCameraLost {
				lost[ev.CameraID]++
			}
			continue
		default:
		}
		break
	}
	if lost["front"] != 1 || lost["side"] != 1 {
		t.Fatalf("expected exactly one lost event per camera, got %v", lost)
	}

	// A new frame clears the latch and reports restoration.
	s.Push(frame("side", future))
	select {
	case ev := <-s.Events():
		if ev.Kind != EventCameraRestored || ev.CameraID != "side" {
			t.Fatalf("expected side camera restored, got %+v", ev)
		}
	default:
		t.Fatal("expected a restoration event")
	}
}

func TestNextReturnsErrClosedAfterClose(t *testing.T) {
	s := New(testSyncConfig(), "front", "side", logging.NewNop())
	s.Close()
	if _, err := s.Next(context.Background()); err != ErrClosed {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
