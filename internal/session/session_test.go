package session_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"formcoach/internal/angles"
	"formcoach/internal/config"
	"formcoach/internal/exercise"
	"formcoach/internal/session"
)

func testDef() exercise.Definition {
	return exercise.Definition{
		ID:             "squat",
		Name:           "Squat",
		PrimaryJoint:   "left_hip",
		StartThreshold: 160,
		TargetExtremum: 100,
	}
}

func openTestStore(t *testing.T) *session.Store {
	t.Helper()
	cfg := config.Default()
	cfg.Paths.StateDir = t.TempDir()
	cfg.Paths.LogDir = t.TempDir()
	store, err := session.Open(&cfg)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func buildSession(t *testing.T, base time.Time) *session.ExerciseSession {
	t.Helper()
	ctx := session.NewContext(testDef(), 2, base)

	ctx.OpenRep(base)
	ctx.AppendSample(angles.Sample{Timestamp: base, Triplet: "left_hip", Angle: 150, Velocity: -40, Confidence: 0.9})
	ctx.AppendSample(angles.Sample{Timestamp: base.Add(time.Second), Triplet: "left_hip", Angle: 95, Velocity: -20, Confidence: 0.9})
	ctx.CloseRep(base.Add(2*time.Second), session.RepComplete)
	ctx.AttachAnalysis(0,
		[]session.ErrorEvent{{
			RepetitionIndex: 0,
			Label:           "knee valgus",
			Severity:        exercise.SeverityError,
			Phase:           exercise.PhaseDescent,
			Timestamp:       base.Add(time.Second),
		}},
		session.RepMetrics{RangeOfMotion: 55, PeakVelocity: 40, Symmetry: 3},
	)

	ctx.OpenRep(base.Add(3 * time.Second))
	ctx.CloseRep(base.Add(4*time.Second), session.RepIncomplete)

	return ctx.Finalize(base.Add(5 * time.Second))
}

func TestFinalizeComputesAggregates(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	final := buildSession(t, base)

	if final.Metrics.TotalReps != 2 || final.Metrics.CompleteReps != 1 || final.Metrics.IncompleteReps != 1 {
		t.Fatalf("unexpected rep counts: %+v", final.Metrics)
	}
	if final.Metrics.Efficiency != 0.5 {
		t.Fatalf("expected efficiency 0.5, got %v", final.Metrics.Efficiency)
	}
	if final.Metrics.AverageROM != 55 {
		t.Fatalf("average ROM covers complete reps only, got %v", final.Metrics.AverageROM)
	}
	if final.Metrics.ErrorCounts["error"] != 1 {
		t.Fatalf("expected one error-severity count, got %v", final.Metrics.ErrorCounts)
	}
}

func TestFinalizeExportsACopy(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	ctx := session.NewContext(testDef(), 1, base)
	ctx.OpenRep(base)
	ctx.AppendSample(angles.Sample{Timestamp: base, Triplet: "left_hip", Angle: 150})
	ctx.CloseRep(base.Add(time.Second), session.RepComplete)

	first := ctx.Finalize(base.Add(2 * time.Second))
	first.Reps[0].Trajectory[0].Angle = -1

	second := ctx.Finalize(base.Add(2 * time.Second))
	if second.Reps[0].Trajectory[0].Angle == -1 {
		t.Fatal("exported session must not share trajectory storage")
	}
}

func TestStoreRoundTrip(t *testing.T) {
	store := openTestStore(t)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	final := buildSession(t, base)

	ctx := context.Background()
	if err := store.Save(ctx, final); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := store.Get(ctx, final.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if loaded.ExerciseID != "squat" || loaded.TargetReps != 2 {
		t.Fatalf("unexpected session header: %+v", loaded)
	}
	if len(loaded.Reps) != 2 {
		t.Fatalf("expected 2 repetitions, got %d", len(loaded.Reps))
	}
	rep := loaded.Reps[0]
	if rep.Status != session.RepComplete || len(rep.Trajectory) != 2 {
		t.Fatalf("unexpected first rep: %+v", rep)
	}
	if rep.Metrics.RangeOfMotion != 55 {
		t.Fatalf("rep metrics lost in round trip: %+v", rep.Metrics)
	}
	if len(rep.Errors) != 1 || rep.Errors[0].Label != "knee valgus" {
		t.Fatalf("error events lost in round trip: %+v", rep.Errors)
	}
	if !rep.Errors[0].Timestamp.Equal(base.Add(time.Second)) {
		t.Fatalf("error timestamp mismatch: %v", rep.Errors[0].Timestamp)
	}
	if loaded.Metrics.ErrorCounts["error"] != 1 {
		t.Fatalf("error counts must be rebuilt on load, got %v", loaded.Metrics.ErrorCounts)
	}
}

func TestListOrdersNewestFirst(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	older := buildSession(t, time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	newer := buildSession(t, time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC))
	for _, sess := range []*session.ExerciseSession{older, newer} {
		if err := store.Save(ctx, sess); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	list, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(list))
	}
	if list[0].ID != newer.ID || list[1].ID != older.ID {
		t.Fatal("sessions must list newest first")
	}
}

func TestGetUnknownSessionIsNotFound(t *testing.T) {
	store := openTestStore(t)
	_, err := store.Get(context.Background(), "no-such-id")
	if !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
