package fusion_test

import (
	"errors"
	"math"
	"testing"
	"time"

	"formcoach/internal/config"
	"formcoach/internal/faults"
	"formcoach/internal/fusion"
	"formcoach/internal/logging"
	"formcoach/internal/pose"
)

func testFusionConfig() config.Fusion {
	return config.Fusion{
		ConfidenceThreshold:  0.5,
		SmoothingFactor:      1.0,
		OcclusionDecay:       0.8,
		MaxOcclusionDuration: 1,
	}
}

func newTestEngine(cfg config.Fusion) *fusion.Engine {
	return fusion.NewEngine(cfg, pose.IdentityGeometry(), pose.IdentityGeometry(), logging.NewNop())
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestBothViewsFuseByConfidenceWeight(t *testing.T) {
	engine := newTestEngine(testFusionConfig())
	ts := time.Unix(100, 0)

	rawA := pose.RawKeypointSet{pose.LeftKnee: {X: 0, Y: 0, Confidence: 0.8}}
	rawB := pose.RawKeypointSet{pose.LeftKnee: {X: 12, Y: 0, Confidence: 0.4}}

	frame, err := engine.Process(ts, rawA, rawB, false)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	knee, ok := frame.Joints[pose.LeftKnee]
	if !ok {
		t.Fatal("left knee missing from fused frame")
	}
	if knee.Occluded {
		t.Fatal("joint confident in one view must not be occluded")
	}
	// Camera B is below threshold, so only A contributes.
	if !near(knee.Position.X, 0) {
		t.Fatalf("expected passthrough of camera A, got x=%v", knee.Position.X)
	}

	rawB[pose.LeftKnee] = pose.Keypoint{X: 12, Y: 0, Confidence: 0.6}
	engine.Reset()
	frame, err = engine.Process(ts, rawA, rawB, false)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	knee = frame.Joints[pose.LeftKnee]
	want := 12 * 0.6 / (0.8 + 0.6)
	if !near(knee.Position.X, want) {
		t.Fatalf("expected confidence-weighted x=%v, got %v", want, knee.Position.X)
	}
	if !near(knee.Confidence, 0.8) {
		t.Fatalf("expected the better view's confidence 0.8, got %v", knee.Confidence)
	}
}

func TestOcclusionCarriesForwardWithDecay(t *testing.T) {
	engine := newTestEngine(testFusionConfig())
	base := time.Unix(100, 0)

	visible := pose.RawKeypointSet{pose.LeftHip: {X: 3, Y: 4, Confidence: 0.9}}
	frame, err := engine.Process(base, visible, nil, false)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if frame.Joints[pose.LeftHip].Occluded {
		t.Fatal("visible joint marked occluded")
	}

	hidden := pose.RawKeypointSet{pose.LeftHip: {X: 99, Y: 99, Confidence: 0.1}}
	frame, err = engine.Process(base.Add(50*time.Millisecond), hidden, hidden, false)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	hip, ok := frame.Joints[pose.LeftHip]
	if !ok {
		t.Fatal("previously seen joint must stay in the frame")
	}
	if !hip.Occluded {
		t.Fatal("joint below threshold in both views must be occluded")
	}
	if !near(hip.Position.X, 3) || !near(hip.Position.Y, 4) {
		t.Fatalf("occluded joint must carry the last position, got %+v", hip.Position)
	}
	if !near(hip.Confidence, 0.9*0.8) {
		t.Fatalf("expected decayed confidence %v, got %v", 0.9*0.8, hip.Confidence)
	}

	frame, _ = engine.Process(base.Add(100*time.Millisecond), nil, nil, false)
	if got := frame.Joints[pose.LeftHip].Confidence; !near(got, 0.9*0.8*0.8) {
		t.Fatalf("confidence must keep decaying, got %v", got)
	}
}

func TestTrackingLossAfterMaxOcclusion(t *testing.T) {
	engine := newTestEngine(testFusionConfig())
	base := time.Unix(100, 0)

	visible := pose.RawKeypointSet{pose.LeftHip: {X: 3, Y: 4, Confidence: 0.9}}
	if _, err := engine.Process(base, visible, nil, false); err != nil {
		t.Fatalf("process: %v", err)
	}

	if _, err := engine.Process(base.Add(200*time.Millisecond), nil, nil, false); err != nil {
		t.Fatalf("occlusion within the limit must not fail: %v", err)
	}
	frame, err := engine.Process(base.Add(1500*time.Millisecond), nil, nil, false)
	if err == nil {
		t.Fatal("expected tracking loss after prolonged occlusion")
	}
	if !errors.Is(err, faults.ErrTrackingLoss) {
		t.Fatalf("expected ErrTrackingLoss, got %v", err)
	}
	if !faults.Recoverable(err) {
		t.Fatal("tracking loss must be recoverable")
	}
	if _, ok := frame.Joints[pose.LeftHip]; !ok {
		t.Fatal("frame must still carry the joint alongside the error")
	}

	// A fresh observation clears the occlusion clock.
	if _, err := engine.Process(base.Add(1600*time.Millisecond), visible, nil, false); err != nil {
		t.Fatalf("reacquired joint must clear tracking loss: %v", err)
	}
}

func TestExponentialSmoothing(t *testing.T) {
	cfg := testFusionConfig()
	cfg.SmoothingFactor = 0.5
	engine := newTestEngine(cfg)
	base := time.Unix(100, 0)

	first := pose.RawKeypointSet{pose.Nose: {X: 0, Y: 0, Confidence: 0.9}}
	second := pose.RawKeypointSet{pose.Nose: {X: 10, Y: 10, Confidence: 0.9}}

	if _, err := engine.Process(base, first, nil, false); err != nil {
		t.Fatal(err)
	}
	frame, err := engine.Process(base.Add(50*time.Millisecond), second, nil, false)
	if err != nil {
		t.Fatal(err)
	}
	nose := frame.Joints[pose.Nose]
	if !near(nose.Position.X, 5) || !near(nose.Position.Y, 5) {
		t.Fatalf("expected smoothed midpoint (5,5), got %+v", nose.Position)
	}
}

func TestUnseenJointsAreOmitted(t *testing.T) {
	engine := newTestEngine(testFusionConfig())
	raw := pose.RawKeypointSet{pose.LeftKnee: {X: 1, Y: 1, Confidence: 0.9}}

	frame, err := engine.Process(time.Unix(100, 0), raw, nil, true)
	if err != nil {
		t.Fatal(err)
	}
	if !frame.Degraded {
		t.Fatal("degraded flag must pass through")
	}
	if len(frame.Joints) != 1 {
		t.Fatalf("joints never observed must be omitted, got %d joints", len(frame.Joints))
	}
}
