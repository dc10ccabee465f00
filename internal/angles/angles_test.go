package angles_test

import (
	"math"
	"reflect"
	"testing"
	"time"

	"formcoach/internal/angles"
	"formcoach/internal/pose"
)

func frameAt(ts time.Time, joints map[pose.Joint]pose.FusedJoint) pose.FusedKeypointFrame {
	return pose.FusedKeypointFrame{Timestamp: ts, Joints: joints}
}

func fused(x, y, conf float64) pose.FusedJoint {
	return pose.FusedJoint{Position: pose.Point{X: x, Y: y}, Confidence: conf}
}

func kneeTriplet() []angles.Triplet {
	return []angles.Triplet{
		{ID: "left_knee", A: pose.LeftHip, B: pose.LeftKnee, C: pose.LeftAnkle, Min: 0, Max: 180},
	}
}

func TestProcessComputesVertexAngle(t *testing.T) {
	engine := angles.NewEngine(kneeTriplet(), 3)
	// Right angle: hip above the knee, ankle to the side.
	frame := frameAt(time.Unix(0, 0), map[pose.Joint]pose.FusedJoint{
		pose.LeftHip:   fused(0, 0, 0.9),
		pose.LeftKnee:  fused(0, 1, 0.8),
		pose.LeftAnkle: fused(1, 1, 0.7),
	})

	samples := engine.Process(frame)
	if len(samples) != 1 {
		t.Fatalf("expected 1 sample, got %d", len(samples))
	}
	if math.Abs(samples[0].Angle-90) > 1e-9 {
		t.Fatalf("expected 90 degrees, got %v", samples[0].Angle)
	}
	if samples[0].Confidence != 0.7 {
		t.Fatalf("confidence should be the minimum of the joints, got %v", samples[0].Confidence)
	}
	if samples[0].Velocity != 0 {
		t.Fatalf("first sample velocity should be 0, got %v", samples[0].Velocity)
	}
}

func TestProcessSkipsOccludedJoints(t *testing.T) {
	engine := angles.NewEngine(kneeTriplet(), 3)
	frame := frameAt(time.Unix(0, 0), map[pose.Joint]pose.FusedJoint{
		pose.LeftHip:   fused(0, 0, 0.9),
		pose.LeftKnee:  {Position: pose.Point{X: 0, Y: 1}, Confidence: 0.1, Occluded: true},
		pose.LeftAnkle: fused(1, 1, 0.7),
	})
	if samples := engine.Process(frame); len(samples) != 0 {
		t.Fatalf("expected no samples for occluded triplet, got %d", len(samples))
	}
}

func TestVelocityUsesRollingWindow(t *testing.T) {
	engine := angles.NewEngine(kneeTriplet(), 3)
	base := time.Unix(0, 0)

	makeFrame := func(ts time.Time, hipX, hipY float64) pose.FusedKeypointFrame {
		return frameAt(ts, map[pose.Joint]pose.FusedJoint{
			pose.LeftHip:   fused(hipX, hipY, 1),
			pose.LeftKnee:  fused(0, 0, 1),
			pose.LeftAnkle: fused(0, 1, 1),
		})
	}

	// Ankle is below the knee. Hip straight above: 180. Hip diagonal: 135. Hip to the side: 90.
	engine.Process(makeFrame(base, 0, -1))
	engine.Process(makeFrame(base.Add(time.Second), 1, -1))
	samples := engine.Process(makeFrame(base.Add(2*time.Second), 1, 0))
	if len(samples) != 1 {
		t.Fatalf("expected 1 sample, got %d", len(samples))
	}
	// Window of 3 spans two seconds: (90 - 180) / 2s = -45 deg/s.
	if math.Abs(samples[0].Velocity-(-45)) > 1e-9 {
		t.Fatalf("expected velocity -45 deg/s, got %v", samples[0].Velocity)
	}
}

func TestProcessIsDeterministic(t *testing.T) {
	run := func() []angles.Sample {
		engine := angles.NewEngine(angles.StandardTriplets(), 3)
		var out []angles.Sample
		base := time.Unix(100, 0)
		for i := 0; i < 20; i++ {
			ts := base.Add(time.Duration(i) * 33 * time.Millisecond)
			shift := float64(i) * 0.13
			frame := frameAt(ts, map[pose.Joint]pose.FusedJoint{
				pose.LeftHip:    fused(0, shift, 0.9),
				pose.LeftKnee:   fused(0.2, 1+shift/2, 0.8),
				pose.LeftAnkle:  fused(0.3, 2, 0.85),
				pose.RightHip:   fused(1, shift, 0.9),
				pose.RightKnee:  fused(1.2, 1+shift/2, 0.8),
				pose.RightAnkle: fused(1.3, 2, 0.85),
			})
			out = append(out, engine.Process(frame)...)
		}
		return out
	}

	first := run()
	second := run()
	if !reflect.DeepEqual(first, second) {
		t.Fatal("identical fused input must yield bit-identical samples")
	}
	if len(first) == 0 {
		t.Fatal("expected samples from knee triplets")
	}
}
