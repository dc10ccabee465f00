// Package fusion combines per-camera keypoint estimates into one stabilized
// skeleton per synchronized frame pair.
package fusion

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"formcoach/internal/config"
	"formcoach/internal/faults"
	"formcoach/internal/logging"
	"formcoach/internal/pose"
)

// jointState carries per-joint smoothing and occlusion history between frames.
type jointState struct {
	smoothed      pose.Point
	hasSmoothed   bool
	carriedConf   float64
	occluded      bool
	occludedSince time.Time
}

// Engine fuses two camera views into per-joint estimates. It is single
// consumer state: one Engine per active session, fed in timestamp order.
type Engine struct {
	cfg    config.Fusion
	geomA  *pose.CameraGeometry
	geomB  *pose.CameraGeometry
	logger *slog.Logger
	state  map[pose.Joint]*jointState
}

// NewEngine builds a fusion engine with the given camera geometries.
func NewEngine(cfg config.Fusion, geomA, geomB *pose.CameraGeometry, logger *slog.Logger) *Engine {
	return &Engine{
		cfg:    cfg,
		geomA:  geomA,
		geomB:  geomB,
		logger: logging.NewComponentLogger(logger, "fusion"),
		state:  make(map[pose.Joint]*jointState, len(pose.TrackedJoints)),
	}
}

// Reset clears all smoothing and occlusion history.
func (e *Engine) Reset() {
	e.state = make(map[pose.Joint]*jointState, len(pose.TrackedJoints))
}

// Process fuses the estimator output of both cameras for one frame pair.
// Joints never observed by either camera are omitted from the result. The
// returned error is a tracking loss when any previously seen joint has been
// occluded longer than the configured maximum; the frame is still valid and
// callers decide whether to pause.
func (e *Engine) Process(ts time.Time, rawA, rawB pose.RawKeypointSet, degraded bool) (pose.FusedKeypointFrame, error) {
	frame := pose.FusedKeypointFrame{
		Timestamp: ts,
		Degraded:  degraded,
		Joints:    make(map[pose.Joint]pose.FusedJoint, len(pose.TrackedJoints)),
	}

	var lost pose.Joint
	var lostFor time.Duration
	for _, joint := range pose.TrackedJoints {
		kpA, okA := confident(rawA, joint, e.cfg.ConfidenceThreshold)
		kpB, okB := confident(rawB, joint, e.cfg.ConfidenceThreshold)

		st := e.state[joint]
		switch {
		case okA && okB:
			pos := pose.Combine(e.geomA.Project(kpA), kpA.Confidence, e.geomB.Project(kpB), kpB.Confidence)
			frame.Joints[joint] = e.observe(joint, st, pos, math.Max(kpA.Confidence, kpB.Confidence))
		case okA:
			frame.Joints[joint] = e.observe(joint, st, e.geomA.Project(kpA), kpA.Confidence)
		case okB:
			frame.Joints[joint] = e.observe(joint, st, e.geomB.Project(kpB), kpB.Confidence)
		default:
			if st == nil || !st.hasSmoothed {
				// Never seen by either camera; nothing to carry forward.
				continue
			}
			if !st.occluded {
				st.occluded = true
				st.occludedSince = ts
			}
			st.carriedConf *= e.cfg.OcclusionDecay
			frame.Joints[joint] = pose.FusedJoint{
				Position:   st.smoothed,
				Confidence: st.carriedConf,
				Occluded:   true,
			}
			if d := ts.Sub(st.occludedSince); d > e.cfg.MaxOcclusion() && d > lostFor {
				lost = joint
				lostFor = d
			}
		}
	}

	if lost != "" {
		e.logger.Warn("joint occluded past limit",
			logging.String(logging.FieldJoint, string(lost)),
			logging.Duration("occluded_for", lostFor),
		)
		return frame, faults.Wrap(faults.ErrTrackingLoss, "fusion",
			fmt.Sprintf("joint %s occluded for %s", lost, lostFor.Round(time.Millisecond)), nil)
	}
	return frame, nil
}

// observe folds a fresh observation into the joint's smoothed estimate.
func (e *Engine) observe(joint pose.Joint, st *jointState, pos pose.Point, conf float64) pose.FusedJoint {
	if st == nil {
		st = &jointState{}
		e.state[joint] = st
	}
	if st.hasSmoothed {
		alpha := e.cfg.SmoothingFactor
		st.smoothed = pose.Point{
			X: alpha*pos.X + (1-alpha)*st.smoothed.X,
			Y: alpha*pos.Y + (1-alpha)*st.smoothed.Y,
		}
	} else {
		st.smoothed = pos
		st.hasSmoothed = true
	}
	st.carriedConf = conf
	st.occluded = false
	return pose.FusedJoint{Position: st.smoothed, Confidence: conf}
}

func confident(raw pose.RawKeypointSet, joint pose.Joint, threshold float64) (pose.Keypoint, bool) {
	if raw == nil {
		return pose.Keypoint{}, false
	}
	kp, ok := raw[joint]
	if !ok || kp.Confidence < threshold {
		return pose.Keypoint{}, false
	}
	return kp, true
}
