// Package angles converts fused keypoint frames into joint angle and angular
// velocity time series. The transform is purely functional: the same fused
// frame sequence always yields bit-identical samples.
package angles

import (
	"math"
	"time"

	"formcoach/internal/pose"
)

// TripletID names a configured joint triplet, e.g. "left_knee".
type TripletID string

// Triplet defines the three joints forming an angle: the vertex B with bone
// vectors toward A and C. Min and Max bound the expected angle domain.
type Triplet struct {
	ID  TripletID
	A   pose.Joint
	B   pose.Joint
	C   pose.Joint
	Min float64
	Max float64
}

// Sample is one angle measurement for a triplet at a point in time.
type Sample struct {
	Timestamp  time.Time `json:"timestamp"`
	Triplet    TripletID `json:"triplet"`
	Angle      float64   `json:"angle"`
	Velocity   float64   `json:"velocity"` // degrees per second
	Confidence float64   `json:"confidence"`
}

// StandardTriplets is the joint chain table used by every built-in exercise.
func StandardTriplets() []Triplet {
	return []Triplet{
		{ID: "left_elbow", A: pose.LeftShoulder, B: pose.LeftElbow, C: pose.LeftWrist, Min: 0, Max: 180},
		{ID: "right_elbow", A: pose.RightShoulder, B: pose.RightElbow, C: pose.RightWrist, Min: 0, Max: 180},
		{ID: "left_knee", A: pose.LeftHip, B: pose.LeftKnee, C: pose.LeftAnkle, Min: 0, Max: 180},
		{ID: "right_knee", A: pose.RightHip, B: pose.RightKnee, C: pose.RightAnkle, Min: 0, Max: 180},
		{ID: "left_shoulder", A: pose.LeftElbow, B: pose.LeftShoulder, C: pose.LeftHip, Min: 0, Max: 180},
		{ID: "right_shoulder", A: pose.RightElbow, B: pose.RightShoulder, C: pose.RightHip, Min: 0, Max: 180},
		{ID: "left_hip", A: pose.LeftShoulder, B: pose.LeftHip, C: pose.LeftKnee, Min: 0, Max: 180},
		{ID: "right_hip", A: pose.RightShoulder, B: pose.RightHip, C: pose.RightKnee, Min: 0, Max: 180},
	}
}

// Engine computes angle samples for a configured set of triplets, keeping a
// short rolling history per triplet for velocity estimation.
type Engine struct {
	triplets []Triplet
	window   int
	history  map[TripletID][]Sample
}

// NewEngine builds an engine. window is the rolling span (in samples) used
// for the velocity first difference; values below 2 are raised to 2.
func NewEngine(triplets []Triplet, window int) *Engine {
	if window < 2 {
		window = 2
	}
	return &Engine{
		triplets: append([]Triplet(nil), triplets...),
		window:   window,
		history:  make(map[TripletID][]Sample, len(triplets)),
	}
}

// Reset clears velocity history, e.g. between repetitions of different exercises.
func (e *Engine) Reset() {
	e.history = make(map[TripletID][]Sample, len(e.triplets))
}

// Process converts one fused frame into angle samples, ordered by the engine's
// triplet configuration. Triplets with an occluded or missing joint are skipped.
func (e *Engine) Process(frame pose.FusedKeypointFrame) []Sample {
	samples := make([]Sample, 0, len(e.triplets))
	for _, triplet := range e.triplets {
		a, okA := visibleJoint(frame, triplet.A)
		b, okB := visibleJoint(frame, triplet.B)
		c, okC := visibleJoint(frame, triplet.C)
		if !okA || !okB || !okC {
			continue
		}
		angle, ok := vertexAngle(a.Position, b.Position, c.Position)
		if !ok {
			continue
		}
		angle = clamp(angle, triplet.Min, triplet.Max)

		sample := Sample{
			Timestamp:  frame.Timestamp,
			Triplet:    triplet.ID,
			Angle:      angle,
			Confidence: minConfidence(a, b, c),
		}
		sample.Velocity = e.velocity(triplet.ID, sample)
		e.push(triplet.ID, sample)
		samples = append(samples, sample)
	}
	return samples
}

// velocity is the first difference of angle over the rolling window,
// in degrees per second. The first sample of a triplet reports zero.
func (e *Engine) velocity(id TripletID, current Sample) float64 {
	hist := e.history[id]
	if len(hist) == 0 {
		return 0
	}
	oldest := hist[0]
	if len(hist) >= e.window-1 {
		oldest = hist[len(hist)-(e.window-1)]
	}
	dt := current.Timestamp.Sub(oldest.Timestamp).Seconds()
	if dt <= 0 {
		return 0
	}
	return (current.Angle - oldest.Angle) / dt
}

func (e *Engine) push(id TripletID, sample Sample) {
	hist := append(e.history[id], sample)
	if len(hist) > e.window {
		hist = hist[len(hist)-e.window:]
	}
	e.history[id] = hist
}

func visibleJoint(frame pose.FusedKeypointFrame, joint pose.Joint) (pose.FusedJoint, bool) {
	fj, ok := frame.Joints[joint]
	if !ok || fj.Occluded {
		return pose.FusedJoint{}, false
	}
	return fj, true
}

// vertexAngle returns the angle in degrees at vertex b formed by points
// a-b-c, or false when either bone vector has zero length.
func vertexAngle(a, b, c pose.Point) (float64, bool) {
	bax := a.X - b.X
	bay := a.Y - b.Y
	bcx := c.X - b.X
	bcy := c.Y - b.Y
	na := math.Hypot(bax, bay)
	nc := math.Hypot(bcx, bcy)
	if na == 0 || nc == 0 {
		return 0, false
	}
	cos := (bax*bcx + bay*bcy) / (na * nc)
	cos = clamp(cos, -1, 1)
	return math.Acos(cos) * 180 / math.Pi, true
}

func minConfidence(joints ...pose.FusedJoint) float64 {
	min := math.Inf(1)
	for _, j := range joints {
		if j.Confidence < min {
			min = j.Confidence
		}
	}
	if math.IsInf(min, 1) {
		return 0
	}
	return min
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
