// Package pose defines the keypoint data model shared by the capture and
// analysis pipeline: camera frames, per-camera raw keypoint sets produced by
// the external pose estimator, and fused per-joint estimates.
package pose

import "time"

// Joint identifies a tracked body landmark.
type Joint string

const (
	Nose          Joint = "nose"
	LeftShoulder  Joint = "left_shoulder"
	RightShoulder Joint = "right_shoulder"
	LeftElbow     Joint = "left_elbow"
	RightElbow    Joint = "right_elbow"
	LeftWrist     Joint = "left_wrist"
	RightWrist    Joint = "right_wrist"
	LeftHip       Joint = "left_hip"
	RightHip      Joint = "right_hip"
	LeftKnee      Joint = "left_knee"
	RightKnee     Joint = "right_knee"
	LeftAnkle     Joint = "left_ankle"
	RightAnkle    Joint = "right_ankle"
)

// TrackedJoints lists every joint the pipeline cares about, in a stable order
// so fused output is deterministic.
var TrackedJoints = []Joint{
	Nose,
	LeftShoulder, RightShoulder,
	LeftElbow, RightElbow,
	LeftWrist, RightWrist,
	LeftHip, RightHip,
	LeftKnee, RightKnee,
	LeftAnkle, RightAnkle,
}

// Point is a position in shared rig coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Keypoint is a single estimated landmark in camera image coordinates.
type Keypoint struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Confidence float64 `json:"confidence"`
}

// RawKeypointSet is one camera's estimator output for a single frame.
type RawKeypointSet map[Joint]Keypoint

// CameraFrame is a single captured image. Frames are ephemeral; the pipeline
// discards them after fusion.
type CameraFrame struct {
	CameraID   string
	CapturedAt time.Time
	Image      []byte
}

// FusedJoint is the stabilized per-joint estimate after combining both views.
type FusedJoint struct {
	Position   Point   `json:"position"`
	Confidence float64 `json:"confidence"`
	Occluded   bool    `json:"occluded"`
}

// FusedKeypointFrame is the fusion output for one synchronized frame pair.
// Degraded marks frames built without a timely match from one camera.
type FusedKeypointFrame struct {
	Timestamp time.Time            `json:"timestamp"`
	Degraded  bool                 `json:"degraded"`
	Joints    map[Joint]FusedJoint `json:"joints"`
}
