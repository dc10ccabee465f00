package ipc

import "path/filepath"

// SocketPath returns the daemon control socket location under the state
// directory.
func SocketPath(stateDir string) string {
	return filepath.Join(stateDir, "formcoachd.sock")
}

// TranscriptRequest delivers one speech recognition result to the daemon.
type TranscriptRequest struct {
	Text  string `json:"text"`
	Final bool   `json:"final"`
}

// TranscriptResponse acknowledges transcript delivery. Command parsing
// happens asynchronously in the pipeline; acceptance only means the daemon
// received the text.
type TranscriptResponse struct {
	Accepted bool `json:"accepted"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse reports daemon liveness and capture counters.
type StatusResponse struct {
	Running       bool   `json:"running"`
	PID           int    `json:"pid"`
	CameraA       string `json:"camera_a"`
	CameraB       string `json:"camera_b"`
	SessionsDB    string `json:"sessions_db"`
	PairedPairs   uint64 `json:"paired_pairs"`
	DegradedPairs uint64 `json:"degraded_pairs"`
	DroppedFrames uint64 `json:"dropped_frames"`
}
