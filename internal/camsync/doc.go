// Package camsync pairs frames from two independently arriving camera feeds
// by capture timestamp.
//
// Each camera pushes into a bounded queue that drops its oldest unconsumed
// frame on overflow, so capture never blocks on a slow consumer. The
// synchronizer is the single consumer: it matches the head of camera A's
// queue against the closest camera B frame within the skew window, falls
// back to a degraded pair built from the last known B frame when no match
// arrives within the sync timeout, and reports a camera as lost after a
// prolonged silence. Output pairs are monotonically increasing by timestamp.
package camsync
