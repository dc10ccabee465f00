package camsync

import "formcoach/internal/pose"

// frameQueue is a bounded FIFO that drops its oldest frame on overflow.
// Callers synchronize access; the queue itself holds no lock.
type frameQueue struct {
	frames   []pose.CameraFrame
	capacity int
	drops    uint64
}

func newFrameQueue(capacity int) *frameQueue {
	if capacity < 1 {
		capacity = 1
	}
	return &frameQueue{capacity: capacity}
}

func (q *frameQueue) push(frame pose.CameraFrame) {
	if len(q.frames) >= q.capacity {
		q.frames = q.frames[1:]
		q.drops++
	}
	q.frames = append(q.frames, frame)
}

func (q *frameQueue) empty() bool { return len(q.frames) == 0 }

func (q *frameQueue) head() pose.CameraFrame { return q.frames[0] }

func (q *frameQueue) popHead() pose.CameraFrame {
	frame := q.frames[0]
	q.frames = q.frames[1:]
	return frame
}

// closestTo returns the index of the frame with capture time nearest to ts,
// or -1 when the queue is empty. Earlier frames win exact ties.
func (q *frameQueue) closestTo(ts int64) int {
	best := -1
	var bestDelta int64
	for i, frame := range q.frames {
		delta := frame.CapturedAt.UnixNano() - ts
		if delta < 0 {
			delta = -delta
		}
		if best == -1 || delta < bestDelta {
			best = i
			bestDelta = delta
		}
	}
	return best
}

// removeThrough drops every frame up to and including index i.
func (q *frameQueue) removeThrough(i int) {
	q.frames = q.frames[i+1:]
}
