package feedback

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"formcoach/internal/config"
	"formcoach/internal/logging"
)

// Dispatcher queues coaching cues for asynchronous delivery. Enqueue never
// blocks: when the outbound queue is full the message is dropped and counted.
type Dispatcher struct {
	speaker  Speaker
	logger   *slog.Logger
	cooldown time.Duration
	timeout  time.Duration
	now      func() time.Time

	mu       sync.Mutex
	lastSent map[string]time.Time

	queue   chan Message
	dropped atomic.Uint64
	closed  atomic.Bool
	wg      sync.WaitGroup
}

// NewDispatcher starts the delivery worker.
func NewDispatcher(cfg config.Feedback, speaker Speaker, logger *slog.Logger) *Dispatcher {
	size := cfg.QueueSize
	if size < 1 {
		size = 16
	}
	timeout := time.Duration(cfg.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	d := &Dispatcher{
		speaker:  speaker,
		logger:   logging.NewComponentLogger(logger, "feedback"),
		cooldown: cfg.Cooldown(),
		timeout:  timeout,
		now:      time.Now,
		lastSent: make(map[string]time.Time),
		queue:    make(chan Message, size),
	}
	d.wg.Add(1)
	go d.deliver()
	return d
}

// Enqueue offers a message for delivery. It reports false when the message
// was suppressed by a cooldown or dropped on a full queue.
func (d *Dispatcher) Enqueue(msg Message) bool {
	if d.closed.Load() {
		return false
	}
	if msg.Label != "" && d.onCooldown(msg.Label) {
		return false
	}
	select {
	case d.queue <- msg:
		d.markSent(msg.Label)
		return true
	default:
		d.dropped.Add(1)
		d.logger.Warn("feedback queue full, message dropped", logging.String("label", msg.Label))
		return false
	}
}

func (d *Dispatcher) onCooldown(label string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	last, ok := d.lastSent[label]
	return ok && d.now().Sub(last) < d.cooldown
}

// markSent stamps the label's cooldown only once the message made it into
// the queue; a message dropped on a full queue must not suppress the next
// cue with the same label.
func (d *Dispatcher) markSent(label string) {
	if label == "" {
		return
	}
	d.mu.Lock()
	d.lastSent[label] = d.now()
	d.mu.Unlock()
}

// Dropped returns how many messages were discarded on a full queue.
func (d *Dispatcher) Dropped() uint64 { return d.dropped.Load() }

// Close drains the queue and stops the worker. Safe to call once.
func (d *Dispatcher) Close() {
	if d.closed.CompareAndSwap(false, true) {
		close(d.queue)
	}
	d.wg.Wait()
}

func (d *Dispatcher) deliver() {
	defer d.wg.Done()
	for msg := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		if err := d.speaker.Speak(ctx, msg); err != nil {
			d.logger.Warn("feedback delivery failed",
				logging.String("label", msg.Label),
				logging.Error(err),
			)
		}
		cancel()
	}
}
