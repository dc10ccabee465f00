package feedback_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"formcoach/internal/config"
	"formcoach/internal/exercise"
	"formcoach/internal/feedback"
	"formcoach/internal/logging"
)

type recordingSpeaker struct {
	mu       sync.Mutex
	messages []feedback.Message
	block    chan struct{}
	started  chan string
}

func (r *recordingSpeaker) Speak(ctx context.Context, msg feedback.Message) error {
	if r.started != nil {
		r.started <- msg.Text
	}
	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	r.mu.Lock()
	r.messages = append(r.messages, msg)
	r.mu.Unlock()
	return nil
}

func (r *recordingSpeaker) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestDispatcherDeliversAsync(t *testing.T) {
	speaker := &recordingSpeaker{}
	d := feedback.NewDispatcher(config.Feedback{QueueSize: 8, CooldownSec: 0}, speaker, logging.NewNop())
	defer d.Close()

	if !d.Enqueue(feedback.Message{Text: "rep 1 of 3", Label: "rep_completed"}) {
		t.Fatal("enqueue must accept with room in the queue")
	}
	waitFor(t, func() bool { return speaker.count() == 1 })
}

func TestCooldownSuppressesRepeatedLabels(t *testing.T) {
	speaker := &recordingSpeaker{}
	d := feedback.NewDispatcher(config.Feedback{QueueSize: 8, CooldownSec: 3600}, speaker, logging.NewNop())
	defer d.Close()

	if !d.Enqueue(feedback.Message{Text: "knees", Label: "knee valgus"}) {
		t.Fatal("first message must pass")
	}
	if d.Enqueue(feedback.Message{Text: "knees", Label: "knee valgus"}) {
		t.Fatal("second message within the cooldown must be suppressed")
	}
	if !d.Enqueue(feedback.Message{Text: "depth", Label: "shallow depth"}) {
		t.Fatal("cooldowns are per label")
	}
	waitFor(t, func() bool { return speaker.count() == 2 })
}

func TestFullQueueDropsAndCounts(t *testing.T) {
	speaker := &recordingSpeaker{block: make(chan struct{})}
	d := feedback.NewDispatcher(config.Feedback{QueueSize: 1, CooldownSec: 0}, speaker, logging.NewNop())

	// First fills the worker, second fills the queue, third must drop.
	d.Enqueue(feedback.Message{Text: "a"})
	d.Enqueue(feedback.Message{Text: "b"})
	waitFor(t, func() bool {
		d.Enqueue(feedback.Message{Text: "c"})
		return d.Dropped() > 0
	})

	close(speaker.block)
	d.Close()
}

func TestDroppedMessageDoesNotArmCooldown(t *testing.T) {
	speaker := &recordingSpeaker{block: make(chan struct{}), started: make(chan string, 4)}
	d := feedback.NewDispatcher(config.Feedback{QueueSize: 1, CooldownSec: 3600}, speaker, logging.NewNop())

	d.Enqueue(feedback.Message{Text: "filler one"})
	<-speaker.started // worker is now busy with the first filler
	if !d.Enqueue(feedback.Message{Text: "filler two"}) {
		t.Fatal("queue must have room for the second filler")
	}

	if d.Enqueue(feedback.Message{Text: "knees", Label: "knee valgus"}) {
		t.Fatal("a full queue must drop the message")
	}
	if d.Dropped() != 1 {
		t.Fatalf("expected one dropped message, got %d", d.Dropped())
	}

	close(speaker.block)
	<-speaker.started // worker picked up the second filler, queue is empty
	if !d.Enqueue(feedback.Message{Text: "knees", Label: "knee valgus"}) {
		t.Fatal("a dropped message must not put its label on cooldown")
	}
	d.Close()
}

func TestPushSpeakerPostsMessage(t *testing.T) {
	var got struct {
		body     string
		priority string
		tags     string
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got.body = string(body)
		got.priority = r.Header.Get("Priority")
		got.tags = r.Header.Get("Tags")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	speaker := feedback.NewSpeaker(config.Feedback{PushURL: server.URL, RequestTimeout: 5})
	err := speaker.Speak(context.Background(), feedback.Message{
		Text:     "Stop, back arch.",
		Label:    "back arch",
		Priority: "high",
	})
	if err != nil {
		t.Fatalf("speak: %v", err)
	}
	if got.body != "Stop, back arch." {
		t.Fatalf("unexpected body %q", got.body)
	}
	if got.priority != "high" {
		t.Fatalf("expected high priority header, got %q", got.priority)
	}
	if !strings.Contains(got.tags, "back-arch") {
		t.Fatalf("expected label tag, got %q", got.tags)
	}
}

func TestPushSpeakerReportsHTTPErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer server.Close()

	speaker := feedback.NewSpeaker(config.Feedback{PushURL: server.URL, RequestTimeout: 5})
	if err := speaker.Speak(context.Background(), feedback.Message{Text: "x"}); err == nil {
		t.Fatal("expected an error on a non-2xx response")
	}
}

func TestTemplateLanguageMatching(t *testing.T) {
	tests := []struct {
		lang string
		want string
	}{
		{"en", "Rep 2 of 5."},
		{"en-US", "Rep 2 of 5."},
		{"de", "Wiederholung 2 von 5."},
		{"de-AT", "Wiederholung 2 von 5."},
		{"fr", "Rep 2 of 5."}, // unsupported falls back to English
		{"", "Rep 2 of 5."},
	}
	for _, tc := range tests {
		t.Run("lang "+tc.lang, func(t *testing.T) {
			tmpl := feedback.NewTemplates(tc.lang)
			if got := tmpl.RepCompleted(2, 5); got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestCriticalFaultPhrasing(t *testing.T) {
	tmpl := feedback.NewTemplates("en")
	warning := tmpl.TechniqueFault("shallow depth", exercise.SeverityWarning)
	critical := tmpl.TechniqueFault("back arch", exercise.SeverityCritical)
	if !strings.HasPrefix(warning, "Watch your form") {
		t.Fatalf("unexpected warning phrasing %q", warning)
	}
	if !strings.HasPrefix(critical, "Stop,") {
		t.Fatalf("critical faults need the urgent phrasing, got %q", critical)
	}
}
