// Package feedback turns machine transitions and detected technique faults
// into spoken coaching cues, delivered asynchronously with per-label
// cooldowns so the analysis loop never blocks on delivery.
package feedback

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"formcoach/internal/config"
)

const userAgent = "FormCoach-Go/0.1.0"

// Message is one deliverable coaching cue. Label groups messages for
// cooldown purposes; transition cues carry an event kind as their label.
type Message struct {
	Text     string
	Label    string
	Priority string
}

// Speaker delivers one message to the user. Implementations must be safe for
// use from the dispatcher goroutine only.
type Speaker interface {
	Speak(ctx context.Context, msg Message) error
}

// NewSpeaker builds the configured delivery backend. Without a push URL a
// noop speaker is returned.
func NewSpeaker(cfg config.Feedback) Speaker {
	endpoint := strings.TrimSpace(cfg.PushURL)
	if endpoint == "" {
		return noopSpeaker{}
	}
	timeout := time.Duration(cfg.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &pushSpeaker{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

// pushSpeaker publishes cues to an ntfy-compatible push endpoint; the phone
// app on the receiving end speaks them aloud.
type pushSpeaker struct {
	endpoint string
	client   *http.Client
}

func (p *pushSpeaker) Speak(ctx context.Context, msg Message) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, strings.NewReader(msg.Text))
	if err != nil {
		return fmt.Errorf("build push request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	req.Header.Set("Title", "FormCoach")
	if msg.Label != "" {
		req.Header.Set("Tags", "formcoach,"+strings.ReplaceAll(msg.Label, " ", "-"))
	}
	if msg.Priority != "" && msg.Priority != "default" {
		req.Header.Set("Priority", msg.Priority)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("send push message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("push endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopSpeaker struct{}

func (noopSpeaker) Speak(context.Context, Message) error { return nil }
