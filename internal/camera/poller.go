// Package camera captures frames by polling IP webcam snapshot endpoints.
// Each poller is one producer goroutine feeding the stream synchronizer.
package camera

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"formcoach/internal/config"
	"formcoach/internal/logging"
	"formcoach/internal/pose"
)

// FrameSink receives captured frames. Push must never block.
type FrameSink interface {
	Push(frame pose.CameraFrame)
}

// Poller fetches snapshots at a fixed interval and timestamps them on
// arrival. Fetch failures are logged and skipped; the poller keeps going
// until its context ends.
type Poller struct {
	cfg    config.Camera
	client *http.Client
	sink   FrameSink
	logger *slog.Logger
}

// NewPoller builds a poller for one configured camera.
func NewPoller(cfg config.Camera, sink FrameSink, logger *slog.Logger) *Poller {
	timeout := cfg.Timeout()
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Poller{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		sink:   sink,
		logger: logging.NewComponentLogger(logger, "camera"),
	}
}

// Run polls until the context is done.
func (p *Poller) Run(ctx context.Context) error {
	interval := p.cfg.PollInterval()
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		image, err := p.fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.logger.Warn("snapshot fetch failed",
				logging.String(logging.FieldCamera, p.cfg.ID),
				logging.Error(err),
			)
			continue
		}
		p.sink.Push(pose.CameraFrame{
			CameraID:   p.cfg.ID,
			CapturedAt: time.Now(),
			Image:      image,
		})
	}
}

func (p *Poller) fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.SnapshotURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build snapshot request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch snapshot: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("snapshot endpoint returned %d", resp.StatusCode)
	}
	image, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read snapshot body: %w", err)
	}
	if len(image) == 0 {
		return nil, fmt.Errorf("snapshot endpoint returned an empty image")
	}
	return image, nil
}
