// Package poseclient talks to the external pose estimation service. The
// service itself is out of scope; this package only defines the Estimator
// contract and the HTTP implementation against it.
package poseclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"formcoach/internal/config"
	"formcoach/internal/pose"
)

// Estimator produces raw keypoints for one camera image.
type Estimator interface {
	Estimate(ctx context.Context, image []byte) (pose.RawKeypointSet, error)
}

// Client is the HTTP estimator: it posts the raw image and decodes the
// service's keypoint response.
type Client struct {
	endpoint string
	client   *http.Client
}

// New builds an HTTP estimator from the configured service endpoint.
func New(cfg config.Pose) *Client {
	timeout := cfg.Timeout()
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		endpoint: strings.TrimSpace(cfg.ServiceURL),
		client:   &http.Client{Timeout: timeout},
	}
}

type estimateResponse struct {
	Keypoints map[pose.Joint]pose.Keypoint `json:"keypoints"`
}

// Estimate sends one image and returns the per-joint keypoints.
func (c *Client) Estimate(ctx context.Context, image []byte) (pose.RawKeypointSet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(image))
	if err != nil {
		return nil, fmt.Errorf("build estimate request: %w", err)
	}
	req.Header.Set("Content-Type", "image/jpeg")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call pose service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("pose service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var decoded estimateResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode pose response: %w", err)
	}
	return pose.RawKeypointSet(decoded.Keypoints), nil
}
