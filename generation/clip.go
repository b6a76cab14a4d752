package generation

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"reelsmith/types"
)

// ClipClient animates still images into short video clips through an
// image-to-video generation service.
type ClipClient struct {
	baseURL     string
	apiKey      string
	httpClient  *http.Client
	costPerCall float64
}

// NewClipClient builds a client from CLIP_SERVICE_URL / CLIP_API_KEY
func NewClipClient() (*ClipClient, error) {
	baseURL := os.Getenv("CLIP_SERVICE_URL")
	if baseURL == "" {
		return nil, fmt.Errorf("CLIP_SERVICE_URL not set")
	}

	return &ClipClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  os.Getenv("CLIP_API_KEY"),
		// Image-to-video calls routinely take tens of seconds
		httpClient:  &http.Client{Timeout: 5 * time.Minute},
		costPerCall: costFromEnv("CLIP_COST_PER_CALL", 0.10),
	}, nil
}

type clipRequest struct {
	ImageURL    string  `json:"image_url"`
	DurationSec float64 `json:"duration_sec,omitempty"`
	Model       string  `json:"model,omitempty"`
	MotionLevel int     `json:"motion_level,omitempty"`
}

type clipResponse struct {
	VideoURL    string  `json:"video_url"`
	DurationSec float64 `json:"duration_sec"`
	Error       string  `json:"error,omitempty"`
}

// Animate turns one approved image into a clip
func (c *ClipClient) Animate(ctx context.Context, imageURL string, cfg types.ClipConfig) (ClipOutput, error) {
	out := ClipOutput{Cost: c.costPerCall}

	var resp clipResponse
	err := postJSON(ctx, c.httpClient, c.baseURL+"/animate", c.apiKey, clipRequest{
		ImageURL:    imageURL,
		DurationSec: cfg.DurationSec,
		Model:       cfg.Model,
		MotionLevel: cfg.MotionLevel,
	}, &resp)
	if err != nil {
		return out, fmt.Errorf("clip generation: %w", err)
	}
	if resp.Error != "" {
		return out, fmt.Errorf("clip generation: %s", resp.Error)
	}
	if resp.VideoURL == "" {
		return out, fmt.Errorf("clip generation returned no video URL")
	}

	out.URL = resp.VideoURL
	out.DurationSec = resp.DurationSec
	return out, nil
}
