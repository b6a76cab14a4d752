package generation

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"
)

// MusicClient requests a background track from a music-generation service.
// The service returns a hosted audio URL, so no upload is needed here.
type MusicClient struct {
	baseURL     string
	apiKey      string
	httpClient  *http.Client
	costPerCall float64
}

// NewMusicClient builds a client from MUSIC_SERVICE_URL / MUSIC_API_KEY
func NewMusicClient() (*MusicClient, error) {
	baseURL := os.Getenv("MUSIC_SERVICE_URL")
	if baseURL == "" {
		return nil, fmt.Errorf("MUSIC_SERVICE_URL not set")
	}

	return &MusicClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      os.Getenv("MUSIC_API_KEY"),
		httpClient:  &http.Client{Timeout: 180 * time.Second},
		costPerCall: costFromEnv("MUSIC_COST_PER_CALL", 0.05),
	}, nil
}

type musicRequest struct {
	Prompt      string  `json:"prompt"`
	DurationSec float64 `json:"duration_sec"`
	Format      string  `json:"format"`
}

type musicResponse struct {
	AudioURL    string  `json:"audio_url"`
	DurationSec float64 `json:"duration_sec"`
	Error       string  `json:"error,omitempty"`
}

// Compose generates one background track for the given prompt and length
func (m *MusicClient) Compose(ctx context.Context, prompt string, durationSec float64) (AudioOutput, error) {
	out := AudioOutput{Cost: m.costPerCall}

	var resp musicResponse
	err := postJSON(ctx, m.httpClient, m.baseURL+"/generate", m.apiKey, musicRequest{
		Prompt:      prompt,
		DurationSec: durationSec,
		Format:      "mp3",
	}, &resp)
	if err != nil {
		return out, fmt.Errorf("music generation: %w", err)
	}
	if resp.Error != "" {
		return out, fmt.Errorf("music generation: %s", resp.Error)
	}
	if resp.AudioURL == "" {
		return out, fmt.Errorf("music generation returned no audio URL")
	}

	out.URL = resp.AudioURL
	out.DurationSec = resp.DurationSec
	if out.DurationSec == 0 {
		out.DurationSec = durationSec
	}
	return out, nil
}
