// Package generation holds the stage executors: thin clients for the
// external services that produce storyboard scenes, narration, music,
// images, video clips, and the final composition. Every executor reports a
// monetary cost alongside its outputs so the orchestrator can keep the
// ledger complete even when an output is later discarded.
package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
)

// Scene is one storyboard entry: what to show and for how long
type Scene struct {
	Index       int     `json:"index"`
	Description string  `json:"description"`
	ImagePrompt string  `json:"image_prompt"`
	DurationSec float64 `json:"duration_sec"`
}

// StoryboardOutput is the result of the storyboard executor
type StoryboardOutput struct {
	Scenes     []Scene
	Cost       float64
	TokensUsed int
}

// AudioOutput is the result of one narration or music call
type AudioOutput struct {
	URL         string
	DurationSec float64
	Cost        float64
}

// ImageOutput is the result of one image generation
type ImageOutput struct {
	URL    string
	Width  int
	Height int
	Cost   float64
}

// ClipOutput is the result of one image-to-video generation
type ClipOutput struct {
	URL         string
	DurationSec float64
	Cost        float64
}

// ComposeInput collects everything the composition stage consumes
type ComposeInput struct {
	SessionID     string
	ClipURLs      []string
	NarrationURLs []string
	MusicURL      string
	TextOverlay   string
}

// ComposeOutput is the final composition result
type ComposeOutput struct {
	URL         string
	LocalPath   string
	DurationSec float64
	Cost        float64
}

// VideoMetadata describes a composed video for publishing
type VideoMetadata struct {
	Title       string
	Description string
	Tags        []string
	CategoryID  string
}

// Uploader stores produced binary artifacts and returns a retrievable URL.
// Implementations: S3 object storage, or a local directory in dev mode.
type Uploader interface {
	Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error)
}

// downloadFile fetches a URL into a local file
func downloadFile(ctx context.Context, url, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to download: status %d", resp.StatusCode)
	}

	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, resp.Body)
	return err
}

// postJSON performs a JSON POST and decodes the response into result
func postJSON(ctx context.Context, client *http.Client, url string, apiKey string, payload, result interface{}) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API returned %d: %s", resp.StatusCode, string(bodyBytes))
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// costFromEnv reads a per-call cost override, falling back to the default
func costFromEnv(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil && f >= 0 {
			return f
		}
	}
	return defaultVal
}
