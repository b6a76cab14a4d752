package generation

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"reelsmith/config"
	"reelsmith/types"
)

// ImageClient generates still images from prompts via a Pollinations-style
// prompt-in-URL endpoint and re-hosts them in object storage.
type ImageClient struct {
	baseURL     string
	uploader    Uploader
	httpClient  *http.Client
	costPerCall float64
}

// NewImageClient builds a client from IMAGE_SERVICE_URL (defaults to the
// public Pollinations endpoint).
func NewImageClient(uploader Uploader) *ImageClient {
	return &ImageClient{
		baseURL:     getEnvOrDefault("IMAGE_SERVICE_URL", config.DefaultImageBaseURL),
		uploader:    uploader,
		httpClient:  &http.Client{Timeout: 90 * time.Second},
		costPerCall: costFromEnv("IMAGE_COST_PER_CALL", 0.02),
	}
}

// Generate renders one image for the prompt and uploads it under key
func (c *ImageClient) Generate(ctx context.Context, key, prompt string, cfg types.ImageConfig) (ImageOutput, error) {
	out := ImageOutput{Cost: c.costPerCall}

	width := cfg.Width
	if width <= 0 {
		width = config.VideoWidth
	}
	height := cfg.Height
	if height <= 0 {
		height = config.VideoHeight
	}
	model := cfg.Model
	if model == "" {
		model = "flux"
	}

	if cfg.Style != "" {
		prompt = prompt + ", " + cfg.Style
	}

	imageURL := fmt.Sprintf("%s/prompt/%s?width=%d&height=%d&nologo=true&model=%s&seed=%d",
		c.baseURL, url.PathEscape(prompt), width, height, model, cfg.Seed)

	tmpFile := filepath.Join(os.TempDir(), filepath.Base(key)+".jpg")
	if err := c.fetch(ctx, imageURL, tmpFile); err != nil {
		return out, fmt.Errorf("image generation: %w", err)
	}
	defer os.Remove(tmpFile)

	f, err := os.Open(tmpFile)
	if err != nil {
		return out, fmt.Errorf("open generated image: %w", err)
	}
	defer f.Close()

	hosted, err := c.uploader.Upload(ctx, key+".jpg", f, "image/jpeg")
	if err != nil {
		return out, fmt.Errorf("upload image: %w", err)
	}

	out.URL = hosted
	out.Width = width
	out.Height = height
	return out, nil
}

func (c *ImageClient) fetch(ctx context.Context, imageURL, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("image service returned %d", resp.StatusCode)
	}

	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, resp.Body)
	return err
}
