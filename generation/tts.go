package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"reelsmith/types"
)

// TTSClient synthesizes narration via an OpenAI-compatible speech endpoint
// and uploads the resulting audio to object storage.
type TTSClient struct {
	baseURL     string
	apiKey      string
	model       string
	uploader    Uploader
	httpClient  *http.Client
	costPerCall float64
}

// NewTTSClient builds a client from TTS_BASE_URL / TTS_API_KEY / TTS_MODEL
func NewTTSClient(baseURL string, uploader Uploader) (*TTSClient, error) {
	apiKey := os.Getenv("TTS_API_KEY")
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("TTS_API_KEY not set")
	}

	return &TTSClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      apiKey,
		model:       getEnvOrDefault("TTS_MODEL", "tts-1"),
		uploader:    uploader,
		httpClient:  &http.Client{Timeout: 120 * time.Second},
		costPerCall: costFromEnv("TTS_COST_PER_CALL", 0.015),
	}, nil
}

// Synthesize renders one script section to speech. The key names the
// session and section so repeated runs overwrite rather than accumulate.
func (t *TTSClient) Synthesize(ctx context.Context, key, text string, cfg types.AudioConfig) (AudioOutput, error) {
	out := AudioOutput{Cost: t.costPerCall}

	voice := cfg.Voice
	if voice == "" {
		voice = "alloy"
	}
	format := cfg.Format
	if format == "" {
		format = "mp3"
	}

	payload := map[string]interface{}{
		"model":           t.model,
		"input":           text,
		"voice":           voice,
		"response_format": format,
	}
	if cfg.Speed > 0 {
		payload["speed"] = cfg.Speed
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return out, fmt.Errorf("marshal tts request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		t.baseURL+"/audio/speech", bytes.NewBuffer(jsonData))
	if err != nil {
		return out, fmt.Errorf("create tts request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.apiKey)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return out, fmt.Errorf("tts request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return out, fmt.Errorf("tts returned %d: %s", resp.StatusCode, string(bodyBytes))
	}

	url, err := t.uploader.Upload(ctx, key+"."+format, resp.Body, "audio/mpeg")
	if err != nil {
		// The provider already billed the call; the caller persists the cost
		return out, fmt.Errorf("upload narration: %w", err)
	}

	out.URL = url
	out.DurationSec = estimateSpeechDuration(text, cfg.Speed)
	return out, nil
}

// estimateSpeechDuration approximates audio length from word count
// (~2.6 words/second for conversational TTS voices).
func estimateSpeechDuration(text string, speed float64) float64 {
	words := len(strings.Fields(text))
	if speed <= 0 {
		speed = 1.0
	}
	return float64(words) / (2.6 * speed)
}
