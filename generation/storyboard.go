package generation

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"reelsmith/types"

	cohere "github.com/cohere-ai/cohere-go/v2"
	cohereclient "github.com/cohere-ai/cohere-go/v2/client"
)

// StoryboardPlanner turns a four-part script into a list of scenes with
// image prompts, using the Cohere chat API.
type StoryboardPlanner struct {
	client      *cohereclient.Client
	model       string
	costPerCall float64
}

// NewStoryboardPlanner creates a planner from COHERE_API_KEY. Returns an
// error when the key is missing so callers can fail at startup, not
// mid-pipeline.
func NewStoryboardPlanner() (*StoryboardPlanner, error) {
	apiKey := os.Getenv("COHERE_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("COHERE_API_KEY not set")
	}

	model := getEnvOrDefault("COHERE_CHAT_MODEL", "command-r-08-2024")

	// Force HTTP/1.1 to avoid HTTP/2 protocol errors against the Cohere edge
	httpClient := &http.Client{
		Timeout: 60 * time.Second,
		Transport: &http.Transport{
			TLSNextProto:      make(map[string]func(authority string, c *tls.Conn) http.RoundTripper),
			ForceAttemptHTTP2: false,
		},
	}

	client := cohereclient.NewClient(
		cohereclient.WithToken(apiKey),
		cohereclient.WithHTTPClient(httpClient),
	)

	return &StoryboardPlanner{
		client:      client,
		model:       model,
		costPerCall: costFromEnv("STORYBOARD_COST_PER_CALL", 0.01),
	}, nil
}

// Plan asks the model for a JSON storyboard covering every script section.
// Cost is reported even when the response cannot be parsed.
func (p *StoryboardPlanner) Plan(ctx context.Context, script *types.Script, cfg types.StoryboardConfig) (StoryboardOutput, error) {
	out := StoryboardOutput{Cost: p.costPerCall}

	numScenes := cfg.NumScenes
	if numScenes <= 0 {
		numScenes = len(script.Sections)
	}

	prompt := buildStoryboardPrompt(script, cfg.Style, numScenes)
	model := p.model
	if cfg.Model != "" {
		model = cfg.Model
	}

	resp, err := p.client.Chat(ctx, &cohere.ChatRequest{
		Message: prompt,
		Model:   &model,
	})
	if err != nil {
		return out, fmt.Errorf("cohere chat: %w", err)
	}

	if resp.Meta != nil && resp.Meta.Tokens != nil {
		if resp.Meta.Tokens.InputTokens != nil {
			out.TokensUsed += int(*resp.Meta.Tokens.InputTokens)
		}
		if resp.Meta.Tokens.OutputTokens != nil {
			out.TokensUsed += int(*resp.Meta.Tokens.OutputTokens)
		}
	}

	scenes, err := parseStoryboardResponse(resp.Text)
	if err != nil {
		return out, fmt.Errorf("parse storyboard: %w", err)
	}
	if len(scenes) == 0 {
		return out, fmt.Errorf("model returned no scenes")
	}

	out.Scenes = scenes
	return out, nil
}

func buildStoryboardPrompt(script *types.Script, style string, numScenes int) string {
	var b strings.Builder
	b.WriteString("You are a storyboard artist for short-form vertical video. ")
	fmt.Fprintf(&b, "Produce exactly %d scenes as a JSON array of objects with keys ", numScenes)
	b.WriteString(`"description", "image_prompt", and "duration_sec". Return only JSON.`)
	if style != "" {
		fmt.Fprintf(&b, " Visual style: %s.", style)
	}
	b.WriteString("\n\nScript:\n")

	for _, sec := range script.Sections {
		fmt.Fprintf(&b, "[%s] (%.0fs) %s\n", sec.Name, sec.TargetDuration, sec.Text)
		if sec.VisualGuidance != "" {
			fmt.Fprintf(&b, "  visual guidance: %s\n", sec.VisualGuidance)
		}
		if len(sec.KeyConcepts) > 0 {
			fmt.Fprintf(&b, "  key concepts: %s\n", strings.Join(sec.KeyConcepts, ", "))
		}
	}
	return b.String()
}

// parseStoryboardResponse extracts the JSON array from the model reply,
// tolerating surrounding prose or code fences.
func parseStoryboardResponse(text string) ([]Scene, error) {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON array in response")
	}

	var scenes []Scene
	if err := json.Unmarshal([]byte(text[start:end+1]), &scenes); err != nil {
		return nil, err
	}

	for i := range scenes {
		scenes[i].Index = i
	}
	return scenes, nil
}
