package types

import "time"

// Script section names, in narrative order
const (
	SectionHook       = "hook"
	SectionConcept    = "concept"
	SectionProcess    = "process"
	SectionConclusion = "conclusion"
)

// SectionOrder is the fixed narrative order of script sections
var SectionOrder = []string{SectionHook, SectionConcept, SectionProcess, SectionConclusion}

// ScriptSection is one part of the four-part narrative
type ScriptSection struct {
	Name           string   `json:"name"`
	Text           string   `json:"text"`
	TargetDuration float64  `json:"target_duration"`
	KeyConcepts    []string `json:"key_concepts,omitempty"`
	VisualGuidance string   `json:"visual_guidance,omitempty"`
}

// Script is the narrative input to the pipeline. It is read-only for the
// orchestrator; ownership and versioning live outside the pipeline.
type Script struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Title     string          `json:"title"`
	Sections  []ScriptSection `json:"sections"`
	CreatedAt time.Time       `json:"created_at"`
}

// TotalDuration sums the target durations of all sections
func (s *Script) TotalDuration() float64 {
	var total float64
	for _, sec := range s.Sections {
		total += sec.TargetDuration
	}
	return total
}

// StoryboardConfig holds per-session storyboard options
type StoryboardConfig struct {
	Model     string `json:"model,omitempty"`
	Style     string `json:"style,omitempty"`
	NumScenes int    `json:"num_scenes,omitempty"`
}

// AudioConfig holds narration and music options for the audio stage
type AudioConfig struct {
	Voice       string  `json:"voice"`
	Format      string  `json:"format,omitempty"`
	Speed       float64 `json:"speed,omitempty"`
	MusicPrompt string  `json:"music_prompt,omitempty"`
	SkipMusic   bool    `json:"skip_music,omitempty"`
}

// ImageConfig holds image-generation options
type ImageConfig struct {
	Model  string `json:"model,omitempty"`
	Style  string `json:"style,omitempty"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
	Seed   int    `json:"seed,omitempty"`
}

// ClipConfig holds image-to-video options
type ClipConfig struct {
	Model       string  `json:"model,omitempty"`
	DurationSec float64 `json:"duration_sec,omitempty"`
	MotionLevel int     `json:"motion_level,omitempty"`
}

// ComposeConfig holds final-composition options
type ComposeConfig struct {
	TextOverlay string `json:"text_overlay,omitempty"`
	Publish     bool   `json:"publish,omitempty"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
}
