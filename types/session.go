package types

import "time"

// SessionStatus represents the session state machine
type SessionStatus string

const (
	StatusPending          SessionStatus = "pending"
	StatusGeneratingImages SessionStatus = "generating_images"
	StatusImagesApproved   SessionStatus = "images_approved"
	StatusGeneratingClips  SessionStatus = "generating_clips"
	StatusClipsApproved    SessionStatus = "clips_approved"
	StatusComposing        SessionStatus = "composing"
	StatusCompleted        SessionStatus = "completed"
	StatusFailed           SessionStatus = "failed"
)

// forwardTransitions lists the single legal successor of each non-terminal
// status. "failed" is reachable from any non-terminal status and is absorbing.
var forwardTransitions = map[SessionStatus]SessionStatus{
	StatusPending:          StatusGeneratingImages,
	StatusGeneratingImages: StatusImagesApproved,
	StatusImagesApproved:   StatusGeneratingClips,
	StatusGeneratingClips:  StatusClipsApproved,
	StatusClipsApproved:    StatusComposing,
	StatusComposing:        StatusCompleted,
}

// CanTransition reports whether moving from one status to another is legal.
// Transitions are strictly forward, one step at a time; any non-terminal
// status may fail.
func CanTransition(from, to SessionStatus) bool {
	if from == StatusCompleted || from == StatusFailed {
		return false
	}
	if to == StatusFailed {
		return true
	}
	return forwardTransitions[from] == to
}

// Terminal reports whether a status can never be left
func (s SessionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Session represents one end-to-end video-generation workflow instance.
// Status is mutated exclusively by the orchestrator as stages complete.
type Session struct {
	ID        string                 `json:"id"`
	UserID    string                 `json:"user_id"`
	ScriptID  string                 `json:"script_id"`
	Title     string                 `json:"title,omitempty"`
	Status    SessionStatus          `json:"status"`
	Config    map[string]interface{} `json:"config,omitempty"`
	VideoURL  string                 `json:"video_url,omitempty"`
	Error     string                 `json:"error,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// Asset kinds
const (
	AssetStoryboard = "storyboard"
	AssetAudio      = "audio"
	AssetImage      = "image"
	AssetClip       = "clip"
	AssetVideo      = "video"
)

// Asset is one artifact produced by a pipeline stage. Approved gates whether
// downstream stages may consume it; approval is flipped by an external
// reviewer, never by the orchestrator.
type Asset struct {
	ID        string                 `json:"id"`
	SessionID string                 `json:"session_id"`
	Kind      string                 `json:"kind"`
	URL       string                 `json:"url"`
	Approved  bool                   `json:"approved"`
	Ordinal   int                    `json:"ordinal"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// GenerationCost is one append-only ledger entry per external-service call.
// Rows are never mutated; spend is recorded even when the call's output is
// later discarded.
type GenerationCost struct {
	ID         string                 `json:"id"`
	SessionID  string                 `json:"session_id"`
	Service    string                 `json:"service"`
	Cost       float64                `json:"cost"`
	TokensUsed int                    `json:"tokens_used,omitempty"`
	Detail     map[string]interface{} `json:"detail,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
}
