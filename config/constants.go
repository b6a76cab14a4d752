package config

import "time"

// Pipeline Stage Names
const (
	StageStoryboard = "storyboard"
	StageAudio      = "audio"
	StageImages     = "images"
	StageClips      = "clips"
	StageCompose    = "compose"
)

// Fan-out Constants
const (
	// MaxFanoutConcurrency bounds concurrent sub-generations within one stage.
	// External providers rate-limit aggressively.
	MaxFanoutConcurrency = 4

	// MaxAttempts is the number of tries for a transient external-service failure
	MaxAttempts = 3

	// RetryBackoff is the initial wait between attempts (doubles per attempt)
	RetryBackoff = 2 * time.Second
)

// Video Output Constants
const (
	// VideoWidth is the output video width (9:16 aspect ratio)
	VideoWidth = 720

	// VideoHeight is the output video height (9:16 aspect ratio)
	VideoHeight = 1280

	// VideoCodec is the video encoding codec
	VideoCodec = "libx264"

	// AudioCodec is the audio encoding codec
	AudioCodec = "aac"

	// AudioBitrate is the audio quality bitrate
	AudioBitrate = "192k"

	// VideoPreset is the ffmpeg encoding speed preset
	VideoPreset = "fast"

	// MusicVolume attenuates background music under the narration track
	MusicVolume = "0.2"
)

// Session Maintenance Constants
const (
	// StaleSessionAge marks a session failed once it has been stuck in a
	// generating state longer than this
	StaleSessionAge = 30 * time.Minute

	// SweepSchedule is the cron schedule for the stale-session sweeper
	SweepSchedule = "*/5 * * * *"

	// SessionLockTTL caps how long one stage invocation may hold the
	// per-session pipeline lock
	SessionLockTTL = 10 * time.Minute
)

// Progress Event Types
const (
	EventProgress = "export_progress"
	EventComplete = "export_complete"
	EventError    = "export_error"
)

// Default external service endpoints (overridable via env)
const (
	DefaultTTSBaseURL   = "https://api.openai.com/v1"
	DefaultImageBaseURL = "https://image.pollinations.ai"
)
