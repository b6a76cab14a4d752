package types

// ProgressEvent is a small structured message describing stage progress,
// pushed to live subscribers of a session.
type ProgressEvent struct {
	Type     string `json:"type"`
	Stage    string `json:"stage,omitempty"`
	Progress int    `json:"progress,omitempty"` // 0-100
	Message  string `json:"message,omitempty"`
	VideoURL string `json:"video_url,omitempty"`
	Error    string `json:"error,omitempty"`
}

// ItemError records one failed sub-generation inside a fan-out stage
type ItemError struct {
	Index int    `json:"index"`
	Input string `json:"input,omitempty"`
	Error string `json:"error"`
}

// StageResult is returned by every orchestrator stage operation. Status is
// "success" or "error"; a stage with partial fan-out failures still reports
// success and carries the per-item errors alongside the produced assets.
type StageResult struct {
	Status        string      `json:"status"`
	Stage         string      `json:"stage"`
	SessionID     string      `json:"session_id"`
	Assets        []*Asset    `json:"assets,omitempty"`
	ItemErrors    []ItemError `json:"item_errors,omitempty"`
	TotalCost     float64     `json:"total_cost"`
	TotalDuration float64     `json:"total_duration,omitempty"`
	VideoURL      string      `json:"video_url,omitempty"`
	Error         string      `json:"error,omitempty"`
}

// AssetReview is the payload of an external reviewer action, received over
// the API or the review Kafka topic.
type AssetReview struct {
	AssetID  string `json:"asset_id"`
	Approved bool   `json:"approved"`
	Reviewer string `json:"reviewer,omitempty"`
}
