package tui

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"reelsmith/types"
)

// SessionClient is a thin HTTP client for the pipeline API
type SessionClient struct {
	baseURL string
	userID  string
	client  *http.Client
}

// NewSessionClient creates a new API client
func NewSessionClient(baseURL, userID string) *SessionClient {
	return &SessionClient{
		baseURL: baseURL,
		userID:  userID,
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

func (c *SessionClient) get(path string, out interface{}) error {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-User-ID", c.userID)

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// GetSession fetches the session status snapshot
func (c *SessionClient) GetSession(sessionID string) (*types.Session, error) {
	var session types.Session
	if err := c.get("/api/sessions/"+sessionID, &session); err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &session, nil
}

// CostsResponse is the JSON response of the costs endpoint
type CostsResponse struct {
	Costs []*types.GenerationCost `json:"costs"`
	Total float64                 `json:"total"`
}

// GetCosts fetches the session's cost ledger
func (c *SessionClient) GetCosts(sessionID string) (*CostsResponse, error) {
	var costs CostsResponse
	if err := c.get("/api/sessions/"+sessionID+"/costs", &costs); err != nil {
		return nil, fmt.Errorf("failed to get costs: %w", err)
	}
	return &costs, nil
}

// AssetsResponse is the JSON response of the assets endpoint
type AssetsResponse struct {
	Assets []*types.Asset `json:"assets"`
}

// GetAssets fetches the session's assets
func (c *SessionClient) GetAssets(sessionID string) (*AssetsResponse, error) {
	var assets AssetsResponse
	if err := c.get("/api/sessions/"+sessionID+"/assets", &assets); err != nil {
		return nil, fmt.Errorf("failed to get assets: %w", err)
	}
	return &assets, nil
}
