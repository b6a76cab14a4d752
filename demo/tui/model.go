package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"reelsmith/types"
)

// TickMsg drives the polling loop
type TickMsg struct {
	Time time.Time
}

// SnapshotMsg carries one polled view of the watched session
type SnapshotMsg struct {
	Session *types.Session
	Costs   *CostsResponse
	Assets  *AssetsResponse
	Err     error
}

// Model is the TUI state: a thin watcher over one session
type Model struct {
	Client    *SessionClient
	SessionID string

	Session   *types.Session
	Costs     *CostsResponse
	Assets    *AssetsResponse
	Connected bool
	Err       error
}

// NewModel creates a new TUI model
func NewModel(apiURL, userID, sessionID string) Model {
	return Model{
		Client:    NewSessionClient(apiURL, userID),
		SessionID: sessionID,
	}
}

// Init implements tea.Model
func (m Model) Init() tea.Cmd {
	return tea.Batch(pollSession(m.Client, m.SessionID), tickCmd())
}

// Update implements tea.Model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		}
	case TickMsg:
		return m, tea.Batch(pollSession(m.Client, m.SessionID), tickCmd())
	case SnapshotMsg:
		if msg.Err != nil {
			m.Connected = false
			m.Err = msg.Err
			return m, nil
		}
		m.Connected = true
		m.Err = nil
		m.Session = msg.Session
		m.Costs = msg.Costs
		m.Assets = msg.Assets
		return m, nil
	}
	return m, nil
}

// pollSession fetches the session, its ledger, and its assets
func pollSession(client *SessionClient, sessionID string) tea.Cmd {
	return func() tea.Msg {
		session, err := client.GetSession(sessionID)
		if err != nil {
			return SnapshotMsg{Err: err}
		}
		costs, err := client.GetCosts(sessionID)
		if err != nil {
			return SnapshotMsg{Err: err}
		}
		assets, err := client.GetAssets(sessionID)
		if err != nil {
			return SnapshotMsg{Err: err}
		}
		return SnapshotMsg{Session: session, Costs: costs, Assets: assets}
	}
}

// tickCmd schedules the next poll
func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return TickMsg{Time: t}
	})
}
