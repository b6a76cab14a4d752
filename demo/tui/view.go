package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"reelsmith/types"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#5FAFFF")).
			MarginBottom(1)

	runningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#D7AF00"))

	failedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5F5F"))

	doneStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#121212")).
			Background(lipgloss.Color("#5FD75F")).
			Padding(0, 1)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#808080"))

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("#444444")).
			Padding(0, 2)
)

// View implements tea.Model
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("reelsmith session watcher"))
	b.WriteString("\n")

	if !m.Connected {
		msg := "connecting..."
		if m.Err != nil {
			msg = m.Err.Error()
		}
		b.WriteString(panelStyle.Render(failedStyle.Render("not connected: " + msg)))
		b.WriteString("\n" + dimStyle.Render("press q to quit") + "\n")
		return b.String()
	}

	b.WriteString(panelStyle.Render(m.renderSession()))
	b.WriteString("\n" + dimStyle.Render("polling every second, press q to quit") + "\n")
	return b.String()
}

func (m Model) renderSession() string {
	var b strings.Builder

	fmt.Fprintf(&b, "Session: %s\n", m.Session.ID)
	if m.Session.Title != "" {
		fmt.Fprintf(&b, "Title:   %s\n", m.Session.Title)
	}
	fmt.Fprintf(&b, "Status:  %s\n", renderStatus(m.Session.Status))

	if m.Session.Error != "" {
		b.WriteString(failedStyle.Render("Error: "+m.Session.Error) + "\n")
	}
	if m.Session.VideoURL != "" {
		b.WriteString(doneStyle.Render("Video: "+m.Session.VideoURL) + "\n")
	}

	if m.Assets != nil && len(m.Assets.Assets) > 0 {
		b.WriteString("\n" + renderAssetCounts(m.Assets.Assets) + "\n")
	}

	if m.Costs != nil {
		fmt.Fprintf(&b, "\nLedger: %d entries, total $%.4f\n", len(m.Costs.Costs), m.Costs.Total)
	}

	return b.String()
}

func renderStatus(status types.SessionStatus) string {
	switch status {
	case types.StatusCompleted:
		return doneStyle.Render(string(status))
	case types.StatusFailed:
		return failedStyle.Render(string(status))
	default:
		return runningStyle.Render(string(status))
	}
}

// renderAssetCounts summarizes assets per kind with approval counts
func renderAssetCounts(assets []*types.Asset) string {
	total := make(map[string]int)
	approved := make(map[string]int)
	for _, a := range assets {
		total[a.Kind]++
		if a.Approved {
			approved[a.Kind]++
		}
	}

	var parts []string
	for _, kind := range []string{types.AssetStoryboard, types.AssetAudio, types.AssetImage, types.AssetClip, types.AssetVideo} {
		if total[kind] == 0 {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s %d/%d approved", kind, approved[kind], total[kind]))
	}
	return dimStyle.Render(strings.Join(parts, " | "))
}
