package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFF7DB")).
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1).
			Margin(0, 1)

	alertStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5F5F")).
			Bold(true)
)

func (m DashboardModel) View() string {
	headerText := fmt.Sprintf("netscope - Session: %s", m.session)
	if m.source != "" {
		headerText += fmt.Sprintf(" [%s]", m.source)
	}
	title := titleStyle.Render(headerText)

	if m.snap == nil {
		status := "Waiting for data..."
		if m.err != nil {
			status = "Error: " + m.err.Error()
		}
		return lipgloss.JoinVertical(lipgloss.Left, title, infoStyle.Render(status)) + "\n" + m.help()
	}

	// Rate panel
	current := 0
	last := "--:--:--"
	if n := len(m.snap.PerSecond); n > 0 {
		current = m.snap.PerSecond[n-1].Count
		last = m.snap.PerSecond[n-1].Time
	}
	rate := fmt.Sprintf("Records: %d\nLast second (%s): %d PPS\nMean: %.2f PPS  Peak: %.0f PPS",
		m.snap.Records, last, current, m.snap.Rate.Mean, m.snap.Rate.Max)
	if m.counters != nil {
		rate += fmt.Sprintf("\nRead: %d  Dropped: %d", m.stats.FramesRead, m.stats.Dropped())
	}
	rateBox := infoStyle.Render(rate)

	// Protocols
	var protoStrs []string
	limit := 5
	if len(m.protocols) < limit {
		limit = len(m.protocols)
	}
	for i := 0; i < limit; i++ {
		p := m.protocols[i]
		protoStrs = append(protoStrs, fmt.Sprintf("%s: %d", p.Protocol, p.Count))
	}
	if len(protoStrs) == 0 {
		protoStrs = append(protoStrs, "Waiting for data...")
	}
	protoBox := infoStyle.Render("Protocols:\n" + strings.Join(protoStrs, "\n"))

	ttBox := infoStyle.Render("Top Talkers\n" + m.table.View())

	row1 := lipgloss.JoinHorizontal(lipgloss.Top, rateBox, protoBox)
	parts := []string{title, row1, ttBox}

	if alerts := m.snap.Alerts; len(alerts) > 0 {
		if len(alerts) > 3 {
			alerts = alerts[len(alerts)-3:]
		}
		lines := make([]string, len(alerts))
		for i, a := range alerts {
			lines[i] = fmt.Sprintf("%s %s %s", a.Timestamp.Format("15:04:05"), alertStyle.Render(string(a.Type)), a.Message)
		}
		parts = append(parts, infoStyle.Render("Alerts\n"+strings.Join(lines, "\n")))
	}
	if box := m.insightView(); box != "" {
		parts = append(parts, box)
	}
	if m.err != nil {
		parts = append(parts, alertStyle.Render("Refresh failed: "+m.err.Error()))
	}

	return lipgloss.JoinVertical(lipgloss.Left, parts...) + "\n" + m.help()
}

func (m DashboardModel) help() string {
	if m.insight == nil {
		return "Press q to quit."
	}
	return "Press i for insight, q to quit."
}

func (m DashboardModel) insightView() string {
	switch {
	case m.insightPending:
		return infoStyle.Render("Insight\nAsking the model...")
	case m.insightErr != nil:
		return alertStyle.Render("Insight failed: " + m.insightErr.Error())
	case m.summary == nil:
		return ""
	}
	header := fmt.Sprintf("Insight (%s, %d of %d records", m.summary.Model, m.summary.Records, m.summary.Total)
	if m.summary.Cached {
		header += ", cached"
	}
	return infoStyle.Width(100).Render(header + ")\n" + m.summary.Response)
}
