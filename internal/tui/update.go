package tui

import (
	"fmt"

	"netscope/internal/analysis"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
)

const topTalkers = 10

func (m DashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "i":
			if m.insight == nil || m.insightPending {
				return m, nil
			}
			m.insightPending = true
			m.insightErr = nil
			return m, m.insightCmd()
		}

	case insightMsg:
		m.insightPending = false
		m.insightErr = msg.err
		if msg.err == nil {
			m.summary = msg.summary
		}
		return m, nil

	case TickMsg:
		return m, m.refreshCmd()

	case snapshotMsg:
		if m.counters != nil {
			m.stats = m.counters()
		}
		m.err = msg.err
		if msg.err == nil {
			m.snap = msg.snap
			m.protocols = analysis.SortedProtocols(msg.snap.Protocols)

			talkers := analysis.TopTalkers(msg.snap.IPStats, topTalkers)
			rows := make([]table.Row, len(talkers))
			for i, t := range talkers {
				rows[i] = table.Row{t.Address, fmt.Sprintf("%d", t.SourceCount), fmt.Sprintf("%d", t.DestinationCount)}
			}
			m.table.SetRows(rows)
		}
		return m, m.tickCmd()
	}

	m.table, cmd = m.table.Update(msg)
	return m, cmd
}
