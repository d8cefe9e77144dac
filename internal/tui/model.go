// Package tui is the live dashboard shown while a session is captured.
package tui

import (
	"context"
	"time"

	"netscope/internal/analysis"
	"netscope/internal/capture"
	"netscope/internal/insight"
	"netscope/internal/pipeline"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// SnapshotFunc computes the aggregates of a session.
type SnapshotFunc func(ctx context.Context, session string) (*pipeline.Snapshot, error)

// TickMsg triggers a refresh.
type TickMsg time.Time

type snapshotMsg struct {
	snap *pipeline.Snapshot
	err  error
}

// InsightFunc asks the model about a session.
type InsightFunc func(ctx context.Context, session string) (*insight.Summary, error)

type insightMsg struct {
	summary *insight.Summary
	err     error
}

// DashboardModel polls the aggregation functions once per interval and
// renders the latest results.
type DashboardModel struct {
	session  string
	source   string
	snapshot SnapshotFunc
	counters func() capture.SessionStats
	insight  InsightFunc
	interval time.Duration

	snap      *pipeline.Snapshot
	stats     capture.SessionStats
	protocols []analysis.ProtocolStat
	err       error
	table     table.Model

	summary        *insight.Summary
	insightErr     error
	insightPending bool
}

// NewDashboardModel creates the dashboard for session. counters may be nil
// when the session is not captured by this process.
func NewDashboardModel(session, source string, snapshot SnapshotFunc, counters func() capture.SessionStats) DashboardModel {
	columns := []table.Column{
		{Title: "Address", Width: 40},
		{Title: "As Source", Width: 10},
		{Title: "As Dest", Width: 10},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(false),
		table.WithHeight(10),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	return DashboardModel{
		session:  session,
		source:   source,
		snapshot: snapshot,
		counters: counters,
		interval: time.Second,
		table:    t,
	}
}

// WithInsight enables the insight key. fn is called on every press, so it
// should be backed by one long-lived insight.Client.
func (m DashboardModel) WithInsight(fn InsightFunc) DashboardModel {
	m.insight = fn
	return m
}

func (m DashboardModel) Init() tea.Cmd {
	return m.refreshCmd()
}

func (m DashboardModel) tickCmd() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

func (m DashboardModel) refreshCmd() tea.Cmd {
	session, snapshot := m.session, m.snapshot
	return func() tea.Msg {
		snap, err := snapshot(context.Background(), session)
		return snapshotMsg{snap: snap, err: err}
	}
}

func (m DashboardModel) insightCmd() tea.Cmd {
	session, fn := m.session, m.insight
	return func() tea.Msg {
		summary, err := fn(context.Background(), session)
		return insightMsg{summary: summary, err: err}
	}
}
