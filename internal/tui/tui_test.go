package tui

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"netscope/internal/analysis"
	"netscope/internal/capture"
	"netscope/internal/insight"
	"netscope/internal/logger"
	"netscope/internal/models"
	"netscope/internal/pipeline"
	"netscope/internal/store"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSnapshot() *pipeline.Snapshot {
	return &pipeline.Snapshot{
		Session:   "packet_data_20240601100000",
		Records:   42,
		IPStats:   map[string]models.IPStats{"10.0.0.1": {SourceCount: 30, DestinationCount: 12}},
		PerSecond: []models.TimeBucket{{Time: "10:00:00", Count: 30}, {Time: "10:00:01", Count: 12}},
		Protocols: map[string]int{"HTTPS": 40, "DNS": 2},
		Rate:      analysis.RateSummary{Mean: 21, Max: 30},
		Alerts: []analysis.Alert{{
			Type:      analysis.AnomalyUnsecure,
			Message:   "Plaintext HTTP traffic",
			Timestamp: time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC),
		}},
	}
}

func TestDashboardRendersSnapshot(t *testing.T) {
	calls := 0
	snapshot := func(_ context.Context, session string) (*pipeline.Snapshot, error) {
		calls++
		assert.Equal(t, "packet_data_20240601100000", session)
		return testSnapshot(), nil
	}
	counters := func() capture.SessionStats { return capture.SessionStats{FramesRead: 50, DecodeSkipped: 8} }
	m := NewDashboardModel("packet_data_20240601100000", "eth0", snapshot, counters)

	assert.Contains(t, m.View(), "Waiting for data")

	msg := m.Init()()
	updated, cmd := m.Update(msg)
	require.NotNil(t, cmd)
	assert.Equal(t, 1, calls)

	view := updated.View()
	assert.Contains(t, view, "eth0")
	assert.Contains(t, view, "Records: 42")
	assert.Contains(t, view, "Last second (10:00:01): 12 PPS")
	assert.Contains(t, view, "HTTPS: 40")
	assert.Contains(t, view, "10.0.0.1")
	assert.Contains(t, view, "Dropped: 8")
	assert.Contains(t, view, "Plaintext HTTP traffic")
}

func TestDashboardKeepsLastSnapshotOnError(t *testing.T) {
	m := NewDashboardModel("packet_data_x", "", nil, nil)
	updated, _ := m.Update(snapshotMsg{snap: testSnapshot()})
	updated, _ = updated.Update(snapshotMsg{err: errors.New("database is locked")})

	view := updated.View()
	assert.Contains(t, view, "Records: 42")
	assert.Contains(t, view, "Refresh failed: database is locked")
}

func TestDashboardQuit(t *testing.T) {
	m := NewDashboardModel("packet_data_x", "", nil, nil)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func pressKey(t *testing.T, m tea.Model, key string) (tea.Model, tea.Cmd) {
	t.Helper()
	return m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)})
}

func TestDashboardInsight(t *testing.T) {
	calls := 0
	ask := func(_ context.Context, session string) (*insight.Summary, error) {
		calls++
		return &insight.Summary{Session: session, Model: "llama3.1", Records: 50, Total: 420, Response: "Mostly HTTPS."}, nil
	}
	m := NewDashboardModel("packet_data_x", "", nil, nil).WithInsight(ask)
	updated, _ := m.Update(snapshotMsg{snap: testSnapshot()})
	assert.Contains(t, updated.View(), "Press i for insight")

	updated, cmd := pressKey(t, updated, "i")
	require.NotNil(t, cmd)
	assert.Contains(t, updated.View(), "Asking the model")

	// a second press while the request is in flight is ignored
	_, again := pressKey(t, updated, "i")
	assert.Nil(t, again)

	updated, _ = updated.Update(cmd())
	assert.Equal(t, 1, calls)
	view := updated.View()
	assert.Contains(t, view, "Mostly HTTPS.")
	assert.Contains(t, view, "50 of 420 records")
}

func TestDashboardInsightError(t *testing.T) {
	ask := func(context.Context, string) (*insight.Summary, error) {
		return nil, errors.New("connection refused")
	}
	m := NewDashboardModel("packet_data_x", "", nil, nil).WithInsight(ask)
	updated, _ := m.Update(snapshotMsg{snap: testSnapshot()})
	updated, cmd := pressKey(t, updated, "i")
	require.NotNil(t, cmd)
	updated, _ = updated.Update(cmd())

	assert.Contains(t, updated.View(), "Insight failed: connection refused")
}

func TestDashboardWithoutInsightIgnoresKey(t *testing.T) {
	m := NewDashboardModel("packet_data_x", "", nil, nil)
	updated, cmd := pressKey(t, m, "i")
	assert.Nil(t, cmd)
	assert.NotContains(t, updated.View(), "insight")
}

type countingFetcher struct {
	records []models.PacketRecord
}

func (f *countingFetcher) FetchRecords(context.Context, string, store.Filter) ([]models.PacketRecord, error) {
	return f.records, nil
}

func (f *countingFetcher) Count(context.Context, string) (int, error) {
	return len(f.records), nil
}

func TestDashboardReusesInsightClient(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		json.NewEncoder(w).Encode(map[string]any{"response": "Quiet network.", "done": true})
	}))
	defer srv.Close()

	proto := "DNS"
	fetch := &countingFetcher{records: []models.PacketRecord{{
		Timestamp:   time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC),
		PacketType:  models.PacketTypeIPv4,
		Source:      "10.0.0.1",
		Destination: "10.0.0.53",
		Protocol:    &proto,
		Payload:     models.NewPayload([]byte{1}),
	}}}
	client := insight.NewClient(insight.Config{URL: srv.URL}, fetch, logger.Discard())

	var m tea.Model = NewDashboardModel("packet_data_x", "", nil, nil).WithInsight(client.Summarize)
	m, _ = m.Update(snapshotMsg{snap: testSnapshot()})

	for i := 0; i < 2; i++ {
		var cmd tea.Cmd
		m, cmd = pressKey(t, m, "i")
		require.NotNil(t, cmd)
		m, _ = m.Update(cmd())
	}

	assert.Equal(t, int32(1), requests.Load())
	assert.Contains(t, m.View(), "cached")
	assert.Contains(t, m.View(), "Quiet network.")
}
