// Package pipeline wires the capture manager, record store and aggregation
// functions into the operations the command surface calls.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"netscope/internal/analysis"
	"netscope/internal/capture"
	"netscope/internal/logger"
	"netscope/internal/models"
	"netscope/internal/store"
)

// Pipeline owns the store and the single live capture.
type Pipeline struct {
	store   *store.Store
	manager *capture.Manager
	cfg     capture.Config
	log     *logger.Logger
	now     func() time.Time
}

const maxReplaysPerSecond = 100

// New creates a pipeline over an open store.
func New(st *store.Store, cfg capture.Config, log *logger.Logger) *Pipeline {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Pipeline{
		store:   st,
		manager: capture.NewManager(st, cfg, log),
		cfg:     cfg,
		log:     log,
		now:     time.Now,
	}
}

// Store returns the underlying record store.
func (p *Pipeline) Store() *store.Store {
	return p.store
}

// StartSession begins capturing on iface. If a capture is already running
// that session is returned.
func (p *Pipeline) StartSession(ctx context.Context, iface string) (*capture.Session, error) {
	return p.manager.Start(ctx, iface)
}

// StopSession stops s and waits for its loop to finish.
func (p *Pipeline) StopSession(s *capture.Session) error {
	return p.manager.Stop(s)
}

// ActiveSession returns the running live session, or nil.
func (p *Pipeline) ActiveSession() *capture.Session {
	return p.manager.Active()
}

// Replay feeds a capture file into a new session table. The session ends on
// its own at the end of the file; callers wait on Done and then Stop it.
func (p *Pipeline) Replay(ctx context.Context, path string) (*capture.Session, error) {
	src, err := capture.OpenReplay(path)
	if err != nil {
		return nil, err
	}
	name, err := p.replayName(ctx)
	if err != nil {
		src.Close()
		return nil, err
	}
	s := capture.NewSession(name, path, src, p.store, p.cfg.PollInterval, p.log)
	if err := s.Start(ctx); err != nil {
		src.Close()
		return nil, fmt.Errorf("failed to start replay: %w", err)
	}
	return s, nil
}

// replayName picks the first replay table name for the current second that
// is not already in use.
func (p *Pipeline) replayName(ctx context.Context) (string, error) {
	now := p.now()
	for n := 1; n <= maxReplaysPerSecond; n++ {
		name := store.ReplayTableName(now, n)
		exists, err := p.store.SessionExists(ctx, name)
		if err != nil {
			return "", err
		}
		if !exists {
			return name, nil
		}
	}
	return "", fmt.Errorf("too many replays started at %s", now.UTC().Format(time.RFC3339))
}

// ListSessions returns the names of all session tables.
func (p *Pipeline) ListSessions(ctx context.Context) ([]string, error) {
	return p.store.ListSessions(ctx)
}

// FetchRecords returns the records of a session matching f.
func (p *Pipeline) FetchRecords(ctx context.Context, session string, f store.Filter) ([]models.PacketRecord, error) {
	return p.store.FetchRecords(ctx, session, f)
}

// IPStats returns per-address source and destination counts.
func (p *Pipeline) IPStats(ctx context.Context, session string) (map[string]models.IPStats, error) {
	return analysis.IPStats(ctx, p.store, session)
}

// PacketsPerSecond returns records per time-of-day second, sorted.
func (p *Pipeline) PacketsPerSecond(ctx context.Context, session string) ([]models.TimeBucket, error) {
	return analysis.PacketsPerSecond(ctx, p.store, session)
}

// ProtocolHistogram returns records per protocol label.
func (p *Pipeline) ProtocolHistogram(ctx context.Context, session string) (map[string]int, error) {
	return analysis.ProtocolHistogram(ctx, p.store, session)
}

// PacketTypeHistogram returns records per network layer.
func (p *Pipeline) PacketTypeHistogram(ctx context.Context, session string) (map[models.PacketType]int, error) {
	return analysis.PacketTypeHistogram(ctx, p.store, session)
}

// RateSummary summarises the packets-per-second series of a session.
func (p *Pipeline) RateSummary(ctx context.Context, session string) (analysis.RateSummary, error) {
	buckets, err := p.PacketsPerSecond(ctx, session)
	if err != nil {
		return analysis.RateSummary{}, err
	}
	return analysis.Rate(buckets)
}

// Anomalies returns alerts raised by scanning a session.
func (p *Pipeline) Anomalies(ctx context.Context, session string, cfg analysis.AnomalyConfig) ([]analysis.Alert, error) {
	return analysis.Anomalies(ctx, p.store, session, cfg)
}

// Snapshot is every aggregate of one session, computed together.
type Snapshot struct {
	Session      string                    `json:"session"`
	Records      int                       `json:"records"`
	IPStats      map[string]models.IPStats `json:"ip_stats"`
	PerSecond    []models.TimeBucket       `json:"packets_per_second"`
	Protocols    map[string]int            `json:"protocols"`
	PacketTypes  map[models.PacketType]int `json:"packet_types"`
	Rate         analysis.RateSummary      `json:"rate"`
	Alerts       []analysis.Alert          `json:"alerts,omitempty"`
	CapturedFrom string                    `json:"captured_from,omitempty"`
}

// Snapshot computes all aggregates for a session. Each one scans the table
// separately, so counts may differ slightly while capture is running.
func (p *Pipeline) Snapshot(ctx context.Context, session string) (*Snapshot, error) {
	snap := &Snapshot{Session: session}
	var err error
	if snap.Records, err = p.store.Count(ctx, session); err != nil {
		return nil, err
	}
	if snap.IPStats, err = p.IPStats(ctx, session); err != nil {
		return nil, err
	}
	if snap.PerSecond, err = p.PacketsPerSecond(ctx, session); err != nil {
		return nil, err
	}
	if snap.Protocols, err = p.ProtocolHistogram(ctx, session); err != nil {
		return nil, err
	}
	if snap.PacketTypes, err = p.PacketTypeHistogram(ctx, session); err != nil {
		return nil, err
	}
	if snap.Rate, err = analysis.Rate(snap.PerSecond); err != nil {
		return nil, err
	}
	if snap.Alerts, err = p.Anomalies(ctx, session, analysis.DefaultAnomalyConfig()); err != nil {
		return nil, err
	}
	if active := p.manager.Active(); active != nil && active.Name == session {
		snap.CapturedFrom = active.Source
	}
	return snap, nil
}

// Close stops any live capture and closes the store.
func (p *Pipeline) Close() error {
	if err := p.manager.StopActive(); err != nil {
		p.log.Warn("Stopping capture: %v", err)
	}
	return p.store.Close()
}
