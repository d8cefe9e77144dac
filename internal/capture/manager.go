package capture

import (
	"context"
	"fmt"
	"sync"
	"time"

	"netscope/internal/discovery"
	"netscope/internal/logger"
	"netscope/internal/store"
)

// Manager keeps at most one live capture session. Starting while a session
// is running returns that session instead of opening a second one.
type Manager struct {
	rec Recorder
	cfg Config
	log *logger.Logger

	open       Opener
	interfaces func() ([]string, error)
	now        func() time.Time

	mu     sync.Mutex
	active *Session
}

// NewManager creates a manager writing through rec.
func NewManager(rec Recorder, cfg Config, log *logger.Logger) *Manager {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Manager{
		rec:        rec,
		cfg:        cfg.withDefaults(),
		log:        log,
		open:       OpenLive,
		interfaces: discovery.Names,
		now:        time.Now,
	}
}

// Start opens iface and begins capturing into a new session table.
func (m *Manager) Start(ctx context.Context, iface string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil && m.active.Running() {
		m.log.Info("Capture already running on %s into %s", m.active.Source, m.active.Name)
		return m.active, nil
	}

	names, err := m.interfaces()
	if err != nil {
		return nil, fmt.Errorf("%w: listing interfaces: %v", ErrChannelOpenFailed, err)
	}
	found := false
	for _, name := range names {
		if name == iface {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: %q", ErrInterfaceNotFound, iface)
	}

	src, err := m.open(iface, m.cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrChannelOpenFailed, iface, err)
	}

	s := NewSession(store.SessionTableName(m.now()), iface, src, m.rec, m.cfg.PollInterval, m.log)
	if err := s.Start(ctx); err != nil {
		src.Close()
		return nil, err
	}
	m.active = s
	return s, nil
}

// Stop stops s and clears it as the active session.
func (m *Manager) Stop(s *Session) error {
	if s == nil {
		return nil
	}
	err := s.Stop()

	m.mu.Lock()
	if m.active == s {
		m.active = nil
	}
	m.mu.Unlock()
	return err
}

// Active returns the running session, or nil.
func (m *Manager) Active() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active != nil && !m.active.Running() {
		return nil
	}
	return m.active
}

// StopActive stops the running session, if there is one.
func (m *Manager) StopActive() error {
	return m.Stop(m.Active())
}
