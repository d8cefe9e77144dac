// Package capture runs the read loop that turns frames from a network
// interface or capture file into stored packet records.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"netscope/internal/decoder"
	"netscope/internal/logger"
	"netscope/internal/models"

	"github.com/google/uuid"
	"gopkg.in/tomb.v2"
)

var (
	// ErrInterfaceNotFound is returned when the named interface does not exist.
	ErrInterfaceNotFound = errors.New("interface not found")
	// ErrChannelOpenFailed is returned when the interface cannot be opened.
	ErrChannelOpenFailed = errors.New("failed to open capture channel")
	// ErrAlreadyRunning is returned when a session is started twice.
	ErrAlreadyRunning = errors.New("session already running")
)

// Recorder is the part of the record store a session writes through.
type Recorder interface {
	CreateSessionTable(ctx context.Context, name string) error
	Insert(ctx context.Context, name string, rec models.PacketRecord) (int64, error)
}

// SessionStats counts what happened to the frames a session read.
type SessionStats struct {
	FramesRead    uint64 `json:"frames_read"`
	RecordsStored uint64 `json:"records_stored"`
	DecodeSkipped uint64 `json:"decode_skipped"`
	DecodeFailed  uint64 `json:"decode_failed"`
	InsertFailed  uint64 `json:"insert_failed"`
}

// Dropped is every frame that was read but did not become a row.
func (s SessionStats) Dropped() uint64 {
	return s.DecodeSkipped + s.DecodeFailed + s.InsertFailed
}

func (s SessionStats) String() string {
	return fmt.Sprintf("read=%d stored=%d skipped=%d malformed=%d insert_failed=%d",
		s.FramesRead, s.RecordsStored, s.DecodeSkipped, s.DecodeFailed, s.InsertFailed)
}

// Session is one run of the capture loop writing into one table. It owns its
// stop signal and goroutine, so several sessions never share state.
type Session struct {
	ID        string
	Name      string
	Source    string
	StartedAt time.Time

	src   FrameSource
	rec   Recorder
	log   *logger.Logger
	poll  time.Duration
	clock func() time.Time

	t       tomb.Tomb
	mu      sync.Mutex
	started bool
	stopped bool

	framesRead    atomic.Uint64
	recordsStored atomic.Uint64
	decodeSkipped atomic.Uint64
	decodeFailed  atomic.Uint64
	insertFailed  atomic.Uint64
}

// NewSession prepares a session that reads src and writes into table name.
// source is a display label such as the interface name or file path.
func NewSession(name, source string, src FrameSource, rec Recorder, poll time.Duration, log *logger.Logger) *Session {
	if poll <= 0 {
		poll = DefaultConfig().PollInterval
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &Session{
		ID:     uuid.NewString(),
		Name:   name,
		Source: source,
		src:    src,
		rec:    rec,
		log:    log,
		poll:   poll,
		clock:  time.Now,
	}
}

// Start creates the session table and launches the read loop. The table must
// exist before any frame is read, so a DDL failure is returned here.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, s.Name)
	}
	if err := s.rec.CreateSessionTable(ctx, s.Name); err != nil {
		return err
	}
	s.started = true
	s.StartedAt = s.clock()
	s.log.Info("Session %s capturing from %s into %s", s.ID, s.Source, s.Name)
	s.t.Go(s.run)
	return nil
}

// Stop signals the loop and waits for it to return. The frame being handled
// when Stop is called is finished first; no row is written afterwards.
func (s *Session) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	first := !s.stopped
	s.stopped = true
	s.mu.Unlock()

	s.t.Kill(nil)
	err := s.t.Wait()
	if first {
		s.log.Info("Session %s stopped: %s", s.Name, s.Stats())
	}
	return err
}

// Running reports whether the loop is still reading.
func (s *Session) Running() bool {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if !started {
		return false
	}
	select {
	case <-s.t.Dead():
		return false
	default:
		return true
	}
}

// Done is closed when the loop has returned, either after Stop or because
// the source was exhausted.
func (s *Session) Done() <-chan struct{} {
	return s.t.Dead()
}

// Stats returns a snapshot of the counters.
func (s *Session) Stats() SessionStats {
	return SessionStats{
		FramesRead:    s.framesRead.Load(),
		RecordsStored: s.recordsStored.Load(),
		DecodeSkipped: s.decodeSkipped.Load(),
		DecodeFailed:  s.decodeFailed.Load(),
		InsertFailed:  s.insertFailed.Load(),
	}
}

func (s *Session) run() error {
	defer s.src.Close()

	for s.t.Alive() {
		data, ci, err := s.src.ReadPacketData()
		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			s.log.Info("Session %s: source %s exhausted", s.Name, s.Source)
			return nil
		case isTimeout(err):
			continue
		default:
			s.log.Debug("Session %s: read error: %v", s.Name, err)
			select {
			case <-s.t.Dying():
			case <-time.After(s.poll):
			}
			continue
		}

		s.framesRead.Add(1)
		ts := ci.Timestamp
		if ts.IsZero() {
			ts = s.clock()
		}
		s.handle(data, ts)
	}
	return nil
}

// handle decodes and stores one frame. Failures are counted and never
// leave the loop.
func (s *Session) handle(data []byte, ts time.Time) {
	rec, frame, err := decoder.DecodeFrame(data, ts)
	if err != nil {
		if errors.Is(err, decoder.ErrUnsupportedEtherType) {
			s.decodeSkipped.Add(1)
			s.log.Debug("Ethernet %s -> %s: unknown EtherType %v, not stored", frame.SrcMAC, frame.DstMAC, frame.EtherType)
		} else {
			s.decodeFailed.Add(1)
			s.log.Debug("Session %s: dropped frame: %v", s.Name, err)
		}
		return
	}
	if s.log.Enabled(logger.Debug) {
		s.log.Debug("Ethernet %s -> %s %v: %s %s -> %s %s",
			frame.SrcMAC, frame.DstMAC, frame.EtherType, rec.PacketType, rec.Source, rec.Destination, rec.ProtocolLabel())
	}

	if _, err := s.rec.Insert(context.Background(), s.Name, rec); err != nil {
		s.insertFailed.Add(1)
		s.log.Warn("Session %s: insert failed: %v", s.Name, err)
		return
	}
	s.recordsStored.Add(1)
}
