// Package store keeps packet records in an embedded SQLite database, one
// append-only table per capture session.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"sync"
	"time"

	"netscope/internal/models"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "modernc.org/sqlite"
)

// TablePrefix starts every session table name.
const TablePrefix = "packet_data_"

const tableTimeLayout = "20060102150405"

var sessionNamePattern = regexp.MustCompile(`^packet_data_[A-Za-z0-9_]{1,64}$`)

var (
	// ErrInvalidSessionName is returned for names that are not session tables.
	ErrInvalidSessionName = errors.New("invalid session name")
	// ErrSessionNotFound is returned when the session table does not exist.
	ErrSessionNotFound = errors.New("session not found")
)

// Config selects the database file.
type Config struct {
	Path        string
	BusyTimeout time.Duration
}

// Filter narrows a scan. Empty fields match everything; a zero Limit means
// no limit.
type Filter struct {
	Protocol    string
	Source      string
	Destination string
	Limit       int
	Offset      int
	// OmitPayload skips the payload columns, which aggregate queries never read.
	OmitPayload bool
}

// Store owns the database handle. Writers and readers share one mutex that
// is held for a single insert or for opening a scan cursor, never longer.
type Store struct {
	mu sync.Mutex
	db *bun.DB
}

// packetRow is the stored form of a record. The table name comes from the
// session, so queries always override it with ModelTableExpr.
type packetRow struct {
	bun.BaseModel `bun:"table:packet_data,alias:p"`

	ID            int64   `bun:"id,pk,autoincrement,type:integer"`
	Timestamp     string  `bun:"timestamp,notnull,type:text"`
	PacketType    string  `bun:"packet_type,notnull,type:text"`
	Source        string  `bun:"source,notnull,type:text"`
	Destination   string  `bun:"destination,notnull,type:text"`
	Protocol      *string `bun:"protocol,type:text"`
	PayloadBase64 string  `bun:"payload_base64,type:text"`
	PayloadHex    string  `bun:"payload_hex,type:text"`
	PayloadRaw    []byte  `bun:"payload_raw,type:blob"`
	PayloadString string  `bun:"payload_string,type:text"`
}

var summaryColumns = []string{"id", "timestamp", "packet_type", "source", "destination", "protocol"}

// SessionTableName names the table for a session started at t.
func SessionTableName(t time.Time) string {
	return TablePrefix + t.UTC().Format(tableTimeLayout)
}

// ReplayTableName names the n-th replay table for a file replayed at t.
// The suffix keeps replays out of live session tables started in the same
// second.
func ReplayTableName(t time.Time, n int) string {
	name := SessionTableName(t) + "_replay"
	if n > 1 {
		name += strconv.Itoa(n)
	}
	return name
}

// ValidateSessionName rejects anything that is not a session table name.
func ValidateSessionName(name string) error {
	if !sessionNamePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidSessionName, name)
	}
	return nil
}

// Open opens or creates the database at cfg.Path.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, errors.New("store path is empty")
	}
	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)", cfg.Path, busy.Milliseconds())

	sqldb, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", cfg.Path, err)
	}
	db := bun.NewDB(sqldb, sqlitedialect.New())
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open database %s: %w", cfg.Path, err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateSessionTable creates the session table if it does not exist yet.
func (s *Store) CreateSessionTable(ctx context.Context, name string) error {
	if err := ValidateSessionName(name); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.NewCreateTable().
		Model((*packetRow)(nil)).
		ModelTableExpr("?", bun.Ident(name)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create table %s: %w", name, err)
	}
	return nil
}

// Insert appends one record and returns its row id.
func (s *Store) Insert(ctx context.Context, name string, rec models.PacketRecord) (int64, error) {
	if err := ValidateSessionName(name); err != nil {
		return 0, err
	}
	row := toRow(rec)

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.NewInsert().
		Model(&row).
		ModelTableExpr("?", bun.Ident(name)).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to insert into %s: %w", name, err)
	}
	return row.ID, nil
}

// ListSessions returns every session table. Order is not guaranteed.
func (s *Store) ListSessions(ctx context.Context) ([]string, error) {
	var tables []string

	s.mu.Lock()
	err := s.db.NewSelect().
		TableExpr("sqlite_master").
		Column("name").
		Where("type = ?", "table").
		Scan(ctx, &tables)
	s.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	sessions := make([]string, 0, len(tables))
	for _, name := range tables {
		if ValidateSessionName(name) == nil {
			sessions = append(sessions, name)
		}
	}
	return sessions, nil
}

// SessionExists reports whether the session table is present.
func (s *Store) SessionExists(ctx context.Context, name string) (bool, error) {
	if err := ValidateSessionName(name); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	exists, err := s.db.NewSelect().
		TableExpr("sqlite_master").
		Where("type = ?", "table").
		Where("name = ?", name).
		Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to look up session %s: %w", name, err)
	}
	return exists, nil
}

// Count returns the number of rows in the session table.
func (s *Store) Count(ctx context.Context, name string) (int, error) {
	if err := s.requireSession(ctx, name); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := s.db.NewSelect().
		Model((*packetRow)(nil)).
		ModelTableExpr("? AS p", bun.Ident(name)).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", name, err)
	}
	return n, nil
}

// Scan calls fn for every row matching f, in insertion order. Only rows
// committed before the query starts are seen. Returning an error from fn
// stops the scan with that error.
func (s *Store) Scan(ctx context.Context, name string, f Filter, fn func(models.PacketRecord) error) error {
	if err := s.requireSession(ctx, name); err != nil {
		return err
	}

	q := s.db.NewSelect().
		Model((*packetRow)(nil)).
		ModelTableExpr("? AS p", bun.Ident(name)).
		OrderExpr("p.id ASC")
	if f.OmitPayload {
		q = q.Column(summaryColumns...)
	}
	if f.Protocol != "" {
		q = q.Where("p.protocol = ?", f.Protocol)
	}
	if f.Source != "" {
		q = q.Where("p.source = ?", f.Source)
	}
	if f.Destination != "" {
		q = q.Where("p.destination = ?", f.Destination)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if f.Offset > 0 {
		if f.Limit <= 0 {
			q = q.Limit(-1)
		}
		q = q.Offset(f.Offset)
	}

	s.mu.Lock()
	rows, err := q.Rows(ctx)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to scan %s: %w", name, err)
	}
	defer rows.Close()

	for rows.Next() {
		var row packetRow
		if err := s.db.ScanRow(ctx, rows, &row); err != nil {
			return fmt.Errorf("failed to read row from %s: %w", name, err)
		}
		rec, err := fromRow(row)
		if err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to scan %s: %w", name, err)
	}
	return nil
}

// FetchRecords collects the rows matching f.
func (s *Store) FetchRecords(ctx context.Context, name string, f Filter) ([]models.PacketRecord, error) {
	var records []models.PacketRecord
	err := s.Scan(ctx, name, f, func(rec models.PacketRecord) error {
		records = append(records, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (s *Store) requireSession(ctx context.Context, name string) error {
	exists, err := s.SessionExists(ctx, name)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, name)
	}
	return nil
}

func toRow(rec models.PacketRecord) packetRow {
	return packetRow{
		Timestamp:     rec.FormatTimestamp(),
		PacketType:    string(rec.PacketType),
		Source:        rec.Source,
		Destination:   rec.Destination,
		Protocol:      rec.Protocol,
		PayloadBase64: rec.Payload.Base64,
		PayloadHex:    rec.Payload.Hex,
		PayloadRaw:    rec.Payload.Raw,
		PayloadString: rec.Payload.Text,
	}
}

func fromRow(row packetRow) (models.PacketRecord, error) {
	ts, err := models.ParseTimestamp(row.Timestamp)
	if err != nil {
		return models.PacketRecord{}, fmt.Errorf("row %d: %w", row.ID, err)
	}
	return models.PacketRecord{
		ID:          row.ID,
		Timestamp:   ts,
		PacketType:  models.PacketType(row.PacketType),
		Source:      row.Source,
		Destination: row.Destination,
		Protocol:    row.Protocol,
		Payload: models.Payload{
			Raw:    row.PayloadRaw,
			Base64: row.PayloadBase64,
			Hex:    row.PayloadHex,
			Text:   row.PayloadString,
		},
	}, nil
}
