// Package pool hands out dedicated database sessions over database/sql.
// Each session pins one driver connection, which embedded engines require:
// session-scoped state (attached catalogs, search path) must stay on the
// handle that subsequent statements run on, and the handle itself is never
// shared across goroutines.
package pool

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"

	_ "github.com/mattn/go-sqlite3"
)

// Config holds configuration for a session pool.
type Config struct {
	// Driver is the database/sql driver name ("duckdb" or "sqlite3").
	Driver string

	// DSN is the driver-specific data source name, usually a file path.
	DSN string

	// MaxSessions is the maximum number of concurrently open sessions
	// (default: 10). Streaming queries clone a session, so size this at
	// roughly twice the expected query concurrency.
	MaxSessions int

	// MaxIdleSessions is the number of idle driver connections kept open
	// (default: 2).
	MaxIdleSessions int

	// SessionMaxLifetime bounds how long a driver connection is reused
	// (default: 30 minutes).
	SessionMaxLifetime time.Duration

	// MaxConcurrentStreams caps the number of streaming query workers that
	// may be live at once across the pool (default: 8). Zero or negative
	// disables the cap.
	MaxConcurrentStreams int64
}

// DefaultConfig returns the default pool configuration for the given driver
// and data source.
func DefaultConfig(driver, dsn string) Config {
	return Config{
		Driver:               driver,
		DSN:                  dsn,
		MaxSessions:          10,
		MaxIdleSessions:      2,
		SessionMaxLifetime:   30 * time.Minute,
		MaxConcurrentStreams: 8,
	}
}

// Pool hands out Sessions against one database.
type Pool struct {
	db      *sql.DB
	streams *semaphore.Weighted
}

// New opens a session pool for the given configuration.
func New(cfg Config) (*Pool, error) {
	if cfg.Driver == "" {
		return nil, fmt.Errorf("pool: driver is required")
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = 10
	}
	if cfg.MaxIdleSessions <= 0 {
		cfg.MaxIdleSessions = 2
	}
	if cfg.SessionMaxLifetime <= 0 {
		cfg.SessionMaxLifetime = 30 * time.Minute
	}

	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("pool: failed to open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxSessions)
	db.SetMaxIdleConns(cfg.MaxIdleSessions)
	db.SetConnMaxLifetime(cfg.SessionMaxLifetime)

	var streams *semaphore.Weighted
	if cfg.MaxConcurrentStreams > 0 {
		streams = semaphore.NewWeighted(cfg.MaxConcurrentStreams)
	}

	return &Pool{db: db, streams: streams}, nil
}

// Acquire checks out a dedicated session. The caller owns it until Close.
func (p *Pool) Acquire(ctx context.Context) (*Session, error) {
	conn, err := p.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("pool: failed to acquire session: %w", err)
	}
	return &Session{db: p.db, conn: conn, streams: p.streams}, nil
}

// Close shuts the pool down. Outstanding sessions keep working until they
// are closed.
func (p *Pool) Close() error {
	return p.db.Close()
}

// Session is a checked-out database session pinned to one driver
// connection. It is exclusively owned by one goroutine at a time.
type Session struct {
	db      *sql.DB
	conn    *sql.Conn
	streams *semaphore.Weighted
}

// Raw exposes the pinned connection for statement execution.
func (s *Session) Raw() *sql.Conn {
	return s.conn
}

// Clone opens a second, independent session against the same database.
// Session-scoped state (attachments, search path) does not carry over; the
// clone starts from engine defaults.
func (s *Session) Clone(ctx context.Context) (*Session, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("pool: failed to clone session: %w", err)
	}
	return &Session{db: s.db, conn: conn, streams: s.streams}, nil
}

// AcquireStreamSlot blocks until a streaming-worker slot is available and
// returns a release function. When the pool has no stream cap, the slot is
// granted immediately.
func (s *Session) AcquireStreamSlot(ctx context.Context) (func(), error) {
	if s.streams == nil {
		return func() {}, nil
	}
	if err := s.streams.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("pool: failed to acquire stream slot: %w", err)
	}
	return func() { s.streams.Release(1) }, nil
}

// Close returns the session's driver connection to the pool.
func (s *Session) Close() error {
	return s.conn.Close()
}

// Discard closes the session and drops the underlying driver connection
// instead of returning it to the pool. Used when session-scoped state could
// not be restored (e.g. a streaming clone cancelled mid-execution): a
// poisoned connection must never serve an unrelated query.
func (s *Session) Discard() error {
	_ = s.conn.Raw(func(interface{}) error {
		return driver.ErrBadConn
	})
	// Raw returning driver.ErrBadConn already closed the sql.Conn, so the
	// explicit Close normally reports ErrConnDone; that is the success path.
	if err := s.conn.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
		return err
	}
	return nil
}
