// Package store implements the durable, transactional persistence layer
// described in spec.md §3 and §4.1: projects, products, agents, messages,
// file reservations, build slot leases, contacts, and a synchronously
// maintained full-text index.
//
// Concurrency follows spec.md §5: single writer per database, parallel
// readers. Writers serialize through a capacity-1 semaphore (grounded on
// the teacher's scheduler.Semaphore) while SQLite's WAL journal mode lets
// readers observe the last committed snapshot without blocking on writers.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/agentmail/agentmaild/internal/scheduler"
	_ "modernc.org/sqlite"
)

// ErrKind is the closed set of error categories surfaced to dispatcher
// callers (spec.md §7).
type ErrKind string

const (
	ErrInvalidArgument ErrKind = "InvalidArgument"
	ErrNotFound        ErrKind = "NotFound"
	ErrContactPolicy   ErrKind = "ContactPolicy"
	ErrHolderActive    ErrKind = "HolderActive"
	ErrInternal        ErrKind = "Internal"
)

// Error wraps a store-level failure with its kind so the dispatcher can
// decide how to propagate it (isError text vs. transport-level failure).
type Error struct {
	Kind    ErrKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError constructs a typed store error.
func NewError(kind ErrKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Store is the shared handle every component executes transactions
// through. It owns the single *sql.DB connection, the write semaphore,
// and the logger threaded through every component (spec.md §9 "global
// state is confined to the store handle").
type Store struct {
	db       *sql.DB
	writeSem *scheduler.Semaphore // capacity-1; enforces spec.md §5's single-writer rule
	lock     *scheduler.FileLock  // guards against two processes opening the same dsn
	log      *slog.Logger
}

// Open opens (creating if necessary) the SQLite database at dsn, applies
// the schema and any pending migrations, and rebuilds the FTS index
// explicitly — this server never relies on implicit index maintenance
// (spec.md §9: "frankensqlite doesn't update indexes properly").
//
// A file lock alongside the database guards against a second process
// pointing at the same dsn (spec.md §5: single writer per database); an
// in-memory dsn (":memory:" or "file::memory:") has nothing to lock and
// skips this step.
func Open(dsn string, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}

	var lock *scheduler.FileLock
	if !isMemoryDSN(dsn) {
		lock = scheduler.NewFileLock(dsn + ".lock")
		acquired, err := lock.TryLock()
		if err != nil {
			return nil, fmt.Errorf("acquire store lock: %w", err)
		}
		if !acquired {
			return nil, fmt.Errorf("store at %s is already open by another process", dsn)
		}
	}

	db, err := sql.Open("sqlite", dsn+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)")
	if err != nil {
		if lock != nil {
			_ = lock.Unlock()
		}
		return nil, fmt.Errorf("open store: %w", err)
	}
	// A single writer per database (spec.md §4.1); readers use the same
	// pool but never contend on the write semaphore below.
	db.SetMaxOpenConns(8)

	s := &Store{db: db, writeSem: scheduler.NewSemaphore(1), lock: lock, log: log}
	if err := s.applyMigrations(); err != nil {
		db.Close()
		if lock != nil {
			_ = lock.Unlock()
		}
		return nil, err
	}
	return s, nil
}

func isMemoryDSN(dsn string) bool {
	return strings.Contains(dsn, ":memory:")
}

// Close releases the underlying connection pool and the store lock.
func (s *Store) Close() error {
	err := s.db.Close()
	if s.lock != nil {
		if unlockErr := s.lock.Unlock(); unlockErr != nil && err == nil {
			err = unlockErr
		}
	}
	return err
}

// applyMigrations runs the baseline schema (idempotent) followed by any
// ledgered migrations not yet applied, then reindexes FTS.
func (s *Store) applyMigrations() error {
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	for i, stmt := range migrations {
		version := i + 2 // v1 is the baseline schema
		var applied int
		err := s.db.QueryRow(`SELECT COUNT(1) FROM schema_migrations WHERE version = ?`, version).Scan(&applied)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", version, err)
		}
		if applied > 0 {
			continue
		}
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("apply migration %d: %w", version, err)
		}
		if _, err := s.db.Exec(`INSERT INTO schema_migrations (version, applied_ts) VALUES (?, ?)`, version, time.Now().UnixMicro()); err != nil {
			return fmt.Errorf("record migration %d: %w", version, err)
		}
	}
	// messages_fts is contentless, so it is cleared and repopulated instead of using 'rebuild'.
	ftsTx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin fts rebuild: %w", err)
	}
	if _, err := ftsTx.Exec(`INSERT INTO messages_fts(messages_fts) VALUES('delete-all');
		INSERT INTO messages_fts (rowid, subject, body_md, from_agent_name, recipient_agent_names)
		SELECT m.id, m.subject, m.body_md, a.name, COALESCE((SELECT group_concat(ra.name, ' ') FROM message_recipients mr
			JOIN agents ra ON ra.id = mr.agent_id WHERE mr.message_id = m.id), '')
		FROM messages m JOIN agents a ON a.id = m.from_agent_id`); err != nil {
		_ = ftsTx.Rollback()
		s.log.Warn("fts rebuild failed", "error", err)
		return nil
	}
	return ftsTx.Commit()
}

// Tx is the transaction handle passed to every component operation. now is
// sampled once per transaction (spec.md §4.1) and reused for every *_ts
// field written within it.
type Tx struct {
	tx  *sql.Tx
	now int64
}

func (t *Tx) Now() int64 { return t.now }

// Raw exposes the underlying *sql.Tx for entity accessors in this package
// and its siblings (messaging, reservations, ...).
func (t *Tx) Raw() *sql.Tx { return t.tx }

// WithWrite executes fn inside a single read-write transaction, serialized
// against every other writer on this Store (spec.md §5). now() is sampled
// once on entry.
func (s *Store) WithWrite(ctx context.Context, fn func(*Tx) error) error {
	if err := s.writeSem.Acquire(ctx); err != nil {
		return err
	}
	defer s.writeSem.Release()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin write tx: %w", err)
	}
	t := &Tx{tx: sqlTx, now: time.Now().UnixMicro()}
	if err := fn(t); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit write tx: %w", err)
	}
	return nil
}

// WithRead executes fn inside a read-only transaction. Concurrent readers
// are never blocked by WithWrite callers on unrelated projects; SQLite's
// WAL mode gives every reader a consistent snapshot of the last commit.
func (s *Store) WithRead(ctx context.Context, fn func(*Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return fmt.Errorf("begin read tx: %w", err)
	}
	t := &Tx{tx: sqlTx, now: time.Now().UnixMicro()}
	err = fn(t)
	_ = sqlTx.Rollback() // read-only; always safe to roll back
	return err
}
