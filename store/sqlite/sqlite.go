/*
Package sqlite provides a SQLite-backed implementation of the archive store.

PURPOSE:
  Implements archive.TxStore on an embedded SQLite database. This is the
  single-node deployment target: the local operator workstation and the
  demo server.

KEY TABLES:
  agreements:    One row per agreement number (UNIQUE)
  active_boxes:  One row per box type (PRIMARY KEY)

IDEMPOTENT INSERT:
  INSERT ... ON CONFLICT(agreement_number) DO NOTHING. RowsAffected tells
  us whether this call created the row. No check-then-insert.

CONCURRENCY:
  SQLite has one writer at a time. Transactions are opened with
  _txlock=immediate, so a transaction takes the write lock on BEGIN and
  the read-modify-write of a box is serialized by the engine itself.
  The pool is capped at one connection: ":memory:" databases are
  per-connection, and a single writer gains nothing from more.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging):
  - Readers don't block the writer
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/archive.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := archive.NewEngine(store, archive.DefaultOptions(), logger)

SEE ALSO:
  - archive/store.go: Interface definitions
  - archive/store/memory.go: In-memory implementation for testing
  - store/postgres: Multi-node deployment target
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/warp/archive-engine/archive"
)

// Store implements archive.TxStore using SQLite.
type Store struct {
	db *sql.DB
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	dsn := dbPath + "?_foreign_keys=on&_journal_mode=WAL&_txlock=immediate&_busy_timeout=5000"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks that the database answers.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS agreements (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		agreement_number TEXT NOT NULL UNIQUE,
		category TEXT NOT NULL DEFAULT '',
		box_type TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'Pending' CHECK (status IN ('Pending', 'Archived')),
		assigned_box_name TEXT,
		assigned_dok_id TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_agreements_status
		ON agreements(status);
	CREATE INDEX IF NOT EXISTS idx_agreements_box_type
		ON agreements(box_type);

	CREATE TABLE IF NOT EXISTS active_boxes (
		box_type TEXT PRIMARY KEY,
		current_sequence INTEGER NOT NULL CHECK (current_sequence > 0),
		current_box_name TEXT NOT NULL,
		current_dok_id TEXT NOT NULL DEFAULT '',
		item_count INTEGER NOT NULL DEFAULT 0 CHECK (item_count >= 0),
		updated_at TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// AGREEMENTS (archive.Store interface)
// =============================================================================

// InsertAgreementIfAbsent creates a Pending agreement unless the number exists.
func (s *Store) InsertAgreementIfAbsent(ctx context.Context, a archive.Agreement) (bool, error) {
	return insertAgreement(ctx, s.db, a)
}

func insertAgreement(ctx context.Context, db execer, a archive.Agreement) (bool, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := db.ExecContext(ctx, `
		INSERT INTO agreements (agreement_number, category, box_type, status, created_at, updated_at)
		VALUES (?, ?, ?, 'Pending', ?, ?)
		ON CONFLICT(agreement_number) DO NOTHING
	`, a.Number, a.Category, a.BoxType, now, now)
	if err != nil {
		return false, fmt.Errorf("failed to insert agreement: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// GetAgreement retrieves an agreement by number.
func (s *Store) GetAgreement(ctx context.Context, number string) (*archive.Agreement, error) {
	return getAgreement(ctx, s.db, "WHERE agreement_number = ?", number)
}

// FindAgreement returns the oldest agreement whose number contains fragment.
func (s *Store) FindAgreement(ctx context.Context, fragment string) (*archive.Agreement, error) {
	return getAgreement(ctx, s.db, `WHERE agreement_number LIKE ? ESCAPE '\' ORDER BY id LIMIT 1`,
		"%"+escapeLike(fragment)+"%")
}

func getAgreement(ctx context.Context, db execer, where string, args ...any) (*archive.Agreement, error) {
	var (
		a       archive.Agreement
		status  string
		boxName sql.NullString
		dokID   sql.NullString
	)
	err := db.QueryRowContext(ctx,
		"SELECT agreement_number, category, box_type, status, assigned_box_name, assigned_dok_id FROM agreements "+where,
		args...,
	).Scan(&a.Number, &a.Category, &a.BoxType, &status, &boxName, &dokID)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get agreement: %w", err)
	}

	a.Status = archive.Status(status)
	a.AssignedBoxName = boxName.String
	a.AssignedDokID = dokID.String
	return &a, nil
}

// =============================================================================
// ACTIVE BOXES
// =============================================================================

// GetActiveBox retrieves the open box for a type.
func (s *Store) GetActiveBox(ctx context.Context, boxType string) (*archive.ActiveBox, error) {
	return getActiveBox(ctx, s.db, boxType)
}

func getActiveBox(ctx context.Context, db execer, boxType string) (*archive.ActiveBox, error) {
	var b archive.ActiveBox
	err := db.QueryRowContext(ctx, `
		SELECT box_type, current_sequence, current_box_name, current_dok_id, item_count
		FROM active_boxes WHERE box_type = ?
	`, boxType).Scan(&b.BoxType, &b.Sequence, &b.Name, &b.DokID, &b.ItemCount)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active box: %w", err)
	}
	return &b, nil
}

// =============================================================================
// TRANSACTIONAL STORE (archive.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(tx archive.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) InsertAgreementIfAbsent(ctx context.Context, a archive.Agreement) (bool, error) {
	return insertAgreement(ctx, ts.tx, a)
}

func (ts *txStore) GetAgreement(ctx context.Context, number string) (*archive.Agreement, error) {
	return getAgreement(ctx, ts.tx, "WHERE agreement_number = ?", number)
}

func (ts *txStore) FindAgreement(ctx context.Context, fragment string) (*archive.Agreement, error) {
	return getAgreement(ctx, ts.tx, `WHERE agreement_number LIKE ? ESCAPE '\' ORDER BY id LIMIT 1`,
		"%"+escapeLike(fragment)+"%")
}

func (ts *txStore) GetActiveBox(ctx context.Context, boxType string) (*archive.ActiveBox, error) {
	return getActiveBox(ctx, ts.tx, boxType)
}

// LockActiveBox reads the box. The immediate transaction already holds the
// database write lock, so no other writer can interleave.
func (ts *txStore) LockActiveBox(ctx context.Context, boxType string) (*archive.ActiveBox, error) {
	return getActiveBox(ctx, ts.tx, boxType)
}

func (ts *txStore) InsertActiveBox(ctx context.Context, box archive.ActiveBox) error {
	_, err := ts.tx.ExecContext(ctx, `
		INSERT INTO active_boxes (box_type, current_sequence, current_box_name, current_dok_id, item_count, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, box.BoxType, box.Sequence, box.Name, box.DokID, box.ItemCount, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		if isConflict(err) {
			return fmt.Errorf("%w: %v", archive.ErrSequenceConflict, err)
		}
		return fmt.Errorf("failed to insert active box: %w", err)
	}
	return nil
}

func (ts *txStore) UpdateActiveBox(ctx context.Context, box archive.ActiveBox, prevSequence int64) error {
	res, err := ts.tx.ExecContext(ctx, `
		UPDATE active_boxes
		SET current_sequence = ?,
		    current_box_name = ?,
		    current_dok_id   = ?,
		    item_count       = ?,
		    updated_at       = ?
		WHERE box_type = ? AND current_sequence = ?
	`, box.Sequence, box.Name, box.DokID, box.ItemCount, time.Now().UTC().Format(time.RFC3339),
		box.BoxType, prevSequence)
	if err != nil {
		if isConflict(err) {
			return fmt.Errorf("%w: %v", archive.ErrSequenceConflict, err)
		}
		return fmt.Errorf("failed to update active box: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: box type %q moved past sequence %d", archive.ErrSequenceConflict, box.BoxType, prevSequence)
	}
	return nil
}

func (ts *txStore) ArchiveAgreement(ctx context.Context, number, boxName, dokID string) error {
	res, err := ts.tx.ExecContext(ctx, `
		UPDATE agreements
		SET assigned_box_name = ?,
		    assigned_dok_id   = ?,
		    status            = 'Archived',
		    updated_at        = ?
		WHERE agreement_number = ? AND status = 'Pending'
	`, boxName, dokID, time.Now().UTC().Format(time.RFC3339), number)
	if err != nil {
		return fmt.Errorf("failed to archive agreement: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	existing, err := getAgreement(ctx, ts.tx, "WHERE agreement_number = ?", number)
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("%w: %q", archive.ErrAgreementNotFound, number)
	}
	return fmt.Errorf("%w: %q is in %s", archive.ErrAgreementArchived, number, existing.AssignedBoxName)
}

func (ts *txStore) IncrementItemCount(ctx context.Context, boxType string) error {
	res, err := ts.tx.ExecContext(ctx, `
		UPDATE active_boxes
		SET item_count = item_count + 1,
		    updated_at = ?
		WHERE box_type = ?
	`, time.Now().UTC().Format(time.RFC3339), boxType)
	if err != nil {
		return fmt.Errorf("failed to increment item count: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %q", archive.ErrBoxNotFound, boxType)
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

// isConflict reports errors caused by a concurrent writer on the same box type.
func isConflict(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
		se.ExtendedCode == sqlite3.ErrConstraintUnique ||
		se.Code == sqlite3.ErrBusy ||
		se.Code == sqlite3.ErrLocked
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
