/*
Package postgres provides a Postgres-backed implementation of the archive store.

PURPOSE:
  Implements archive.TxStore on Postgres through a pgx connection pool.
  This is the multi-node deployment target: several API replicas share
  one database, so every cross-request guarantee comes from Postgres.

CONCURRENCY:
  - Idempotent insert: INSERT ... ON CONFLICT (agreement_number) DO NOTHING
  - Box allocation: SELECT ... FOR UPDATE on the box row, then an UPDATE
    guarded by the previous sequence. Row locks are per box type, so
    allocations for DOK and LEG never wait on each other.
  - First allocation race: two transactions both see no row and both
    INSERT. The loser gets a unique violation (23505), reported as
    archive.ErrSequenceConflict and retried by the sequencer.
  - Serialization failures (40001) and deadlocks (40P01) are reported the
    same way.

CONNECTION:
  DSN comes from configuration (store.dsn / ARCHIVE_STORE_DSN), e.g.
  postgres://archive:secret@db:5432/archive?sslmode=disable

SEE ALSO:
  - archive/store.go: Interface definitions
  - store/sqlite: Single-node deployment target
*/
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/warp/archive-engine/archive"
)

// Postgres error codes we react to.
const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// Store implements archive.TxStore using a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

// Connect opens a pool for dsn and migrates the schema.
func Connect(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse dsn: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MinConns = 1
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open pool: %w", err)
	}

	s := New(pool)
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// New wraps an existing pool. The schema must already exist.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Ping checks that the database answers.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Migrate creates the schema if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS agreements (
	id BIGSERIAL PRIMARY KEY,
	agreement_number TEXT NOT NULL UNIQUE,
	category TEXT NOT NULL DEFAULT '',
	box_type TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'Pending' CHECK (status IN ('Pending', 'Archived')),
	assigned_box_name TEXT,
	assigned_dok_id TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_agreements_status ON agreements(status);
CREATE INDEX IF NOT EXISTS idx_agreements_box_type ON agreements(box_type);

CREATE TABLE IF NOT EXISTS active_boxes (
	box_type TEXT PRIMARY KEY,
	current_sequence BIGINT NOT NULL CHECK (current_sequence > 0),
	current_box_name TEXT NOT NULL,
	current_dok_id TEXT NOT NULL DEFAULT '',
	item_count BIGINT NOT NULL DEFAULT 0 CHECK (item_count >= 0),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`)
	return err
}

// Truncate empties both tables. Test databases only.
func (s *Store) Truncate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `TRUNCATE agreements, active_boxes RESTART IDENTITY`)
	return err
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// =============================================================================
// READS AND IDEMPOTENT INSERT
// =============================================================================

func (s *Store) InsertAgreementIfAbsent(ctx context.Context, a archive.Agreement) (bool, error) {
	return insertAgreement(ctx, s.pool, a)
}

func (s *Store) GetAgreement(ctx context.Context, number string) (*archive.Agreement, error) {
	return getAgreement(ctx, s.pool, `WHERE agreement_number = $1`, number)
}

func (s *Store) FindAgreement(ctx context.Context, fragment string) (*archive.Agreement, error) {
	return getAgreement(ctx, s.pool, `WHERE agreement_number ILIKE $1 ORDER BY id LIMIT 1`,
		"%"+escapeLike(fragment)+"%")
}

func (s *Store) GetActiveBox(ctx context.Context, boxType string) (*archive.ActiveBox, error) {
	return getActiveBox(ctx, s.pool, boxType, false)
}

func insertAgreement(ctx context.Context, q querier, a archive.Agreement) (bool, error) {
	tag, err := q.Exec(ctx, `
INSERT INTO agreements(agreement_number, category, box_type, status)
VALUES($1, $2, $3, 'Pending')
ON CONFLICT (agreement_number) DO NOTHING
`, a.Number, a.Category, a.BoxType)
	if err != nil {
		return false, fmt.Errorf("failed to insert agreement: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func getAgreement(ctx context.Context, q querier, where string, args ...any) (*archive.Agreement, error) {
	var (
		a       archive.Agreement
		status  string
		boxName *string
		dokID   *string
	)
	err := q.QueryRow(ctx,
		`SELECT agreement_number, category, box_type, status, assigned_box_name, assigned_dok_id FROM agreements `+where,
		args...,
	).Scan(&a.Number, &a.Category, &a.BoxType, &status, &boxName, &dokID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get agreement: %w", err)
	}
	a.Status = archive.Status(status)
	if boxName != nil {
		a.AssignedBoxName = *boxName
	}
	if dokID != nil {
		a.AssignedDokID = *dokID
	}
	return &a, nil
}

func getActiveBox(ctx context.Context, q querier, boxType string, forUpdate bool) (*archive.ActiveBox, error) {
	query := `
SELECT box_type, current_sequence, current_box_name, current_dok_id, item_count
FROM active_boxes WHERE box_type = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var b archive.ActiveBox
	err := q.QueryRow(ctx, query, boxType).Scan(&b.BoxType, &b.Sequence, &b.Name, &b.DokID, &b.ItemCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		if isConflict(err) {
			return nil, fmt.Errorf("%w: %v", archive.ErrSequenceConflict, err)
		}
		return nil, fmt.Errorf("failed to get active box: %w", err)
	}
	return &b, nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a READ COMMITTED transaction.
func (s *Store) WithTx(ctx context.Context, fn func(tx archive.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&txStore{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		if isConflict(err) {
			return fmt.Errorf("%w: %v", archive.ErrSequenceConflict, err)
		}
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type txStore struct {
	tx pgx.Tx
}

func (ts *txStore) InsertAgreementIfAbsent(ctx context.Context, a archive.Agreement) (bool, error) {
	return insertAgreement(ctx, ts.tx, a)
}

func (ts *txStore) GetAgreement(ctx context.Context, number string) (*archive.Agreement, error) {
	return getAgreement(ctx, ts.tx, `WHERE agreement_number = $1`, number)
}

func (ts *txStore) FindAgreement(ctx context.Context, fragment string) (*archive.Agreement, error) {
	return getAgreement(ctx, ts.tx, `WHERE agreement_number ILIKE $1 ORDER BY id LIMIT 1`,
		"%"+escapeLike(fragment)+"%")
}

func (ts *txStore) GetActiveBox(ctx context.Context, boxType string) (*archive.ActiveBox, error) {
	return getActiveBox(ctx, ts.tx, boxType, false)
}

func (ts *txStore) LockActiveBox(ctx context.Context, boxType string) (*archive.ActiveBox, error) {
	return getActiveBox(ctx, ts.tx, boxType, true)
}

func (ts *txStore) InsertActiveBox(ctx context.Context, box archive.ActiveBox) error {
	_, err := ts.tx.Exec(ctx, `
INSERT INTO active_boxes(box_type, current_sequence, current_box_name, current_dok_id, item_count)
VALUES($1, $2, $3, $4, $5)
`, box.BoxType, box.Sequence, box.Name, box.DokID, box.ItemCount)
	if err != nil {
		if isConflict(err) {
			return fmt.Errorf("%w: %v", archive.ErrSequenceConflict, err)
		}
		return fmt.Errorf("failed to insert active box: %w", err)
	}
	return nil
}

func (ts *txStore) UpdateActiveBox(ctx context.Context, box archive.ActiveBox, prevSequence int64) error {
	tag, err := ts.tx.Exec(ctx, `
UPDATE active_boxes
SET current_sequence = $1, current_box_name = $2, current_dok_id = $3, item_count = $4, updated_at = now()
WHERE box_type = $5 AND current_sequence = $6
`, box.Sequence, box.Name, box.DokID, box.ItemCount, box.BoxType, prevSequence)
	if err != nil {
		if isConflict(err) {
			return fmt.Errorf("%w: %v", archive.ErrSequenceConflict, err)
		}
		return fmt.Errorf("failed to update active box: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: box type %q moved past sequence %d", archive.ErrSequenceConflict, box.BoxType, prevSequence)
	}
	return nil
}

func (ts *txStore) ArchiveAgreement(ctx context.Context, number, boxName, dokID string) error {
	tag, err := ts.tx.Exec(ctx, `
UPDATE agreements
SET assigned_box_name = $1, assigned_dok_id = $2, status = 'Archived', updated_at = now()
WHERE agreement_number = $3 AND status = 'Pending'
`, boxName, dokID, number)
	if err != nil {
		return fmt.Errorf("failed to archive agreement: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	existing, err := getAgreement(ctx, ts.tx, `WHERE agreement_number = $1`, number)
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("%w: %q", archive.ErrAgreementNotFound, number)
	}
	return fmt.Errorf("%w: %q is in %s", archive.ErrAgreementArchived, number, existing.AssignedBoxName)
}

func (ts *txStore) IncrementItemCount(ctx context.Context, boxType string) error {
	tag, err := ts.tx.Exec(ctx, `
UPDATE active_boxes SET item_count = item_count + 1, updated_at = now()
WHERE box_type = $1
`, boxType)
	if err != nil {
		return fmt.Errorf("failed to increment item count: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %q", archive.ErrBoxNotFound, boxType)
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func isConflict(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case codeUniqueViolation, codeSerializationFailure, codeDeadlockDetected:
		return true
	}
	return false
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
