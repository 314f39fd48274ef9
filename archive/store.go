/*
store.go - Persistence port for agreements and active boxes

PURPOSE:
  Defines the single interface between the archive core and the relational
  store. The business logic is written once against these ports; the
  deployment targets (SQLite, Postgres, in-memory) only differ in adapters
  and connection parameters.

KEY INTERFACES:
  Store:   Reads plus the one single-statement write (insert-if-absent)
  Tx:      Operations that must run inside a transaction
  TxStore: Store + WithTx

ATOMIC INSERT:
  InsertAgreementIfAbsent must be a single atomic "insert if absent" keyed on
  the agreement number (INSERT ... ON CONFLICT DO NOTHING). A separate
  existence check followed by an insert is NOT acceptable: two concurrent
  uploads of the same agreement must produce exactly one row.

ROW LOCKS:
  Tx.LockActiveBox reads a box row and holds a write lock on that row (or on
  the box type key when no row exists yet) until the transaction ends. Locks
  are per box type: allocations for different types never wait on each other.

NOT-FOUND CONVENTION:
  Getters return (nil, nil) when the row does not exist, like the rest of the
  codebase. Tx writes return ErrAgreementNotFound / ErrBoxNotFound.

IMPLEMENTATIONS:
  - archive/store/memory.go: In-memory, for tests and dev
  - store/sqlite/sqlite.go: Embedded SQLite
  - store/postgres/postgres.go: Postgres via pgx

SEE ALSO:
  - sequencer.go, assign.go: The two transactional callers
*/
package archive

import "context"

// =============================================================================
// STORE - Reads and idempotent insert
// =============================================================================

// Store handles persistence of agreements and active boxes.
type Store interface {
	// InsertAgreementIfAbsent creates a Pending agreement unless one with the
	// same number exists. Returns true when a row was created.
	InsertAgreementIfAbsent(ctx context.Context, a Agreement) (bool, error)

	// GetAgreement returns the agreement with this exact number, or nil.
	GetAgreement(ctx context.Context, number string) (*Agreement, error)

	// FindAgreement returns the first agreement whose number contains fragment, or nil.
	FindAgreement(ctx context.Context, fragment string) (*Agreement, error)

	// GetActiveBox returns the active box for a type, or nil.
	GetActiveBox(ctx context.Context, boxType string) (*ActiveBox, error)
}

// =============================================================================
// TRANSACTIONAL STORE - For read-modify-write units of work
// =============================================================================

// Tx is the view of the store inside a transaction.
type Tx interface {
	Store

	// LockActiveBox reads the box for boxType and holds its row lock until
	// the transaction ends. Returns nil when the type has no box yet.
	LockActiveBox(ctx context.Context, boxType string) (*ActiveBox, error)

	// InsertActiveBox creates the first box for a type.
	// Returns ErrSequenceConflict if another transaction created it first.
	InsertActiveBox(ctx context.Context, box ActiveBox) error

	// UpdateActiveBox replaces the box row for box.BoxType, provided its
	// current sequence is still prevSequence. Returns ErrSequenceConflict otherwise.
	UpdateActiveBox(ctx context.Context, box ActiveBox, prevSequence int64) error

	// ArchiveAgreement marks a Pending agreement as Archived in boxName.
	// Returns ErrAgreementNotFound or ErrAgreementArchived when nothing changed.
	ArchiveAgreement(ctx context.Context, number, boxName, dokID string) error

	// IncrementItemCount adds one item to the active box of boxType.
	// Returns ErrBoxNotFound when the type has no box.
	IncrementItemCount(ctx context.Context, boxType string) error
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}
