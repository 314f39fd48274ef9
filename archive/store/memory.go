// Package store provides Store implementations.
package store

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/warp/archive-engine/archive"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory keeps agreements and boxes in maps. Reads fail once ctx is done,
// like the database stores.
//
// Writes only happen inside WithTx. A transaction takes per-key locks
// ("agreement:<n>", "box:<type>") as it touches rows, stages its writes, and
// applies them under the map lock on commit. Transactions on different keys
// run concurrently; on the same key they queue.
type Memory struct {
	mu         sync.RWMutex
	agreements map[string]archive.Agreement
	order      []string // insertion order, for FindAgreement
	boxes      map[string]archive.ActiveBox

	locks *keyLocks
}

func NewMemory() *Memory {
	return &Memory{
		agreements: make(map[string]archive.Agreement),
		boxes:      make(map[string]archive.ActiveBox),
		locks:      &keyLocks{m: make(map[string]*keyLock)},
	}
}

// InsertAgreementIfAbsent inserts in its own transaction.
func (m *Memory) InsertAgreementIfAbsent(ctx context.Context, a archive.Agreement) (bool, error) {
	var inserted bool
	err := m.WithTx(ctx, func(tx archive.Tx) error {
		var err error
		inserted, err = tx.InsertAgreementIfAbsent(ctx, a)
		return err
	})
	return inserted, err
}

func (m *Memory) GetAgreement(ctx context.Context, number string) (*archive.Agreement, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if a, ok := m.agreements[number]; ok {
		return &a, nil
	}
	return nil, nil
}

func (m *Memory) FindAgreement(ctx context.Context, fragment string) (*archive.Agreement, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, n := range m.order {
		if containsFold(n, fragment) {
			a := m.agreements[n]
			return &a, nil
		}
	}
	return nil, nil
}

func (m *Memory) GetActiveBox(ctx context.Context, boxType string) (*archive.ActiveBox, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if b, ok := m.boxes[boxType]; ok {
		return &b, nil
	}
	return nil, nil
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a transaction.
// Staged writes are applied only if fn returns nil.
func (m *Memory) WithTx(ctx context.Context, fn func(archive.Tx) error) error {
	tx := &memoryTx{
		parent:     m,
		held:       make(map[string]bool),
		agreements: make(map[string]archive.Agreement),
		boxes:      make(map[string]archive.ActiveBox),
	}
	defer tx.release()

	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range tx.inserted {
		m.order = append(m.order, n)
	}
	for n, a := range tx.agreements {
		m.agreements[n] = a
	}
	for t, b := range tx.boxes {
		m.boxes[t] = b
	}
	return nil
}

type memoryTx struct {
	parent *Memory
	held   map[string]bool

	// staged writes
	agreements map[string]archive.Agreement
	boxes      map[string]archive.ActiveBox
	inserted   []string
}

func (tx *memoryTx) acquire(ctx context.Context, key string) error {
	if tx.held[key] {
		return nil
	}
	if err := tx.parent.locks.lock(ctx, key); err != nil {
		return err
	}
	tx.held[key] = true
	return nil
}

func (tx *memoryTx) release() {
	for key := range tx.held {
		tx.parent.locks.unlock(key)
	}
}

func (tx *memoryTx) InsertAgreementIfAbsent(ctx context.Context, a archive.Agreement) (bool, error) {
	if err := tx.acquire(ctx, "agreement:"+a.Number); err != nil {
		return false, err
	}
	existing, err := tx.GetAgreement(ctx, a.Number)
	if err != nil {
		return false, err
	}
	if existing != nil {
		return false, nil
	}
	a.Status = archive.StatusPending
	a.AssignedBoxName = ""
	a.AssignedDokID = ""
	tx.agreements[a.Number] = a
	tx.inserted = append(tx.inserted, a.Number)
	return true, nil
}

func (tx *memoryTx) GetAgreement(ctx context.Context, number string) (*archive.Agreement, error) {
	if a, ok := tx.agreements[number]; ok {
		return &a, nil
	}
	return tx.parent.GetAgreement(ctx, number)
}

func (tx *memoryTx) FindAgreement(ctx context.Context, fragment string) (*archive.Agreement, error) {
	a, err := tx.parent.FindAgreement(ctx, fragment)
	if err != nil || a != nil {
		return a, err
	}
	for _, n := range tx.inserted {
		if containsFold(n, fragment) {
			staged := tx.agreements[n]
			return &staged, nil
		}
	}
	return nil, nil
}

func (tx *memoryTx) GetActiveBox(ctx context.Context, boxType string) (*archive.ActiveBox, error) {
	if b, ok := tx.boxes[boxType]; ok {
		return &b, nil
	}
	return tx.parent.GetActiveBox(ctx, boxType)
}

func (tx *memoryTx) LockActiveBox(ctx context.Context, boxType string) (*archive.ActiveBox, error) {
	if err := tx.acquire(ctx, "box:"+boxType); err != nil {
		return nil, err
	}
	return tx.GetActiveBox(ctx, boxType)
}

func (tx *memoryTx) InsertActiveBox(ctx context.Context, box archive.ActiveBox) error {
	current, err := tx.LockActiveBox(ctx, box.BoxType)
	if err != nil {
		return err
	}
	if current != nil {
		return fmt.Errorf("%w: box type %q already has a box", archive.ErrSequenceConflict, box.BoxType)
	}
	tx.boxes[box.BoxType] = box
	return nil
}

func (tx *memoryTx) UpdateActiveBox(ctx context.Context, box archive.ActiveBox, prevSequence int64) error {
	current, err := tx.LockActiveBox(ctx, box.BoxType)
	if err != nil {
		return err
	}
	if current == nil || current.Sequence != prevSequence {
		return fmt.Errorf("%w: box type %q moved past sequence %d", archive.ErrSequenceConflict, box.BoxType, prevSequence)
	}
	tx.boxes[box.BoxType] = box
	return nil
}

func (tx *memoryTx) ArchiveAgreement(ctx context.Context, number, boxName, dokID string) error {
	if err := tx.acquire(ctx, "agreement:"+number); err != nil {
		return err
	}
	a, err := tx.GetAgreement(ctx, number)
	if err != nil {
		return err
	}
	if a == nil {
		return fmt.Errorf("%w: %q", archive.ErrAgreementNotFound, number)
	}
	if a.IsArchived() {
		return fmt.Errorf("%w: %q is in %s", archive.ErrAgreementArchived, number, a.AssignedBoxName)
	}
	a.Status = archive.StatusArchived
	a.AssignedBoxName = boxName
	a.AssignedDokID = dokID
	tx.agreements[number] = *a
	return nil
}

func (tx *memoryTx) IncrementItemCount(ctx context.Context, boxType string) error {
	b, err := tx.LockActiveBox(ctx, boxType)
	if err != nil {
		return err
	}
	if b == nil {
		return fmt.Errorf("%w: %q", archive.ErrBoxNotFound, boxType)
	}
	b.ItemCount++
	tx.boxes[boxType] = *b
	return nil
}

// =============================================================================
// KEY LOCKS
// =============================================================================

// keyLocks is a set of mutexes created on demand, one per key.
// Acquisition honors context cancellation.
type keyLocks struct {
	mu sync.Mutex
	m  map[string]*keyLock
}

type keyLock struct {
	sem  chan struct{}
	refs int
}

func (k *keyLocks) lock(ctx context.Context, key string) error {
	k.mu.Lock()
	l, ok := k.m[key]
	if !ok {
		l = &keyLock{sem: make(chan struct{}, 1)}
		k.m[key] = l
	}
	l.refs++
	k.mu.Unlock()

	select {
	case l.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		k.drop(key, l)
		return ctx.Err()
	}
}

func (k *keyLocks) unlock(key string) {
	k.mu.Lock()
	l := k.m[key]
	k.mu.Unlock()
	<-l.sem
	k.drop(key, l)
}

func (k *keyLocks) drop(key string, l *keyLock) {
	k.mu.Lock()
	defer k.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(k.m, key)
	}
}
