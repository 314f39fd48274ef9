/*
Package storetest is the shared conformance suite for archive.TxStore.

Every store adapter runs the same checks, so the core can be written once
against the port and trust any of them:

	func TestStore(t *testing.T) {
	    storetest.Run(t, func(t *testing.T) archive.TxStore {
	        return newStore(t)
	    })
	}

Each subtest gets a fresh, empty store from open.
*/
package storetest

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sync/errgroup"

	"github.com/warp/archive-engine/archive"
)

// Run executes the suite. open must return an empty store.
func Run(t *testing.T, open func(t *testing.T) archive.TxStore) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s archive.TxStore)
	}{
		{"InsertIfAbsent", testInsertIfAbsent},
		{"ConcurrentInsertSameNumber", testConcurrentInsert},
		{"GetMissing", testGetMissing},
		{"FindAgreement", testFindAgreement},
		{"FindAgreementEscapesWildcards", testFindEscapes},
		{"ActiveBoxLifecycle", testActiveBoxLifecycle},
		{"InsertActiveBoxTwice", testInsertActiveBoxTwice},
		{"UpdateActiveBoxStaleSequence", testUpdateStale},
		{"ConcurrentAllocateNext", testConcurrentAllocate},
		{"ArchiveAgreement", testArchiveAgreement},
		{"IncrementMissingBox", testIncrementMissingBox},
		{"RollbackDiscardsWrites", testRollback},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, open(t))
		})
	}
}

func pending(number string) archive.Agreement {
	return archive.Agreement{Number: number, Category: "Legal", BoxType: "LEG", Status: archive.StatusPending}
}

func testInsertIfAbsent(t *testing.T, s archive.TxStore) {
	ctx := context.Background()

	created, err := s.InsertAgreementIfAbsent(ctx, pending("A-1"))
	require.NoError(t, err)
	assert.True(t, created)

	// Second write with different data is a no-op
	other := pending("A-1")
	other.Category = "Finance"
	created, err = s.InsertAgreementIfAbsent(ctx, other)
	require.NoError(t, err)
	assert.False(t, created)

	a, err := s.GetAgreement(ctx, "A-1")
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, pending("A-1"), *a)
}

func testConcurrentInsert(t *testing.T, s archive.TxStore) {
	ctx := context.Background()
	const writers = 8

	var (
		mu      sync.Mutex
		created int
	)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < writers; i++ {
		g.Go(func() error {
			ok, err := s.InsertAgreementIfAbsent(gctx, pending("A-1"))
			if err != nil {
				return err
			}
			if ok {
				mu.Lock()
				created++
				mu.Unlock()
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, 1, created)
}

func testGetMissing(t *testing.T, s archive.TxStore) {
	ctx := context.Background()

	a, err := s.GetAgreement(ctx, "nope")
	assert.NoError(t, err)
	assert.Nil(t, a)

	b, err := s.GetActiveBox(ctx, "DOK")
	assert.NoError(t, err)
	assert.Nil(t, b)

	f, err := s.FindAgreement(ctx, "nope")
	assert.NoError(t, err)
	assert.Nil(t, f)
}

func testFindAgreement(t *testing.T, s archive.TxStore) {
	ctx := context.Background()
	for _, n := range []string{"2019-ab-7", "2019-AB-8", "2020-CD-1"} {
		_, err := s.InsertAgreementIfAbsent(ctx, pending(n))
		require.NoError(t, err)
	}

	// Case-insensitive, oldest first
	a, err := s.FindAgreement(ctx, "AB")
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, "2019-ab-7", a.Number)

	a, err = s.FindAgreement(ctx, "cd")
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, "2020-CD-1", a.Number)
}

func testFindEscapes(t *testing.T, s archive.TxStore) {
	ctx := context.Background()
	for _, n := range []string{"AB1", "A_1", "50%"} {
		_, err := s.InsertAgreementIfAbsent(ctx, pending(n))
		require.NoError(t, err)
	}

	a, err := s.FindAgreement(ctx, "_")
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, "A_1", a.Number)

	a, err = s.FindAgreement(ctx, "%")
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, "50%", a.Number)
}

func testActiveBoxLifecycle(t *testing.T, s archive.TxStore) {
	ctx := context.Background()
	first := archive.FirstBox("DOK", "dok-1")

	err := s.WithTx(ctx, func(tx archive.Tx) error {
		current, err := tx.LockActiveBox(ctx, "DOK")
		if err != nil {
			return err
		}
		if current != nil {
			return fmt.Errorf("unexpected box %+v", current)
		}
		return tx.InsertActiveBox(ctx, first)
	})
	require.NoError(t, err)

	got, err := s.GetActiveBox(ctx, "DOK")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, first, *got)

	err = s.WithTx(ctx, func(tx archive.Tx) error {
		return tx.IncrementItemCount(ctx, "DOK")
	})
	require.NoError(t, err)

	next := first.Rollover("dok-2")
	err = s.WithTx(ctx, func(tx archive.Tx) error {
		current, err := tx.LockActiveBox(ctx, "DOK")
		if err != nil {
			return err
		}
		if current.ItemCount != 1 {
			return fmt.Errorf("item count %d, want 1", current.ItemCount)
		}
		return tx.UpdateActiveBox(ctx, next, current.Sequence)
	})
	require.NoError(t, err)

	got, err = s.GetActiveBox(ctx, "DOK")
	require.NoError(t, err)
	assert.Equal(t, archive.ActiveBox{BoxType: "DOK", Sequence: 2, Name: "DOK2", DokID: "dok-2"}, *got)
}

func testInsertActiveBoxTwice(t *testing.T, s archive.TxStore) {
	ctx := context.Background()
	insert := func() error {
		return s.WithTx(ctx, func(tx archive.Tx) error {
			return tx.InsertActiveBox(ctx, archive.FirstBox("DOK", "d"))
		})
	}

	require.NoError(t, insert())
	err := insert()
	assert.True(t, errors.Is(err, archive.ErrSequenceConflict), "got %v", err)
}

func testUpdateStale(t *testing.T, s archive.TxStore) {
	ctx := context.Background()
	first := archive.FirstBox("DOK", "d")
	require.NoError(t, s.WithTx(ctx, func(tx archive.Tx) error {
		return tx.InsertActiveBox(ctx, first)
	}))

	// Caller thinks the box is still at sequence 5
	err := s.WithTx(ctx, func(tx archive.Tx) error {
		return tx.UpdateActiveBox(ctx, first.Rollover("d2"), 5)
	})
	assert.True(t, errors.Is(err, archive.ErrSequenceConflict), "got %v", err)

	got, err := s.GetActiveBox(ctx, "DOK")
	require.NoError(t, err)
	assert.EqualValues(t, 1, got.Sequence)
}

// testConcurrentAllocate fans out rollovers on two box types through the
// sequencer. Every caller must get its own sequence number, with no gaps.
func testConcurrentAllocate(t *testing.T, s archive.TxStore) {
	ctx := context.Background()
	const perType = 8
	types := []string{"DOK", "LEG"}

	seq := archive.NewSequencer(s, archive.Options{
		StoreTimeout: 10 * time.Second,
		MaxRetries:   4 * perType,
		RetryBackoff: time.Millisecond,
	}, zaptest.NewLogger(t))

	var (
		mu  sync.Mutex
		got = make(map[string][]int64)
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, boxType := range types {
		for i := 0; i < perType; i++ {
			boxType, i := boxType, i // per-iteration copies (pre-Go 1.22 loop semantics)
			g.Go(func() error {
				box, err := seq.AllocateNext(gctx, boxType, fmt.Sprintf("dok-%d", i))
				if err != nil {
					return err
				}
				mu.Lock()
				got[box.BoxType] = append(got[box.BoxType], box.Sequence)
				mu.Unlock()
				return nil
			})
		}
	}
	require.NoError(t, g.Wait())

	want := make([]int64, perType)
	for i := range want {
		want[i] = int64(i + 1)
	}
	for _, boxType := range types {
		seqs := got[boxType]
		slices.Sort(seqs)
		assert.Equal(t, want, seqs, "%s sequences", boxType)

		b, err := s.GetActiveBox(ctx, boxType)
		require.NoError(t, err)
		require.NotNil(t, b)
		assert.EqualValues(t, perType, b.Sequence)
		assert.Equal(t, fmt.Sprintf("%s%d", boxType, perType), b.Name)
	}
}

func testArchiveAgreement(t *testing.T, s archive.TxStore) {
	ctx := context.Background()
	_, err := s.InsertAgreementIfAbsent(ctx, pending("A-1"))
	require.NoError(t, err)

	archiveIt := func(number string) error {
		return s.WithTx(ctx, func(tx archive.Tx) error {
			return tx.ArchiveAgreement(ctx, number, "LEG1", "dok-9")
		})
	}

	require.NoError(t, archiveIt("A-1"))
	a, err := s.GetAgreement(ctx, "A-1")
	require.NoError(t, err)
	assert.Equal(t, archive.StatusArchived, a.Status)
	assert.Equal(t, "LEG1", a.AssignedBoxName)
	assert.Equal(t, "dok-9", a.AssignedDokID)

	assert.True(t, errors.Is(archiveIt("A-1"), archive.ErrAgreementArchived))
	assert.True(t, errors.Is(archiveIt("missing"), archive.ErrAgreementNotFound))

	// Insert-if-absent never resets an archived agreement
	created, err := s.InsertAgreementIfAbsent(ctx, pending("A-1"))
	require.NoError(t, err)
	assert.False(t, created)
	a, err = s.GetAgreement(ctx, "A-1")
	require.NoError(t, err)
	assert.Equal(t, archive.StatusArchived, a.Status)
}

func testIncrementMissingBox(t *testing.T, s archive.TxStore) {
	ctx := context.Background()
	err := s.WithTx(ctx, func(tx archive.Tx) error {
		return tx.IncrementItemCount(ctx, "DOK")
	})
	assert.True(t, errors.Is(err, archive.ErrBoxNotFound), "got %v", err)
}

func testRollback(t *testing.T, s archive.TxStore) {
	ctx := context.Background()
	_, err := s.InsertAgreementIfAbsent(ctx, pending("A-1"))
	require.NoError(t, err)
	require.NoError(t, s.WithTx(ctx, func(tx archive.Tx) error {
		return tx.InsertActiveBox(ctx, archive.FirstBox("LEG", "d"))
	}))

	boom := errors.New("boom")
	err = s.WithTx(ctx, func(tx archive.Tx) error {
		if err := tx.ArchiveAgreement(ctx, "A-1", "LEG1", "d"); err != nil {
			return err
		}
		if err := tx.IncrementItemCount(ctx, "LEG"); err != nil {
			return err
		}
		if _, err := tx.InsertAgreementIfAbsent(ctx, pending("A-2")); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	a, err := s.GetAgreement(ctx, "A-1")
	require.NoError(t, err)
	assert.Equal(t, archive.StatusPending, a.Status)

	b, err := s.GetActiveBox(ctx, "LEG")
	require.NoError(t, err)
	assert.EqualValues(t, 0, b.ItemCount)

	missing, err := s.GetAgreement(ctx, "A-2")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
