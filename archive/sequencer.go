/*
sequencer.go - Box sequence allocation

PURPOSE:
  Each box type has exactly one open box. When the operator fills it up they
  ask for the next one: DOK1 -> DOK2 -> DOK3. Sequence numbers are never
  reused, even across rollovers.

STATE MACHINE (per box type):
  (none) --AllocateNext--> seq 1, count 0
  seq n  --AllocateNext--> seq n+1, count 0, new dok id
  seq n  --Assign-------> seq n, count +1      (assign.go)

CONCURRENCY:
  AllocateNext is a read-modify-write on a keyed singleton. It runs inside
  one store transaction that:
    1. locks the box row for the type (Tx.LockActiveBox)
    2. computes the next state
    3. writes it back with a compare-and-set on the previous sequence
  Allocations for different types take different locks and never wait on
  each other.

  When the store still detects a conflict (two first-time inserts racing,
  a serialization failure, a CAS miss) it returns ErrSequenceConflict and
  the whole unit is retried here, with linear backoff, up to
  Options.MaxRetries times. Callers never see the conflict.
*/
package archive

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Sequencer allocates and rolls over active boxes.
type Sequencer struct {
	store  TxStore
	opts   Options
	logger *zap.Logger
}

// NewSequencer creates a sequencer over store.
func NewSequencer(store TxStore, opts Options, logger *zap.Logger) *Sequencer {
	return &Sequencer{store: store, opts: opts, logger: logger}
}

// GetActive returns the open box for boxType, or ErrBoxNotFound.
func (s *Sequencer) GetActive(ctx context.Context, boxType string) (ActiveBox, error) {
	boxType = strings.TrimSpace(boxType)
	if boxType == "" {
		return ActiveBox{}, fmt.Errorf("%w: box type is required", ErrInvalidInput)
	}

	var box *ActiveBox
	err := s.opts.do(ctx, "get active box", func(ctx context.Context) error {
		var err error
		box, err = s.store.GetActiveBox(ctx, boxType)
		return err
	})
	if err != nil {
		return ActiveBox{}, err
	}
	if box == nil {
		return ActiveBox{}, fmt.Errorf("%w: %q", ErrBoxNotFound, boxType)
	}
	return *box, nil
}

// AllocateNext opens the next box for boxType tagged with dokID.
func (s *Sequencer) AllocateNext(ctx context.Context, boxType, dokID string) (ActiveBox, error) {
	boxType = strings.TrimSpace(boxType)
	if boxType == "" {
		return ActiveBox{}, fmt.Errorf("%w: box type is required", ErrInvalidInput)
	}
	dokID = strings.TrimSpace(dokID)

	for attempt := 0; ; attempt++ {
		box, err := s.allocateOnce(ctx, boxType, dokID)
		if err == nil {
			s.logger.Info("box allocated",
				zap.String("box_type", boxType),
				zap.String("box_name", box.Name),
				zap.Int64("sequence", box.Sequence),
				zap.String("dok_id", dokID))
			return box, nil
		}
		if !IsRetryable(err) {
			return ActiveBox{}, err
		}
		if attempt >= s.opts.MaxRetries {
			return ActiveBox{}, fmt.Errorf("%w: box type %q still contended after %d attempts",
				ErrStoreUnavailable, boxType, attempt+1)
		}

		s.logger.Debug("sequence conflict, retrying",
			zap.String("box_type", boxType),
			zap.Int("attempt", attempt+1))
		if err := sleepCtx(ctx, s.opts.RetryBackoff*time.Duration(attempt+1)); err != nil {
			return ActiveBox{}, &StoreError{Op: "allocate next box", Err: err}
		}
	}
}

func (s *Sequencer) allocateOnce(ctx context.Context, boxType, dokID string) (ActiveBox, error) {
	var next ActiveBox
	err := s.opts.do(ctx, "allocate next box", func(ctx context.Context) error {
		return s.store.WithTx(ctx, func(tx Tx) error {
			current, err := tx.LockActiveBox(ctx, boxType)
			if err != nil {
				return err
			}
			if current == nil {
				next = FirstBox(boxType, dokID)
				return tx.InsertActiveBox(ctx, next)
			}
			next = current.Rollover(dokID)
			return tx.UpdateActiveBox(ctx, next, current.Sequence)
		})
	})
	return next, err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
