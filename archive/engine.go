/*
engine.go - Boundary operations of the archive core

PURPOSE:
  Engine is the one object request handlers talk to. It carries the injected
  store, the configured limits and the logger, and exposes the operations the
  transport layers (api/, cmd/) marshal. There is no package-level state:
  every deployment target builds its own Engine around its own store.

OPERATIONS:
  IngestFile / Ingest   Upload a workbook, get an IngestReport
  GetActiveBox          Current box for a type
  AllocateNextBox       Roll over to the next box for a type
  AssignAgreement       File an agreement into a box
  GetAgreement          Exact lookup by number
  SearchAgreement       First agreement whose number contains a fragment

STORE CALLS:
  Every store call (or transaction) is bounded by Options.StoreTimeout.
  A breach, or any failure that is not one of our own errors, is surfaced
  as ErrStoreUnavailable. Store errors are never retried automatically,
  with the single exception of sequence conflicts (see sequencer.go).
*/
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/warp/archive-engine/workbook"
)

// =============================================================================
// OPTIONS
// =============================================================================

// Options bounds the engine's use of the store.
type Options struct {
	// StoreTimeout bounds each store call or transaction. Zero disables it.
	StoreTimeout time.Duration

	// MaxRetries is how many times a conflicting allocation is retried.
	MaxRetries int

	// RetryBackoff is multiplied by the attempt number between retries.
	RetryBackoff time.Duration
}

// DefaultOptions returns the limits used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		StoreTimeout: 5 * time.Second,
		MaxRetries:   5,
		RetryBackoff: 10 * time.Millisecond,
	}
}

// do runs one bounded store interaction and classifies its error.
func (o Options) do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if o.StoreTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.StoreTimeout)
		defer cancel()
	}

	err := fn(ctx)
	if err == nil || isDomainError(err) || errors.Is(err, context.Canceled) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

// =============================================================================
// ENGINE
// =============================================================================

// Engine exposes the archive operations over one store.
type Engine struct {
	store  TxStore
	opts   Options
	logger *zap.Logger

	pipeline    *Pipeline
	sequencer   *Sequencer
	coordinator *Coordinator
}

// NewEngine wires the pipeline, sequencer and coordinator around store.
// A nil logger disables logging.
func NewEngine(store TxStore, opts Options, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		store:       store,
		opts:        opts,
		logger:      logger,
		pipeline:    NewPipeline(store, opts, logger.Named("ingest")),
		sequencer:   NewSequencer(store, opts, logger.Named("sequencer")),
		coordinator: NewCoordinator(store, opts, logger.Named("assign")),
	}
}

// IngestFile decodes an uploaded file and ingests it.
func (e *Engine) IngestFile(ctx context.Context, filename string, r io.Reader) (*IngestReport, error) {
	wb, err := workbook.Decode(filename, r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWorkbookParse, err)
	}
	return e.Ingest(ctx, wb)
}

// Ingest stores the agreements of an already decoded workbook.
func (e *Engine) Ingest(ctx context.Context, wb *workbook.Workbook) (*IngestReport, error) {
	return e.pipeline.Run(ctx, wb)
}

// GetActiveBox returns the open box for boxType, or ErrBoxNotFound.
func (e *Engine) GetActiveBox(ctx context.Context, boxType string) (ActiveBox, error) {
	return e.sequencer.GetActive(ctx, boxType)
}

// AllocateNextBox opens the next box for boxType.
func (e *Engine) AllocateNextBox(ctx context.Context, boxType, dokID string) (ActiveBox, error) {
	return e.sequencer.AllocateNext(ctx, boxType, dokID)
}

// AssignAgreement files an agreement into a box.
func (e *Engine) AssignAgreement(ctx context.Context, req AssignRequest) error {
	return e.coordinator.Assign(ctx, req)
}

// GetAgreement returns the agreement with this exact number, or ErrAgreementNotFound.
func (e *Engine) GetAgreement(ctx context.Context, number string) (Agreement, error) {
	number = strings.TrimSpace(number)
	var a *Agreement
	err := e.opts.do(ctx, "get agreement", func(ctx context.Context) error {
		var err error
		a, err = e.store.GetAgreement(ctx, number)
		return err
	})
	if err != nil {
		return Agreement{}, err
	}
	if a == nil {
		return Agreement{}, fmt.Errorf("%w: %q", ErrAgreementNotFound, number)
	}
	return *a, nil
}

// SearchAgreement returns the first agreement whose number contains fragment.
// Returns nil without error when nothing matches or fragment is blank.
func (e *Engine) SearchAgreement(ctx context.Context, fragment string) (*Agreement, error) {
	fragment = strings.TrimSpace(fragment)
	if fragment == "" {
		return nil, nil
	}
	var a *Agreement
	err := e.opts.do(ctx, "search agreement", func(ctx context.Context) error {
		var err error
		a, err = e.store.FindAgreement(ctx, fragment)
		return err
	})
	return a, err
}
