/*
errors.go - Centralized error types for the archive engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Adapters (store/sqlite, store/postgres, api) translate their own failures
  into these so callers can use errors.Is / errors.As.

ERROR CATEGORIES:
  1. Structural ingestion errors - abort the whole upload
  2. Row errors - recorded in the report, never abort a batch
  3. Store errors - abort the current request
  4. Assignment errors - surfaced explicitly, never ignored

NOT AN ERROR:
  A duplicate agreement number on ingest. The existing row wins and the
  outcome is recorded as RowDuplicate.

SEE ALSO:
  - ingest.go: Structural and row errors
  - sequencer.go: ErrSequenceConflict retry loop
  - api/handlers.go: HTTP status mapping
*/
package archive

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrHeaderNotFound is returned when no sheet has a header row within the scan window.
	ErrHeaderNotFound = errors.New("header not found")

	// ErrRequiredColumnMissing is returned when the header row has no agreement column.
	ErrRequiredColumnMissing = errors.New("required column missing")

	// ErrWorkbookParse is returned when the uploaded file cannot be decoded.
	ErrWorkbookParse = errors.New("workbook parse failure")

	// ErrInvalidInput is returned when a request is missing required fields.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidRow marks a data row that was skipped. Never fatal.
	ErrInvalidRow = errors.New("invalid row")

	// ErrStoreUnavailable is returned when the store cannot be reached in time.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrSequenceConflict is returned by stores when a concurrent allocation
	// for the same box type won the race. The sequencer retries it.
	ErrSequenceConflict = errors.New("sequence allocation conflict")

	// ErrAgreementNotFound is returned when an assignment targets an unknown agreement.
	ErrAgreementNotFound = errors.New("agreement not found")

	// ErrAgreementArchived is returned when an assignment targets an agreement
	// that has already been filed.
	ErrAgreementArchived = errors.New("agreement already archived")

	// ErrBoxNotFound is returned when no active box exists for a box type.
	ErrBoxNotFound = errors.New("active box not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ColumnMissingError names the role that could not be mapped and the headers seen.
type ColumnMissingError struct {
	Role    ColumnRole
	Sheet   string
	Headers []string
}

func (e *ColumnMissingError) Error() string {
	return fmt.Sprintf("required column missing: no %s column in sheet %q (headers: %s)",
		e.Role, e.Sheet, strings.Join(e.Headers, ", "))
}

func (e *ColumnMissingError) Unwrap() error {
	return ErrRequiredColumnMissing
}

// InvalidRowError describes why a data row was skipped.
type InvalidRowError struct {
	Row    int
	Reason string
}

func (e *InvalidRowError) Error() string {
	return fmt.Sprintf("invalid row %d: %s", e.Row, e.Reason)
}

func (e *InvalidRowError) Unwrap() error {
	return ErrInvalidRow
}

// StoreError wraps a store failure with the operation that hit it.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrStoreUnavailable, e.Op, e.Err)
}

// Unwrap exposes both the sentinel and the underlying cause.
func (e *StoreError) Unwrap() []error {
	return []error{ErrStoreUnavailable, e.Err}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrSequenceConflict)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrHeaderNotFound) ||
		errors.Is(err, ErrRequiredColumnMissing) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrWorkbookParse)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAgreementNotFound) ||
		errors.Is(err, ErrBoxNotFound)
}

// isDomainError reports whether err is one of ours and must pass through untouched.
func isDomainError(err error) bool {
	return IsClientError(err) || IsNotFound(err) || IsRetryable(err) ||
		errors.Is(err, ErrAgreementArchived) ||
		errors.Is(err, ErrInvalidRow) ||
		errors.Is(err, ErrStoreUnavailable)
}
