/*
Package archive provides the core of the paper-archive digitization engine.

PURPOSE:
  Operators upload spreadsheets describing paper agreements. This package
  turns those spreadsheets into canonical Agreement records and later files
  archived agreements into sequentially numbered storage boxes, one open box
  per box type.

KEY CONCEPTS IN THIS FILE (types.go):
  - Agreement: a filed document record keyed by its agreement number
  - ActiveBox: the currently open box for a box type
  - Status: Pending -> Archived, never the other way round

DESIGN PRINCIPLES:
  1. The store owns the data. Nothing here caches authoritative state.
  2. Every read-modify-write goes through a store transaction (see store.go).
  3. Derivations (box type, box name) are pure functions.

SEE ALSO:
  - ingest.go: Spreadsheet ingestion pipeline
  - sequencer.go: Box sequence allocation
  - assign.go: Agreement-to-box assignment
*/
package archive

import "strconv"

// =============================================================================
// AGREEMENT
// =============================================================================

// Status is the archival state of an agreement.
type Status string

const (
	StatusPending  Status = "Pending"
	StatusArchived Status = "Archived"
)

// Agreement is one filed document record.
type Agreement struct {
	Number   string // unique, trimmed, case preserved
	Category string
	BoxType  string
	Status   Status

	// Set only on archival.
	AssignedBoxName string
	AssignedDokID   string
}

// IsArchived reports whether the agreement has been filed into a box.
func (a Agreement) IsArchived() bool {
	return a.Status == StatusArchived
}

// =============================================================================
// ACTIVE BOX
// =============================================================================

// ActiveBox is the open storage box for a box type.
//
// INVARIANTS:
//   - Name == BoxName(BoxType, Sequence)
//   - Sequence strictly increases over the type's history
//   - ItemCount resets to 0 on rollover
type ActiveBox struct {
	BoxType   string
	Sequence  int64
	Name      string
	DokID     string
	ItemCount int64
}

// BoxName derives the printed name of a box from its type and sequence.
func BoxName(boxType string, sequence int64) string {
	return boxType + strconv.FormatInt(sequence, 10)
}

// FirstBox returns the box opened on the first allocation for a type.
func FirstBox(boxType, dokID string) ActiveBox {
	return ActiveBox{
		BoxType:  boxType,
		Sequence: 1,
		Name:     BoxName(boxType, 1),
		DokID:    dokID,
	}
}

// Rollover retires b and returns the next box in sequence.
func (b ActiveBox) Rollover(dokID string) ActiveBox {
	next := b.Sequence + 1
	return ActiveBox{
		BoxType:   b.BoxType,
		Sequence:  next,
		Name:      BoxName(b.BoxType, next),
		DokID:     dokID,
		ItemCount: 0,
	}
}

// =============================================================================
// ASSIGNMENT REQUEST
// =============================================================================

// AssignRequest files one agreement into a box.
type AssignRequest struct {
	AgreementNumber string
	BoxName         string
	DokID           string
	BoxType         string
}
