/*
ingest.go - Spreadsheet ingestion pipeline

PURPOSE:
  Takes a decoded workbook of arbitrary layout and stores one Pending
  Agreement per data row.

PIPELINE:
  1. LocateHeader:  first sheet/row mentioning "agreement"
  2. MapColumns:    header text -> agreement/category/box columns
  3. NormalizeRow:  raw row -> Agreement candidate (box type derived)
  4. Insert:        InsertAgreementIfAbsent, one row at a time

FAILURE POLICY:
  Structural problems (no header, no agreement column) abort the upload
  before anything is written. Bad data rows are recorded in the report and
  skipped; one bad row never poisons a batch. A store failure aborts the
  upload, leaving the rows already inserted in place (uploads are not
  all-or-nothing).

IDEMPOTENCE:
  First write wins. Re-uploading a file never overwrites an agreement, and
  the second upload still counts the row as attempted.

SEE ALSO:
  - locator.go, columns.go, normalize.go, boxtype.go
*/
package archive

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warp/archive-engine/workbook"
)

// =============================================================================
// REPORT
// =============================================================================

// RowStatus is the outcome of one data row.
type RowStatus string

const (
	RowInserted  RowStatus = "inserted"
	RowDuplicate RowStatus = "duplicate"
	RowSkipped   RowStatus = "skipped"
	RowInvalid   RowStatus = "invalid"
)

// RowOutcome records what happened to one data row.
type RowOutcome struct {
	Row             int // 1-based, as shown by spreadsheet tools
	AgreementNumber string
	BoxType         string
	Status          RowStatus
	Reason          string
}

// IngestReport summarizes one upload.
type IngestReport struct {
	UploadID  string
	Workbook  string
	Sheet     string
	HeaderRow int // 1-based

	// Attempted counts rows submitted for insertion: Inserted + Duplicates.
	Attempted  int
	Inserted   int
	Duplicates int
	Skipped    int
	Invalid    int

	Rows []RowOutcome
}

func (r *IngestReport) record(o RowOutcome) {
	switch o.Status {
	case RowInserted:
		r.Attempted++
		r.Inserted++
	case RowDuplicate:
		r.Attempted++
		r.Duplicates++
	case RowSkipped:
		r.Skipped++
	case RowInvalid:
		r.Invalid++
	}
	r.Rows = append(r.Rows, o)
}

// =============================================================================
// PIPELINE
// =============================================================================

// Pipeline ingests workbooks into the store.
type Pipeline struct {
	store  Store
	opts   Options
	logger *zap.Logger
}

// NewPipeline creates a pipeline writing to store.
func NewPipeline(store Store, opts Options, logger *zap.Logger) *Pipeline {
	return &Pipeline{store: store, opts: opts, logger: logger}
}

// Run ingests every data row below the located header.
func (p *Pipeline) Run(ctx context.Context, wb *workbook.Workbook) (*IngestReport, error) {
	loc, err := LocateHeader(wb)
	if err != nil {
		return nil, err
	}
	sheet := wb.Sheets[loc.SheetIndex]

	cols, err := MapColumns(sheet.Rows[loc.Row])
	if err != nil {
		var missing *ColumnMissingError
		if errors.As(err, &missing) {
			missing.Sheet = sheet.Name
		}
		return nil, err
	}

	report := &IngestReport{
		UploadID:  uuid.NewString(),
		Workbook:  wb.Name,
		Sheet:     sheet.Name,
		HeaderRow: loc.Row + 1,
	}
	log := p.logger.With(
		zap.String("upload_id", report.UploadID),
		zap.String("sheet", sheet.Name),
		zap.Int("header_row", report.HeaderRow),
	)

	for i := loc.Row + 1; i < len(sheet.Rows); i++ {
		rowNum := i + 1
		candidate, action, err := NormalizeRow(cols, sheet.Rows[i], rowNum)
		switch action {
		case ActionSkipBlank:
			report.record(RowOutcome{Row: rowNum, Status: RowSkipped})
			continue
		case ActionInvalid:
			log.Debug("skipping invalid row", zap.Int("row", rowNum), zap.Error(err))
			report.record(RowOutcome{Row: rowNum, Status: RowInvalid, Reason: err.Error()})
			continue
		}

		var inserted bool
		err = p.opts.do(ctx, "insert agreement", func(ctx context.Context) error {
			var err error
			inserted, err = p.store.InsertAgreementIfAbsent(ctx, candidate)
			return err
		})
		if err != nil {
			log.Error("upload aborted by store failure",
				zap.Int("row", rowNum),
				zap.Int("attempted", report.Attempted),
				zap.Error(err))
			return nil, err
		}

		status := RowDuplicate
		if inserted {
			status = RowInserted
		}
		report.record(RowOutcome{
			Row:             rowNum,
			AgreementNumber: candidate.Number,
			BoxType:         candidate.BoxType,
			Status:          status,
		})
	}

	log.Info("upload ingested",
		zap.Int("attempted", report.Attempted),
		zap.Int("inserted", report.Inserted),
		zap.Int("duplicates", report.Duplicates),
		zap.Int("skipped", report.Skipped),
		zap.Int("invalid", report.Invalid))
	return report, nil
}
