package archive_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/warp/archive-engine/archive"
	"github.com/warp/archive-engine/archive/store"
)

// =============================================================================
// HAPPY PATH
// =============================================================================

func TestIngest_StoresPendingAgreements(t *testing.T) {
	// GIVEN: A sheet with a title row, a header, three data rows and a blank tail
	ctx := context.Background()
	engine, _ := newTestEngine(t)
	wb := book(sheet("Sheet1",
		row("Scanned March"),
		row("Agreement No", "Category", "Box"),
		row("A-1", "Legal", "DOK12"),
		row("A-2", "Finance", ""),
		row("A-3", "", ""),
		row("", "", ""),
		row("nan"),
	))

	// WHEN: Ingesting it
	report, err := engine.Ingest(ctx, wb)
	require.NoError(t, err)

	// THEN: Three rows attempted and inserted, the blanks skipped
	assert.Equal(t, "Sheet1", report.Sheet)
	assert.Equal(t, 2, report.HeaderRow)
	assert.Equal(t, 3, report.Attempted)
	assert.Equal(t, 3, report.Inserted)
	assert.Equal(t, 0, report.Duplicates)
	assert.Equal(t, 2, report.Skipped)
	assert.NotEmpty(t, report.UploadID)

	want := []archive.RowOutcome{
		{Row: 3, AgreementNumber: "A-1", BoxType: "DOK", Status: archive.RowInserted},
		{Row: 4, AgreementNumber: "A-2", BoxType: "FIN", Status: archive.RowInserted},
		{Row: 5, AgreementNumber: "A-3", BoxType: archive.UnknownBoxType, Status: archive.RowInserted},
		{Row: 6, Status: archive.RowSkipped},
		{Row: 7, Status: archive.RowSkipped},
	}
	if diff := cmp.Diff(want, report.Rows); diff != "" {
		t.Errorf("row outcomes mismatch (-want +got):\n%s", diff)
	}

	// AND: Agreements are stored as Pending with their derived box type
	a, err := engine.GetAgreement(ctx, "A-1")
	require.NoError(t, err)
	assert.Equal(t, archive.Agreement{
		Number:   "A-1",
		Category: "Legal",
		BoxType:  "DOK",
		Status:   archive.StatusPending,
	}, a)
}

func TestIngest_InvalidRowDoesNotAbortBatch(t *testing.T) {
	// GIVEN: An overlong agreement number between two good rows
	ctx := context.Background()
	engine, _ := newTestEngine(t)
	wb := book(sheet("Sheet1",
		row("Agreement"),
		row("A-1"),
		row(strings.Repeat("X", archive.MaxAgreementNumberLen+1)),
		row("A-2"),
	))

	report, err := engine.Ingest(ctx, wb)

	// THEN: The bad row is reported, the others are stored
	require.NoError(t, err)
	assert.Equal(t, 2, report.Inserted)
	assert.Equal(t, 1, report.Invalid)
	assert.Equal(t, archive.RowInvalid, report.Rows[1].Status)
	assert.Contains(t, report.Rows[1].Reason, "255")

	_, err = engine.GetAgreement(ctx, "A-2")
	assert.NoError(t, err)
}

// =============================================================================
// IDEMPOTENCE
// =============================================================================

func TestIngest_ReuploadIsIdempotent(t *testing.T) {
	// GIVEN: A file already ingested once
	ctx := context.Background()
	engine, _ := newTestEngine(t)
	first := book(sheet("Sheet1",
		row("Agreement", "Category"),
		row("A-1", "Legal"),
		row("A-2", "Legal"),
	))
	_, err := engine.Ingest(ctx, first)
	require.NoError(t, err)

	// WHEN: The same agreements are uploaded again with different data
	second := book(sheet("Sheet1",
		row("Agreement", "Category"),
		row("A-1", "Finance"),
		row("A-2", "Finance"),
		row("A-3", "Finance"),
	))
	report, err := engine.Ingest(ctx, second)
	require.NoError(t, err)

	// THEN: Existing rows are counted as attempted but never overwritten
	assert.Equal(t, 3, report.Attempted)
	assert.Equal(t, 1, report.Inserted)
	assert.Equal(t, 2, report.Duplicates)

	a, err := engine.GetAgreement(ctx, "A-1")
	require.NoError(t, err)
	assert.Equal(t, "Legal", a.Category)
	assert.Equal(t, "LEG", a.BoxType)
}

func TestIngest_DuplicateWithinOneFile(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine(t)

	report, err := engine.Ingest(ctx, book(sheet("S",
		row("Agreement", "Box"),
		row("A-1", "DOK1"),
		row("A-1", "LEG1"),
	)))

	require.NoError(t, err)
	assert.Equal(t, 1, report.Inserted)
	assert.Equal(t, 1, report.Duplicates)

	a, err := engine.GetAgreement(ctx, "A-1")
	require.NoError(t, err)
	assert.Equal(t, "DOK", a.BoxType, "first write wins")
}

func TestIngest_ArchivedAgreementSurvivesReupload(t *testing.T) {
	// GIVEN: An agreement that has been archived
	ctx := context.Background()
	engine, _ := newTestEngine(t)
	seedAgreements(t, engine, "DOK", "A-1")
	_, err := engine.AllocateNextBox(ctx, "DOK", "dok-1")
	require.NoError(t, err)
	require.NoError(t, engine.AssignAgreement(ctx, archive.AssignRequest{
		AgreementNumber: "A-1", BoxName: "DOK1", DokID: "dok-1", BoxType: "DOK",
	}))

	// WHEN: It is uploaded again
	seedAgreements(t, engine, "DOK", "A-1")

	// THEN: Its archival state is untouched
	a, err := engine.GetAgreement(ctx, "A-1")
	require.NoError(t, err)
	assert.True(t, a.IsArchived())
	assert.Equal(t, "DOK1", a.AssignedBoxName)
}

func TestIngest_ConcurrentUploadsOfSameAgreement(t *testing.T) {
	// GIVEN: Eight uploads of the same three agreements at the same time
	ctx := context.Background()
	engine, _ := newTestEngine(t)

	var (
		mu       sync.Mutex
		inserted int
	)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			report, err := engine.Ingest(gctx, book(sheet("S",
				row("Agreement"), row("A-1"), row("A-2"), row("A-3"),
			)))
			if err != nil {
				return err
			}
			mu.Lock()
			inserted += report.Inserted
			mu.Unlock()
			return nil
		})
	}
	require.NoError(t, g.Wait())

	// THEN: Each agreement was created exactly once
	assert.Equal(t, 3, inserted)
}

// =============================================================================
// STRUCTURAL FAILURES
// =============================================================================

func TestIngest_HeaderNotFoundWritesNothing(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine(t)

	report, err := engine.Ingest(ctx, book(sheet("S",
		row("Contract", "Box"),
		row("A-1", "DOK1"),
	)))

	assert.Nil(t, report)
	require.Error(t, err)
	assert.True(t, errors.Is(err, archive.ErrHeaderNotFound))
	assert.True(t, archive.IsClientError(err))

	found, err := engine.SearchAgreement(ctx, "A-1")
	require.NoError(t, err)
	assert.Nil(t, found)
}

// failingInsertStore lets `left` inserts through, then fails.
type failingInsertStore struct {
	*store.Memory
	mu   sync.Mutex
	left int
}

func (s *failingInsertStore) InsertAgreementIfAbsent(ctx context.Context, a archive.Agreement) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.left == 0 {
		return false, errors.New("connection reset")
	}
	s.left--
	return s.Memory.InsertAgreementIfAbsent(ctx, a)
}

func TestIngest_StoreFailureAbortsUpload(t *testing.T) {
	// GIVEN: A store that dies after one insert
	ctx := context.Background()
	mem := store.NewMemory()
	engine := archive.NewEngine(&failingInsertStore{Memory: mem, left: 1}, archive.DefaultOptions(), nil)

	// WHEN: Ingesting three rows
	report, err := engine.Ingest(ctx, book(sheet("S",
		row("Agreement"), row("A-1"), row("A-2"), row("A-3"),
	)))

	// THEN: The upload fails as a store failure, keeping what was written
	assert.Nil(t, report)
	require.Error(t, err)
	assert.True(t, errors.Is(err, archive.ErrStoreUnavailable))

	var storeErr *archive.StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, "insert agreement", storeErr.Op)

	a, _ := mem.GetAgreement(ctx, "A-1")
	assert.NotNil(t, a)
	a, _ = mem.GetAgreement(ctx, "A-2")
	assert.Nil(t, a)
}

func TestIngestFile_CSV(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine(t)
	csv := "\xef\xbb\xbfAgreement No,Category,Box\n104233,Legal,DOK3\n"

	report, err := engine.IngestFile(ctx, "march.csv", strings.NewReader(csv))

	require.NoError(t, err)
	assert.Equal(t, "march.csv", report.Workbook)
	assert.Equal(t, "march", report.Sheet)
	assert.Equal(t, 1, report.Inserted)

	a, err := engine.GetAgreement(ctx, "104233")
	require.NoError(t, err)
	assert.Equal(t, "DOK", a.BoxType)
}

func TestIngestFile_NumericLookingTextKeptVerbatim(t *testing.T) {
	// GIVEN: Text cells that would parse as scientific notation
	ctx := context.Background()
	engine, _ := newTestEngine(t)
	csv := "Agreement,Category,Box\n2020E01,Legal,1E2\n0012.0,Legal,\n"

	// WHEN: Ingesting the file
	report, err := engine.IngestFile(ctx, "batch.csv", strings.NewReader(csv))
	require.NoError(t, err)
	assert.Equal(t, 2, report.Inserted)

	// THEN: The number is stored as typed and the box type comes from the box text
	a, err := engine.GetAgreement(ctx, "2020E01")
	require.NoError(t, err)
	assert.Equal(t, "E", a.BoxType)

	a, err = engine.GetAgreement(ctx, "0012.0")
	require.NoError(t, err)
	assert.Equal(t, "LEG", a.BoxType)
}

func TestIngestFile_ParseFailures(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine(t)

	tests := []struct {
		name     string
		filename string
		body     string
	}{
		{"corrupt xlsx", "broken.xlsx", "not a zip file"},
		{"unsupported extension", "scan.pdf", "%PDF-1.4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := engine.IngestFile(ctx, tt.filename, strings.NewReader(tt.body))
			require.Error(t, err)
			assert.True(t, errors.Is(err, archive.ErrWorkbookParse))
			assert.True(t, archive.IsClientError(err))
		})
	}
}

func TestIngestReport_CountsAddUp(t *testing.T) {
	engine, _ := newTestEngine(t)
	seedAgreements(t, engine, "DOK", "A-1")

	report, err := engine.Ingest(context.Background(), book(sheet("S",
		row("Agreement"), row("A-1"), row("A-2"), row(""), row(strings.Repeat("9", 300)),
	)))
	require.NoError(t, err)

	assert.Equal(t, report.Inserted+report.Duplicates, report.Attempted)
	assert.Len(t, report.Rows, report.Attempted+report.Skipped+report.Invalid)

	statuses := make([]archive.RowStatus, 0, len(report.Rows))
	for _, o := range report.Rows {
		statuses = append(statuses, o.Status)
	}
	want := []archive.RowStatus{archive.RowDuplicate, archive.RowInserted, archive.RowSkipped, archive.RowInvalid}
	if diff := cmp.Diff(want, statuses, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("statuses mismatch (-want +got):\n%s", diff)
	}
}
