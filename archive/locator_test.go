package archive_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/archive-engine/archive"
	"github.com/warp/archive-engine/workbook"
)

func TestLocateHeader_BelowTitleRows(t *testing.T) {
	// GIVEN: Two title rows above the header
	wb := book(sheet("Sheet1",
		row("Archive export"),
		row(""),
		row("No", "Agreement No", "Category"),
		row("1", "A-1", "Legal"),
	))

	loc, err := archive.LocateHeader(wb)

	require.NoError(t, err)
	assert.Equal(t, archive.HeaderLocation{SheetIndex: 0, Sheet: "Sheet1", Row: 2}, loc)
}

func TestLocateHeader_LaterSheet(t *testing.T) {
	// GIVEN: The first sheet is a cover page
	wb := book(
		sheet("Cover", row("Scanned 2019"), row("Operator: K")),
		sheet("Data", row("AGREEMENT", "Box")),
	)

	loc, err := archive.LocateHeader(wb)

	require.NoError(t, err)
	assert.Equal(t, 1, loc.SheetIndex)
	assert.Equal(t, "Data", loc.Sheet)
	assert.Equal(t, 0, loc.Row)
}

func TestLocateHeader_AmbiguousResolvesToFirstHit(t *testing.T) {
	// GIVEN: A title row mentioning "agreements" above the real header.
	// The locator is a heuristic: the first row that mentions the word wins,
	// even when a human would pick the row below.
	wb := book(
		sheet("Sheet1",
			row("Agreements 2019"),
			row("Agreement No", "Category", "Box"),
		),
		sheet("Sheet2", row("Agreement No")),
	)

	loc, err := archive.LocateHeader(wb)

	require.NoError(t, err)
	assert.Equal(t, 0, loc.SheetIndex)
	assert.Equal(t, 0, loc.Row)
}

func TestLocateHeader_OutsideScanWindow(t *testing.T) {
	// GIVEN: The header sits on row 11
	var rows [][]string
	for i := 0; i < archive.HeaderScanRows; i++ {
		rows = append(rows, row(fmt.Sprintf("note %d", i)))
	}
	rows = append(rows, row("Agreement No"))

	_, err := archive.LocateHeader(book(sheet("Sheet1", rows...)))

	require.Error(t, err)
	assert.True(t, errors.Is(err, archive.ErrHeaderNotFound))
}

func TestLocateHeader_EmptyWorkbook(t *testing.T) {
	_, err := archive.LocateHeader(&workbook.Workbook{})
	assert.True(t, errors.Is(err, archive.ErrHeaderNotFound))

	_, err = archive.LocateHeader(book(sheet("Empty")))
	assert.True(t, errors.Is(err, archive.ErrHeaderNotFound))
}
