package archive

import (
	"fmt"
	"strings"

	"github.com/warp/archive-engine/workbook"
)

// HeaderScanRows is how many leading rows of each sheet are searched for the header.
const HeaderScanRows = 10

// headerMarker identifies the header row. This is a heuristic, not a contract
// with the people producing the files: the first row mentioning "agreement"
// anywhere wins, even if a title row above the real header says "Agreements 2019".
const headerMarker = "agreement"

// HeaderLocation is where the header row was found.
type HeaderLocation struct {
	SheetIndex int
	Sheet      string
	Row        int // zero-based within the sheet
}

// IsHeaderRow reports whether any cell of row mentions the header marker.
func IsHeaderRow(row []string) bool {
	for _, cell := range row {
		if strings.Contains(strings.ToLower(cell), headerMarker) {
			return true
		}
	}
	return false
}

// LocateHeader scans sheets in file order and, within each sheet, the first
// HeaderScanRows rows in order, returning the first header row found.
func LocateHeader(wb *workbook.Workbook) (HeaderLocation, error) {
	for si, sheet := range wb.Sheets {
		limit := min(len(sheet.Rows), HeaderScanRows)
		for ri := 0; ri < limit; ri++ {
			if IsHeaderRow(sheet.Rows[ri]) {
				return HeaderLocation{SheetIndex: si, Sheet: sheet.Name, Row: ri}, nil
			}
		}
	}
	return HeaderLocation{}, fmt.Errorf("%w: no row mentioning %q in the first %d rows of %d sheet(s)",
		ErrHeaderNotFound, headerMarker, HeaderScanRows, len(wb.Sheets))
}
