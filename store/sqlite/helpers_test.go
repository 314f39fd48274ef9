package sqlite_test

import "github.com/warp/archive-engine/workbook"

func sheetWorkbook(rows ...[]string) *workbook.Workbook {
	return &workbook.Workbook{
		Name:   "test.xlsx",
		Sheets: []workbook.Sheet{{Name: "Sheet1", Rows: rows}},
	}
}
