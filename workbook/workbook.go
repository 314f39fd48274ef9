/*
Package workbook decodes uploaded spreadsheets into plain text grids.

PURPOSE:
  Uploads arrive as .xlsx/.xlsm workbooks or .csv exports. The ingestion
  pipeline only needs an ordered list of named sheets, each a grid of cell
  text, so this package hides the file formats behind that shape.

FORMATS:
  .xlsx, .xlsm   All sheets, in workbook order (excelize)
  .csv           One sheet named after the file

NUMERIC CELLS:
  Spreadsheet tools love to turn agreement numbers into floats, so the same
  agreement can arrive as "104233" or "1.04233E+5" depending on who saved the
  file. Cells the workbook stores as numbers are normalized to plain digits.
  Text cells are never rewritten: "2020E01" stays "2020E01". CSV has no cell
  types, so every CSV cell is text.

SEE ALSO:
  - archive/locator.go: Header detection on the decoded grid
*/
package workbook

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// ErrUnsupportedFormat is returned for file extensions we cannot decode.
var ErrUnsupportedFormat = errors.New("unsupported workbook format")

// Sheet is one named grid of cell text. Rows may be ragged.
type Sheet struct {
	Name string
	Rows [][]string
}

// Workbook is an ordered sequence of sheets.
type Workbook struct {
	Name   string
	Sheets []Sheet
}

// Decode picks a decoder from the file extension.
func Decode(filename string, r io.Reader) (*Workbook, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx", ".xlsm":
		wb, err := DecodeXLSX(r)
		if err != nil {
			return nil, err
		}
		wb.Name = filepath.Base(filename)
		return wb, nil
	case ".csv":
		return DecodeCSV(filename, r)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(filename))
	}
}

// DecodeXLSX reads every sheet of an OOXML workbook.
func DecodeXLSX(r io.Reader) (*Workbook, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	wb := &Workbook{}
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil {
			return nil, fmt.Errorf("failed to read sheet %q: %w", name, err)
		}
		if err := normalizeNumericCells(f, name, rows); err != nil {
			return nil, fmt.Errorf("failed to read sheet %q: %w", name, err)
		}
		wb.Sheets = append(wb.Sheets, Sheet{Name: name, Rows: rows})
	}
	return wb, nil
}

// normalizeNumericCells rewrites the cells excelize reports as numbers.
// Numbers written by most tools carry no type attribute, hence CellTypeUnset.
func normalizeNumericCells(f *excelize.File, sheet string, rows [][]string) error {
	for r, row := range rows {
		for c, cell := range row {
			if cell == "" {
				continue
			}
			name, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				return err
			}
			typ, err := f.GetCellType(sheet, name)
			if err != nil {
				return err
			}
			if typ == excelize.CellTypeNumber || typ == excelize.CellTypeUnset {
				row[c] = NormalizeNumber(cell)
			}
		}
	}
	return nil
}

// DecodeCSV reads a CSV export as a single-sheet workbook.
func DecodeCSV(filename string, r io.Reader) (*Workbook, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	cr := csv.NewReader(bytes.NewReader(data))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse csv: %w", err)
	}

	base := filepath.Base(filename)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return &Workbook{
		Name:   base,
		Sheets: []Sheet{{Name: name, Rows: rows}},
	}, nil
}

// EncodeXLSX writes wb as an .xlsx file. Used for upload templates and fixtures.
func EncodeXLSX(wb *Workbook) ([]byte, error) {
	if len(wb.Sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}

	f := excelize.NewFile()
	defer f.Close()

	// NewFile starts with "Sheet1"; rename it to our first sheet.
	if err := f.SetSheetName(f.GetSheetName(0), wb.Sheets[0].Name); err != nil {
		return nil, err
	}
	for i, sheet := range wb.Sheets {
		if i > 0 {
			if _, err := f.NewSheet(sheet.Name); err != nil {
				return nil, err
			}
		}
		for r, row := range sheet.Rows {
			values := make([]any, len(row))
			for c, v := range row {
				values[c] = v
			}
			cell, err := excelize.CoordinatesToCellName(1, r+1)
			if err != nil {
				return nil, err
			}
			if err := f.SetSheetRow(sheet.Name, cell, &values); err != nil {
				return nil, err
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// =============================================================================
// CELL NORMALIZATION
// =============================================================================

// maxExponent bounds the exponents NormalizeNumber expands. Excel numbers stay
// far below it; "1e5000000" would expand to five million digits.
const maxExponent = 30

// NormalizeNumber rewrites integral numeric text to plain digits.
// "104233.0" and "1.04233E+5" both become "104233". Values with leading
// zeros, fractions or out-of-range exponents come back unchanged.
func NormalizeNumber(s string) string {
	t := strings.TrimSpace(s)
	if hasLeadingZero(t) {
		return s
	}
	d, err := decimal.NewFromString(t)
	if err != nil {
		return s
	}
	if exp := d.Exponent(); exp > maxExponent || exp < -maxExponent {
		return s
	}
	if !d.IsInteger() {
		return s
	}
	return d.String()
}

func hasLeadingZero(s string) bool {
	s = strings.TrimLeft(s, "+-")
	return len(s) > 1 && s[0] == '0' && s[1] >= '0' && s[1] <= '9'
}
