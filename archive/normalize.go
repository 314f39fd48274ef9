package archive

import (
	"strings"
	"unicode/utf8"
)

// MaxAgreementNumberLen bounds the agreement number column.
const MaxAgreementNumberLen = 255

// RowAction is what the normalizer decided for a data row.
type RowAction int

const (
	// ActionInsert submits the record for idempotent insertion.
	ActionInsert RowAction = iota
	// ActionSkipBlank drops a row with no agreement number (trailing blank rows).
	ActionSkipBlank
	// ActionInvalid drops a row that cannot be stored.
	ActionInvalid
)

// NormalizeRow turns one raw data row into an Agreement candidate.
// rowNum is only used for error messages.
func NormalizeRow(cols ColumnMap, row []string, rowNum int) (Agreement, RowAction, error) {
	number := strings.TrimSpace(cols.Cell(row, RoleAgreement))
	if IsBlankCell(number) {
		return Agreement{}, ActionSkipBlank, nil
	}
	if utf8.RuneCountInString(number) > MaxAgreementNumberLen {
		return Agreement{}, ActionInvalid, &InvalidRowError{
			Row:    rowNum,
			Reason: "agreement number longer than 255 characters",
		}
	}

	category := strings.TrimSpace(cols.Cell(row, RoleCategory))
	if IsBlankCell(category) {
		category = ""
	}

	return Agreement{
		Number:   number,
		Category: category,
		BoxType:  ResolveBoxType(cols.Cell(row, RoleBox), category),
		Status:   StatusPending,
	}, ActionInsert, nil
}
