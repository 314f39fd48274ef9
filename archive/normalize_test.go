package archive_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/archive-engine/archive"
)

func testColumns(t *testing.T) archive.ColumnMap {
	t.Helper()
	cols, err := archive.MapColumns([]string{"Agreement", "Category", "Box"})
	require.NoError(t, err)
	return cols
}

func TestNormalizeRow_Insert(t *testing.T) {
	a, action, err := archive.NormalizeRow(testColumns(t), row("  A-100 ", " Legal ", "DOK12"), 5)

	require.NoError(t, err)
	assert.Equal(t, archive.ActionInsert, action)
	assert.Equal(t, archive.Agreement{
		Number:   "A-100",
		Category: "Legal",
		BoxType:  "DOK",
		Status:   archive.StatusPending,
	}, a)
}

func TestNormalizeRow_NanCategoryBecomesEmpty(t *testing.T) {
	a, action, err := archive.NormalizeRow(testColumns(t), row("A-1", "nan", ""), 2)

	require.NoError(t, err)
	assert.Equal(t, archive.ActionInsert, action)
	assert.Equal(t, "", a.Category)
	assert.Equal(t, archive.UnknownBoxType, a.BoxType)
}

func TestNormalizeRow_BlankAgreementSkipped(t *testing.T) {
	for _, number := range []string{"", "  ", "nan", "NAN"} {
		_, action, err := archive.NormalizeRow(testColumns(t), row(number, "Legal", "DOK1"), 9)
		assert.NoError(t, err)
		assert.Equal(t, archive.ActionSkipBlank, action, "number %q", number)
	}
}

func TestNormalizeRow_ShortRowSkipped(t *testing.T) {
	_, action, err := archive.NormalizeRow(testColumns(t), nil, 9)
	assert.NoError(t, err)
	assert.Equal(t, archive.ActionSkipBlank, action)
}

func TestNormalizeRow_OverlongNumberInvalid(t *testing.T) {
	long := strings.Repeat("9", archive.MaxAgreementNumberLen+1)

	_, action, err := archive.NormalizeRow(testColumns(t), row(long, "Legal", ""), 7)

	assert.Equal(t, archive.ActionInvalid, action)
	require.Error(t, err)
	assert.True(t, errors.Is(err, archive.ErrInvalidRow))

	var rowErr *archive.InvalidRowError
	require.ErrorAs(t, err, &rowErr)
	assert.Equal(t, 7, rowErr.Row)
}
