package archive_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/warp/archive-engine/archive"
)

func TestResolveBoxType(t *testing.T) {
	tests := []struct {
		name     string
		box      string
		category string
		want     string
	}{
		{"box text with digits", "DOK123", "Legal", "DOK"},
		{"box text wins over category", "LEG7", "Finance", "LEG"},
		{"box padded with spaces", " BX 12 ", "", "BX"},
		{"empty box uses category prefix", "", "Legal", "LEG"},
		{"nan box uses category prefix", "nan", "finance", "FIN"},
		{"numeric-only box uses category prefix", "123", "Legal", "LEG"},
		{"superscript digits stripped", "DOK²", "Legal", "DOK"},
		{"circled digits stripped", "LEG①②", "", "LEG"},
		{"full-width digits stripped", "DOK１２", "", "DOK"},
		{"superscript-only box uses category prefix", "¹²³", "Finance", "FIN"},
		{"fractions are kept", "DOK½", "", "DOK½"},
		{"short category", "", "Hr", "HR"},
		{"non-ascii category", "", "ärende", "ÄRE"},
		{"nothing usable", "", "", archive.UnknownBoxType},
		{"nan everywhere", "NaN", "nan", archive.UnknownBoxType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, archive.ResolveBoxType(tt.box, tt.category))
		})
	}
}

func TestIsBlankCell(t *testing.T) {
	assert.True(t, archive.IsBlankCell(""))
	assert.True(t, archive.IsBlankCell("   "))
	assert.True(t, archive.IsBlankCell("NaN"))
	assert.False(t, archive.IsBlankCell("nano"))
	assert.False(t, archive.IsBlankCell("0"))
}
