package archive

import (
	"strings"
	"unicode"
)

// UnknownBoxType is used when neither the box nor the category text says anything.
const UnknownBoxType = "UNKNOWN"

// categoryPrefixLen is how many leading category characters form a fallback box type.
const categoryPrefixLen = 3

// IsBlankCell reports whether spreadsheet text carries no value.
// Spreadsheet exports render empty numeric cells as "nan".
func IsBlankCell(s string) bool {
	s = strings.TrimSpace(s)
	return s == "" || strings.EqualFold(s, "nan")
}

// ResolveBoxType derives the short box type code for a row.
//
// The box text wins when it still has something left after removing its
// digits ("DOK123" -> "DOK"). Otherwise the first three characters of the
// category, upper-cased ("Legal" -> "LEG"). Otherwise UnknownBoxType.
func ResolveBoxType(box, category string) string {
	if !IsBlankCell(box) {
		stripped := strings.Map(func(r rune) rune {
			if isDigit(r) {
				return -1
			}
			return r
		}, box)
		if t := strings.TrimSpace(stripped); t != "" {
			return t
		}
	}

	if !IsBlankCell(category) {
		runes := []rune(strings.TrimSpace(category))
		if len(runes) > categoryPrefixLen {
			runes = runes[:categoryPrefixLen]
		}
		return strings.ToUpper(string(runes))
	}

	return UnknownBoxType
}

// digitForms lists the digits outside the decimal category: superscripts,
// subscripts and circled or parenthesized digits ("DOK²", "LEG①").
var digitForms = &unicode.RangeTable{
	R16: []unicode.Range16{
		{Lo: 0x00b2, Hi: 0x00b3, Stride: 1},
		{Lo: 0x00b9, Hi: 0x00b9, Stride: 1},
		{Lo: 0x1369, Hi: 0x1371, Stride: 1},
		{Lo: 0x19da, Hi: 0x19da, Stride: 1},
		{Lo: 0x2070, Hi: 0x2070, Stride: 1},
		{Lo: 0x2074, Hi: 0x2079, Stride: 1},
		{Lo: 0x2080, Hi: 0x2089, Stride: 1},
		{Lo: 0x2460, Hi: 0x2468, Stride: 1},
		{Lo: 0x2474, Hi: 0x247c, Stride: 1},
		{Lo: 0x2488, Hi: 0x2490, Stride: 1},
		{Lo: 0x24ea, Hi: 0x24ea, Stride: 1},
		{Lo: 0x24f5, Hi: 0x24fd, Stride: 1},
		{Lo: 0x24ff, Hi: 0x24ff, Stride: 1},
		{Lo: 0x2776, Hi: 0x277e, Stride: 1},
		{Lo: 0x2780, Hi: 0x2788, Stride: 1},
		{Lo: 0x278a, Hi: 0x2792, Stride: 1},
	},
	R32: []unicode.Range32{
		{Lo: 0x10a40, Hi: 0x10a43, Stride: 1},
		{Lo: 0x1f100, Hi: 0x1f10a, Stride: 1},
	},
	LatinOffset: 2,
}

// isDigit reports decimal digits in any script plus digitForms.
// Fractions and other numeric symbols ("½", "Ⅻ") are not digits.
func isDigit(r rune) bool {
	return unicode.IsDigit(r) || unicode.Is(digitForms, r)
}
