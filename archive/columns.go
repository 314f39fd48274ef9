package archive

import "strings"

// =============================================================================
// COLUMN ROLES
// =============================================================================

// ColumnRole is a canonical field an uploaded column can feed.
type ColumnRole int

const (
	RoleAgreement ColumnRole = iota
	RoleCategory
	RoleBox
)

// Roles lists every role in mapping order.
var Roles = []ColumnRole{RoleAgreement, RoleCategory, RoleBox}

func (r ColumnRole) String() string {
	switch r {
	case RoleAgreement:
		return "agreement"
	case RoleCategory:
		return "category"
	case RoleBox:
		return "box"
	default:
		return "unknown"
	}
}

// Required reports whether an upload must carry a column for this role.
func (r ColumnRole) Required() bool {
	return r == RoleAgreement
}

// roleNeedles are the substrings that identify a role in a folded header.
// "doksl" is the transliterated local spelling of the box column.
var roleNeedles = map[ColumnRole][]string{
	RoleAgreement: {"agreement"},
	RoleCategory:  {"categor"},
	RoleBox:       {"box", "doksl"},
}

// FoldHeader trims and lower-cases header text for matching.
func FoldHeader(header string) string {
	return strings.ToLower(strings.TrimSpace(header))
}

// Matches reports whether header text identifies this role.
func (r ColumnRole) Matches(header string) bool {
	folded := FoldHeader(header)
	for _, needle := range roleNeedles[r] {
		if strings.Contains(folded, needle) {
			return true
		}
	}
	return false
}

// =============================================================================
// COLUMN MAP
// =============================================================================

// ColumnMap records which column index feeds each role.
// A header can serve more than one role.
type ColumnMap struct {
	index map[ColumnRole]int
}

// Index returns the column for role and whether one was mapped.
func (m ColumnMap) Index(role ColumnRole) (int, bool) {
	i, ok := m.index[role]
	return i, ok
}

// Cell returns the raw text feeding role in row, or "" when the role is
// unmapped or the row is short.
func (m ColumnMap) Cell(row []string, role ColumnRole) string {
	i, ok := m.index[role]
	if !ok || i >= len(row) {
		return ""
	}
	return row[i]
}

// MapColumns assigns each role the first header, left to right, that matches it.
// Fails with ErrRequiredColumnMissing when a required role has no column.
func MapColumns(headers []string) (ColumnMap, error) {
	m := ColumnMap{index: make(map[ColumnRole]int, len(Roles))}
	for _, role := range Roles {
		for i, h := range headers {
			if role.Matches(h) {
				m.index[role] = i
				break
			}
		}
		if _, ok := m.index[role]; !ok && role.Required() {
			return ColumnMap{}, &ColumnMissingError{Role: role, Headers: headers}
		}
	}
	return m, nil
}
