package source

import (
	"slices"
	"strings"

	"github.com/rotisserie/eris"
)

// Field is a canonical raw-row field a source column can feed.
type Field string

const (
	FieldTime     Field = "time"
	FieldIncident Field = "incident"
	FieldLocation Field = "location"
	FieldAgency   Field = "agency"
	FieldStatus   Field = "status"
)

var knownFields = []Field{FieldTime, FieldIncident, FieldLocation, FieldAgency, FieldStatus}

// ColumnMap assigns table column indexes to fields.
type ColumnMap map[Field]int

// Validate checks the map against a source's minimum column count.
func (m ColumnMap) Validate(minColumns int) error {
	if len(m) == 0 {
		return eris.New("column map is empty")
	}
	for _, req := range []Field{FieldIncident, FieldLocation} {
		if _, ok := m[req]; !ok {
			return eris.Errorf("column map is missing required field %q", req)
		}
	}

	owner := make(map[int]Field, len(m))
	highest := -1
	for f, idx := range m {
		if !slices.Contains(knownFields, f) {
			return eris.Errorf("column map has unknown field %q", f)
		}
		if idx < 0 {
			return eris.Errorf("column map field %q has negative index %d", f, idx)
		}
		if other, dup := owner[idx]; dup {
			return eris.Errorf("column map index %d used by both %q and %q", idx, other, f)
		}
		owner[idx] = f
		highest = max(highest, idx)
	}
	if minColumns < highest+1 {
		return eris.Errorf("min_columns %d is below highest mapped index %d + 1", minColumns, highest)
	}
	return nil
}

// Has reports whether f is mapped.
func (m ColumnMap) Has(f Field) bool {
	_, ok := m[f]
	return ok
}

// cell returns the trimmed text in the column mapped to f, or "".
func (m ColumnMap) cell(cells []string, f Field) string {
	idx, ok := m[f]
	if !ok || idx >= len(cells) {
		return ""
	}
	return strings.TrimSpace(cells[idx])
}

// Row builds a RawRow from positional cells.
func (m ColumnMap) Row(cells []string) RawRow {
	return RawRow{
		Time:     m.cell(cells, FieldTime),
		Incident: m.cell(cells, FieldIncident),
		Location: m.cell(cells, FieldLocation),
		Agency:   m.cell(cells, FieldAgency),
		Status:   m.cell(cells, FieldStatus),
	}
}
