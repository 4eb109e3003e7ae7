package source

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestColumnMap_Validate(t *testing.T) {
	good := ColumnMap{FieldTime: 0, FieldIncident: 1, FieldLocation: 2, FieldAgency: 3, FieldStatus: 4}
	assert.NoError(t, good.Validate(5))
	assert.NoError(t, good.Validate(7))

	tests := []struct {
		name string
		cols ColumnMap
		min  int
		want string
	}{
		{"empty", ColumnMap{}, 1, "empty"},
		{"missing location", ColumnMap{FieldIncident: 0}, 1, `required field "location"`},
		{"duplicate index", ColumnMap{FieldIncident: 1, FieldLocation: 1}, 2, "index 1 used by both"},
		{"negative", ColumnMap{FieldIncident: 0, FieldLocation: -1}, 2, "negative index"},
		{"unknown field", ColumnMap{FieldIncident: 0, FieldLocation: 1, Field("unit"): 2}, 3, `unknown field "unit"`},
		{"min too small", good, 4, "min_columns 4 is below"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cols.Validate(tt.min)
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestColumnMap_Row(t *testing.T) {
	cols := ColumnMap{FieldTime: 0, FieldAgency: 1, FieldIncident: 4, FieldLocation: 5, FieldStatus: 6}
	row := cols.Row([]string{" 14:02 ", "RPD", "3rd", "P12", "Larceny", "900 E Broad St", "Enroute"})
	assert.Equal(t, RawRow{
		Time:     "14:02",
		Agency:   "RPD",
		Incident: "Larceny",
		Location: "900 E Broad St",
		Status:   "Enroute",
	}, row)
	assert.True(t, cols.Has(FieldStatus))
	assert.False(t, ColumnMap{FieldIncident: 0}.Has(FieldStatus))
}
