package normalize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/cad-ingest/internal/model"
	"github.com/sells-group/cad-ingest/internal/source"
)

func newTestNormalizer(t *testing.T) *Normalizer {
	t.Helper()
	cat, err := source.LoadCatalog("")
	require.NoError(t, err)
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	return New(cat, loc)
}

func TestNormalize_ChesterfieldRow(t *testing.T) {
	n := newTestNormalizer(t)
	runStart := time.Date(2026, 3, 10, 18, 30, 0, 0, time.UTC)

	call, err := n.Normalize(source.RawRow{
		Source:   model.SourceChesterfield,
		Time:     "14:02",
		Incident: "Disturbance",
		Location: "100 Block of Main St / Oak Ave",
		Agency:   "CCPD",
		Status:   "Dispatched",
	}, runStart)
	require.NoError(t, err)

	assert.Equal(t, "100 Main St AND Oak Ave", call.Location)
	assert.Equal(t, "100 Block of Main St / Oak Ave", call.RawLocation)
	assert.Equal(t, "Chesterfield Police", call.Agency)
	assert.Equal(t, "Chesterfield County, Virginia", call.Jurisdiction)
	assert.Equal(t, "Dispatched", call.Status)
	assert.Equal(t, "Disturbance at 100 Main St AND Oak Ave", call.Description)
	assert.Equal(t, "chesterfield_1402_disturbance_100mainstandoakave", call.CallID)
	assert.Equal(t, time.Date(2026, 3, 10, 18, 2, 0, 0, time.UTC), call.TimeReceived())
	assert.False(t, call.HasCoordinates())
	assert.Empty(t, call.Priority)
}

func TestNormalize_WhitespaceAndCaseVariantsShareCallID(t *testing.T) {
	n := newTestNormalizer(t)
	runStart := time.Date(2026, 3, 10, 18, 30, 0, 0, time.UTC)

	a, err := n.Normalize(source.RawRow{
		Source: model.SourceRichmond, Time: "14:02", Incident: "Larceny", Location: "5 Broad St",
	}, runStart)
	require.NoError(t, err)
	b, err := n.Normalize(source.RawRow{
		Source: model.SourceRichmond, Time: " 14:02 ", Incident: "LARCENY ", Location: "5  broad   st",
	}, runStart)
	require.NoError(t, err)

	assert.Equal(t, a.CallID, b.CallID)
}

func TestNormalize_GISRowKeepsCoordinates(t *testing.T) {
	n := newTestNormalizer(t)
	lat, lon := 37.41, -77.59

	call, err := n.Normalize(source.RawRow{
		Source:    model.SourceHenrico,
		Time:      "5000000000",
		Incident:  "Traffic Accident",
		Location:  "Broad St",
		Agency:    "HCPD",
		Latitude:  &lat,
		Longitude: &lon,
	}, time.Now())
	require.NoError(t, err)

	require.True(t, call.HasCoordinates())
	assert.InDelta(t, 37.41, *call.Latitude, 1e-9)
	assert.InDelta(t, -77.59, *call.Longitude, 1e-9)
	assert.Equal(t, int64(5000000000000), call.TimeReceivedMS)
	assert.Equal(t, "Henrico Police", call.Agency)
	assert.Equal(t, "Henrico County, Virginia", call.Jurisdiction)
	assert.Equal(t, "Active", call.Status)
}

func TestNormalize_InfersAgencyFromIncident(t *testing.T) {
	n := newTestNormalizer(t)
	now := time.Now()

	fire, err := n.Normalize(source.RawRow{
		Source: model.SourceHanover, Time: "", Incident: "Medical Emergency", Location: "1 Court St",
	}, now)
	require.NoError(t, err)
	assert.Equal(t, "Hanover Fire-EMS", fire.Agency)
	assert.Equal(t, "Hanover County, Virginia", fire.Jurisdiction)
	assert.Equal(t, now.UnixMilli(), fire.TimeReceivedMS)

	police, err := n.Normalize(source.RawRow{
		Source: model.SourceHanover, Incident: "Suspicious Vehicle", Location: "1 Court St",
	}, now)
	require.NoError(t, err)
	assert.Equal(t, "Hanover Sheriff", police.Agency)
}

func TestNormalize_UnknownAgencyPassesThrough(t *testing.T) {
	n := newTestNormalizer(t)
	call, err := n.Normalize(source.RawRow{
		Source: model.SourceChesterfield, Time: "1700000000", Incident: "Alarm", Location: "9 Elm St", Agency: "VSP",
	}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "VSP", call.Agency)
	assert.Equal(t, "Virginia", call.Jurisdiction)
}

func TestNormalize_Rejections(t *testing.T) {
	n := newTestNormalizer(t)
	now := time.Now()

	tests := []struct {
		name   string
		row    source.RawRow
		target error
		reason string
	}{
		{
			name:   "missing incident",
			row:    source.RawRow{Source: model.SourceRichmond, Time: "14:02", Location: "5 Broad St"},
			target: ErrMissingField,
			reason: model.SkipMissingField,
		},
		{
			name:   "blank location",
			row:    source.RawRow{Source: model.SourceRichmond, Time: "14:02", Incident: "Alarm", Location: "   "},
			target: ErrMissingField,
			reason: model.SkipMissingField,
		},
		{
			name:   "interstate",
			row:    source.RawRow{Source: model.SourceRichmond, Time: "14:02", Incident: "Crash", Location: "I-95 NB MM 74"},
			target: ErrHighwaySegment,
			reason: model.SkipHighway,
		},
		{
			name:   "segment code",
			row:    source.RawRow{Source: model.SourceChesterfield, Time: "14:02", Incident: "Crash", Location: "EN 288 SB"},
			target: ErrHighwaySegment,
			reason: model.SkipHighway,
		},
		{
			name:   "bad time",
			row:    source.RawRow{Source: model.SourceRichmond, Time: "yesterday", Incident: "Alarm", Location: "5 Broad St"},
			target: ErrBadTime,
			reason: model.SkipBadTime,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := n.Normalize(tt.row, now)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.target)
			assert.Equal(t, tt.reason, SkipReason(err))
		})
	}
}

func TestNormalize_UnknownSource(t *testing.T) {
	n := newTestNormalizer(t)
	_, err := n.Normalize(source.RawRow{Source: "fairfax", Incident: "Alarm", Location: "1 Main St"}, time.Now())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownSource)
	assert.Empty(t, SkipReason(err))
}
