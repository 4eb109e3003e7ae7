// Package normalize maps raw source rows onto the canonical call record.
package normalize

import (
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/cad-ingest/internal/model"
	"github.com/sells-group/cad-ingest/internal/source"
)

// Normalization failures. Rows failing with one of these are dropped and
// counted as skipped.
var (
	ErrMissingField   = eris.New("normalize: missing required field")
	ErrHighwaySegment = eris.New("normalize: highway segment")
	ErrBadTime        = eris.New("normalize: unparseable time")
	ErrUnknownSource  = eris.New("normalize: source not in catalog")
)

const defaultStatus = "Active"

// SkipReason maps a normalization error to the skip reason recorded in the
// run report. It returns "" for errors that are not row rejections.
func SkipReason(err error) string {
	switch {
	case errors.Is(err, ErrHighwaySegment):
		return model.SkipHighway
	case errors.Is(err, ErrMissingField):
		return model.SkipMissingField
	case errors.Is(err, ErrBadTime):
		return model.SkipBadTime
	default:
		return ""
	}
}

// Normalizer turns raw rows into canonical calls using the source catalog
// for agency tables and jurisdictions.
type Normalizer struct {
	catalog *source.Catalog
	loc     *time.Location
}

// New creates a Normalizer. A nil location means UTC.
func New(cat *source.Catalog, loc *time.Location) *Normalizer {
	if loc == nil {
		loc = time.UTC
	}
	return &Normalizer{catalog: cat, loc: loc}
}

// Normalize converts row into a call. runStart anchors clock-only times and
// stands in for rows that carry no time at all.
func (n *Normalizer) Normalize(row source.RawRow, runStart time.Time) (*model.Call, error) {
	cfg, ok := n.catalog.Get(row.Source)
	if !ok {
		return nil, eris.Wrapf(ErrUnknownSource, "source %q", row.Source)
	}

	incident := collapseSpace(row.Incident)
	rawLocation := collapseSpace(row.Location)
	if incident == "" {
		return nil, eris.Wrap(ErrMissingField, "incident")
	}
	if rawLocation == "" {
		return nil, eris.Wrap(ErrMissingField, "location")
	}
	if IsHighwaySegment(rawLocation) {
		return nil, eris.Wrapf(ErrHighwaySegment, "%q", rawLocation)
	}
	location := CleanAddress(rawLocation)

	rawTime := strings.TrimSpace(row.Time)
	received := runStart.UTC()
	if rawTime != "" {
		t, err := ParseTime(rawTime, runStart, n.loc)
		if err != nil {
			return nil, eris.Wrap(ErrBadTime, err.Error())
		}
		received = t
	}

	agency := ResolveAgency(cfg, collapseSpace(row.Agency), incident)

	status := collapseSpace(row.Status)
	if status == "" {
		status = cfg.DefaultStatus
	}
	if status == "" {
		status = defaultStatus
	}

	call := &model.Call{
		CallID:       BuildCallID(row.Source, rawTime, incident, location),
		Incident:     incident,
		Location:     location,
		RawLocation:  rawLocation,
		Agency:       agency,
		Status:       status,
		Source:       row.Source,
		Description:  model.BuildDescription(incident, location),
		Jurisdiction: n.catalog.Jurisdiction(agency),
	}
	call.SetTimeReceived(received)
	if row.Latitude != nil && row.Longitude != nil {
		call.SetCoordinates(*row.Latitude, *row.Longitude)
	}
	return call, nil
}
