package source

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/cad-ingest/internal/fetcher"
	"github.com/sells-group/cad-ingest/internal/model"
)

const (
	defaultPageSize   = 1000
	defaultMaxRecords = 5000
)

// featurePage is one response from an ArcGIS FeatureServer query.
type featurePage struct {
	Features []struct {
		Attributes map[string]any `json:"attributes"`
		Geometry   *struct {
			X *float64 `json:"x"`
			Y *float64 `json:"y"`
		} `json:"geometry"`
	} `json:"features"`
	ExceededTransferLimit bool `json:"exceededTransferLimit"`
	Error                 *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// FeatureServerAdapter pages through a FeatureServer layer query.
type FeatureServerAdapter struct {
	cfg     SourceConfig
	fetcher fetcher.Fetcher
	log     *zap.Logger
}

// NewFeatureServerAdapter builds the adapter. cfg must already be validated.
func NewFeatureServerAdapter(cfg SourceConfig, f fetcher.Fetcher) *FeatureServerAdapter {
	return &FeatureServerAdapter{
		cfg:     cfg,
		fetcher: f,
		log:     zap.L().With(zap.String("component", "source.featureserver"), zap.String("source", string(cfg.Name))),
	}
}

func (a *FeatureServerAdapter) Name() model.Source { return a.cfg.Name }
func (a *FeatureServerAdapter) Kind() Kind         { return KindFeatureServer }

// Fetch requests pages newest-first until the server stops reporting more
// or max_records is reached.
func (a *FeatureServerAdapter) Fetch(ctx context.Context) ([]RawRow, error) {
	pageSize := a.cfg.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	maxRecords := a.cfg.MaxRecords
	if maxRecords <= 0 {
		maxRecords = defaultMaxRecords
	}

	var rows []RawRow
	for offset := 0; offset < maxRecords; offset += pageSize {
		page, err := fetcher.GetJSON[featurePage](ctx, a.fetcher, a.queryURL(offset, min(pageSize, maxRecords-offset)))
		if err != nil {
			return nil, eris.Wrapf(err, "source %s: query offset %d", a.cfg.Name, offset)
		}
		if page.Error != nil {
			return nil, eris.Errorf("source %s: featureserver error %d: %s", a.cfg.Name, page.Error.Code, page.Error.Message)
		}
		for _, f := range page.Features {
			row := a.rowFrom(f.Attributes)
			if row.Latitude == nil && f.Geometry != nil && f.Geometry.X != nil && f.Geometry.Y != nil {
				lat, lon := *f.Geometry.Y, *f.Geometry.X
				row.Latitude, row.Longitude = &lat, &lon
			}
			rows = append(rows, row)
		}
		if !page.ExceededTransferLimit || len(page.Features) == 0 {
			break
		}
	}
	a.log.Debug("featureserver fetched", zap.Int("features", len(rows)))
	return rows, nil
}

func (a *FeatureServerAdapter) queryURL(offset, count int) string {
	q := url.Values{}
	q.Set("where", "1=1")
	q.Set("outFields", "*")
	q.Set("orderByFields", a.cfg.Fields.Time+" DESC")
	q.Set("resultRecordCount", strconv.Itoa(count))
	q.Set("resultOffset", strconv.Itoa(offset))
	q.Set("returnGeometry", "true")
	q.Set("outSR", "4326")
	q.Set("f", "json")

	sep := "?"
	if strings.Contains(a.cfg.URL, "?") {
		sep = "&"
	}
	return a.cfg.URL + sep + q.Encode()
}

func (a *FeatureServerAdapter) rowFrom(attrs map[string]any) RawRow {
	f := a.cfg.Fields
	row := RawRow{
		Source:     a.cfg.Name,
		Time:       attrString(attrs, f.Time),
		Incident:   attrString(attrs, f.Incident),
		Location:   attrString(attrs, f.Location),
		Agency:     attrString(attrs, f.Agency),
		Status:     attrString(attrs, f.Status),
		Attributes: attrs,
	}
	if f.Latitude != "" {
		lat, latOK := attrFloat(attrs, f.Latitude)
		lon, lonOK := attrFloat(attrs, f.Longitude)
		if latOK && lonOK && !(lat == 0 && lon == 0) {
			row.Latitude, row.Longitude = &lat, &lon
		}
	}
	return row
}

// attrString renders an attribute as text. Whole numbers print without a
// decimal point so epoch timestamps keep their digits.
func attrString(attrs map[string]any, key string) string {
	if key == "" {
		return ""
	}
	switch v := attrs[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case float64:
		if v == math.Trunc(v) && math.Abs(v) < 1e15 {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func attrFloat(attrs map[string]any, key string) (float64, bool) {
	switch v := attrs[key].(type) {
	case float64:
		return v, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
