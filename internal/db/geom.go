package db

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
)

// SRID4326 is WGS84 longitude/latitude.
const SRID4326 = 4326

// PointEWKB encodes a lat/lon pair as an SRID 4326 EWKB point for a
// PostGIS geometry column. It returns nil when either coordinate is
// missing so the column stays NULL.
func PointEWKB(lat, lon *float64) ([]byte, error) {
	if lat == nil || lon == nil {
		return nil, nil
	}
	p := geom.NewPointFlat(geom.XY, []float64{*lon, *lat}).SetSRID(SRID4326)
	data, err := ewkb.Marshal(p, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "db: encode point")
	}
	return data, nil
}

// DecodePointEWKB reverses PointEWKB, returning latitude then longitude.
func DecodePointEWKB(data []byte) (lat, lon float64, err error) {
	g, err := ewkb.Unmarshal(data)
	if err != nil {
		return 0, 0, eris.Wrap(err, "db: decode point")
	}
	p, ok := g.(*geom.Point)
	if !ok {
		return 0, 0, eris.Errorf("db: expected point, got %T", g)
	}
	return p.Y(), p.X(), nil
}
