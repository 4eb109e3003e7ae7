package geocode

import (
	"math"
	"strings"
)

const earthRadiusKM = 6371.0

// ConfidenceGate rejects hits farther than MaxKM from the centre of the
// queried jurisdiction. Jurisdictions without a known centre are accepted.
type ConfidenceGate struct {
	MaxKM   float64
	Centers map[string]Point
}

// NewConfidenceGate returns nil when maxKM is not positive, which leaves
// the gate disabled.
func NewConfidenceGate(maxKM float64, centers map[string]Point) *ConfidenceGate {
	if maxKM <= 0 {
		return nil
	}
	return &ConfidenceGate{MaxKM: maxKM, Centers: centers}
}

// Accept reports whether p is plausible for jurisdiction.
func (g *ConfidenceGate) Accept(jurisdiction string, p Point) bool {
	if g == nil {
		return true
	}
	for name, c := range g.Centers {
		if strings.EqualFold(name, jurisdiction) {
			return DistanceKM(c, p) <= g.MaxKM
		}
	}
	return true
}

// DistanceKM is the great-circle distance between a and b.
func DistanceKM(a, b Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKM * math.Asin(math.Sqrt(h))
}
