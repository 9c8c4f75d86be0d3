package model

// Coordinate sources, in resolution priority order
const (
	SourceMB109       = "mb109"
	SourceImpact      = "impact"
	SourceRecommended = "recommended"
	SourceExact       = "exact"
)

// Location is a resolved display position for a record
type Location struct {
	Lat    float64 `json:"lat"`
	Lon    float64 `json:"lon"`
	Source string  `json:"source"`
}

// ResolveLocation picks the first usable coordinate pair, preferring the
// MB109 write-up, then the matched impact, then the recommended and finally
// the exact coordinates.
func ResolveLocation(r MeteoriteRecord) (Location, bool) {
	if lat, lon, ok := parseLatLon(r.MB109.Lat, r.MB109.Lon); ok {
		return Location{lat, lon, SourceMB109}, true
	}
	if r.Impact != nil {
		if lat, lon, ok := parseLatLon(r.Impact.Lat, r.Impact.Lon); ok {
			return Location{lat, lon, SourceImpact}, true
		}
	}
	if lat, lon, ok := r.Recommended.LatLon(); ok {
		return Location{lat, lon, SourceRecommended}, true
	}
	if lat, lon, ok := r.Exact.LatLon(); ok {
		return Location{lat, lon, SourceExact}, true
	}
	return Location{}, false
}
