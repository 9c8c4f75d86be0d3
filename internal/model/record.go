package model

import (
	"math"
	"strconv"
	"strings"
)

// NoInformation marks an enrichment field that was computed but has no usable value.
const NoInformation = "No information"

// Key identifies a record in the persisted collection
type Key struct {
	Name string
	Year string
}

// String renders the key for logs and error messages
func (k Key) String() string {
	return k.Name + " (" + k.Year + ")"
}

// Photo is a single MetBull photo reference
type Photo struct {
	Author    string `json:"author"`
	Reference string `json:"reference"`
	Link      string `json:"link"`
}

// Coordinates holds a textual location and its decimal components
type Coordinates struct {
	Text string `json:"text,omitempty"`
	Lat  string `json:"lat"`
	Lon  string `json:"lon"`
}

// LatLon parses the decimal components. ok is false when either is missing or non-numeric.
func (c Coordinates) LatLon() (lat, lon float64, ok bool) {
	return parseLatLon(c.Lat, c.Lon)
}

// BasicInfo mirrors the "basic information" block of a MetBull entry
type BasicInfo struct {
	Name      string `json:"name"`
	Abbrev    string `json:"abbrev"`
	Fall      string `json:"fall"`
	YearFound string `json:"year_found"`
	Country   string `json:"country"`
}

// MB109 holds the Meteoritical Bulletin 109 write-up fields
type MB109 struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	Mass        string `json:"mass"`
	Piece       string `json:"piece"`
	Class       string `json:"class"`
	Weathering  string `json:"weathering"`
	Fayalite    string `json:"fayalite"`
	Ferrosilite string `json:"ferrosilite"`
	Classifier  string `json:"classifier"`
	MainMass    string `json:"main_mass"`
	Comments    string `json:"comments"`
}

// Impact is the fireball observation linked to a record
type Impact struct {
	Date         string `json:"date"`
	Lat          string `json:"lat"`
	Lon          string `json:"lon"`
	Altitude     string `json:"altitude"`
	Velocity     string `json:"velocity"`
	Energy       string `json:"energy"`
	ImpactEnergy string `json:"impact_energy"`
}

// MeteoriteRecord is the unified entity produced by linkage and enriched by the pipeline
type MeteoriteRecord struct {
	Name    string `json:"name"`
	Year    string `json:"year"`
	Status  string `json:"status"`
	Fall    string `json:"fall"`
	Place   string `json:"place"`
	Type    string `json:"type"`
	Mass    string `json:"mass"`
	Country string `json:"country"`

	Basic          BasicInfo `json:"basic"`
	Classification string    `json:"classification"`

	Exact       Coordinates `json:"coordinates_exact"`
	Recommended Coordinates `json:"coordinates_recommended"`
	MB109       MB109       `json:"mb109"`

	Photos []Photo `json:"photos"`
	Impact *Impact `json:"impact,omitempty"`

	Enrichment
}

// Key returns the dedup key of the record
func (r MeteoriteRecord) Key() Key {
	return Key{Name: r.Name, Year: r.Year}
}

// MassGrams coerces the mass to a number. Non-numeric values yield 0.
func (r MeteoriteRecord) MassGrams() float64 {
	return ParseNumber(r.Mass)
}

// HasPhotos reports whether the record carries at least one photo
func (r MeteoriteRecord) HasPhotos() bool {
	return len(r.Photos) > 0
}

// YearInt parses the record year
func (r MeteoriteRecord) YearInt() (int, bool) {
	y, err := strconv.Atoi(strings.TrimSpace(r.Year))
	if err != nil {
		return 0, false
	}
	return y, true
}

// Clone returns a deep copy so pipelines never share slices or pointers
func (r MeteoriteRecord) Clone() MeteoriteRecord {
	out := r
	if r.Photos != nil {
		out.Photos = append([]Photo(nil), r.Photos...)
	}
	if r.Impact != nil {
		impact := *r.Impact
		out.Impact = &impact
	}
	out.Enrichment = r.Enrichment.Clone()
	return out
}

// ParseNumber parses a decimal string, tolerating surrounding spaces and
// thousands separators. Anything else yields 0.
func ParseNumber(s string) float64 {
	f, _ := LookupNumber(s)
	return f
}

// LookupNumber is ParseNumber with an ok flag for callers that must tell 0 from missing
func LookupNumber(s string) (float64, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0, false
	}
	return parseFinite(s)
}

// parseFinite rejects NaN and infinities, which strconv accepts by name
func parseFinite(s string) (float64, bool) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func parseLatLon(latStr, lonStr string) (float64, float64, bool) {
	lat, ok := parseFinite(strings.TrimSpace(latStr))
	if !ok {
		return 0, 0, false
	}
	lon, ok := parseFinite(strings.TrimSpace(lonStr))
	if !ok {
		return 0, 0, false
	}
	return lat, lon, true
}
