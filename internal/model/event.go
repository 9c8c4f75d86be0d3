package model

import (
	"strconv"
	"strings"
)

// ImpactEvent is one observed fireball as reported by CNEOS. Values are kept
// as the raw strings of the source table.
type ImpactEvent struct {
	Date         string `json:"date"`
	Lat          string `json:"lat"`
	Lon          string `json:"lon"`
	Altitude     string `json:"alt"`
	Velocity     string `json:"vel"`
	Energy       string `json:"energy"`
	ImpactEnergy string `json:"impact_e"`
}

// Year parses the first four characters of the date
func (e ImpactEvent) Year() (int, bool) {
	d := strings.TrimSpace(e.Date)
	if len(d) < 4 {
		return 0, false
	}
	y, err := strconv.Atoi(d[:4])
	if err != nil {
		return 0, false
	}
	return y, true
}

// YearString returns the first four characters of the date, or the whole date if shorter
func (e ImpactEvent) YearString() string {
	d := strings.TrimSpace(e.Date)
	if len(d) < 4 {
		return d
	}
	return d[:4]
}

// LatLon parses the event coordinates
func (e ImpactEvent) LatLon() (float64, float64, bool) {
	return parseLatLon(e.Lat, e.Lon)
}

// ToImpact converts the event to the impact block stored on a record
func (e ImpactEvent) ToImpact() *Impact {
	return &Impact{
		Date:         e.Date,
		Lat:          e.Lat,
		Lon:          e.Lon,
		Altitude:     e.Altitude,
		Velocity:     e.Velocity,
		Energy:       e.Energy,
		ImpactEnergy: e.ImpactEnergy,
	}
}
