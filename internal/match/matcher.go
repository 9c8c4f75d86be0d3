// Package match links meteorite records to observed fireball events.
//
// Linkage is a greedy nearest-neighbour pass: records are visited in input
// order and each claims the closest unconsumed event inside the distance and
// year window. There is no global optimisation or reassignment, so a record
// can lose its nearest event to one processed earlier. Events left over become
// synthetic records of their own.
package match

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/kervino2/Meteora/internal/model"
)

const (
	// DefaultMaxDistance is the exclusive upper bound on (lat, lon) distance in degrees
	DefaultMaxDistance = 0.5
	// DefaultYearTolerance is the inclusive bound on |event year - record year|
	DefaultYearTolerance = 1

	syntheticStatus  = "Unknown"
	syntheticPlace   = "Unidentified"
	syntheticComment = "Only the impact is on record; no associated meteorite."
)

// Matcher pairs records with impact events
type Matcher struct {
	maxDistance   float64
	yearTolerance int
	logger        *slog.Logger
}

// Option configures a Matcher
type Option func(*Matcher)

// WithMaxDistance overrides the distance threshold
func WithMaxDistance(d float64) Option {
	return func(m *Matcher) {
		if d > 0 {
			m.maxDistance = d
		}
	}
}

// WithYearTolerance overrides the year window
func WithYearTolerance(years int) Option {
	return func(m *Matcher) {
		if years >= 0 {
			m.yearTolerance = years
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(m *Matcher) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// New creates a Matcher with the default thresholds
func New(opts ...Option) *Matcher {
	m := &Matcher{
		maxDistance:   DefaultMaxDistance,
		yearTolerance: DefaultYearTolerance,
		logger:        slog.Default().With("component", "matcher"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Result is the unified record set
type Result struct {
	Records   []model.MeteoriteRecord
	Matched   int
	Synthetic int
}

// Match links records to events. Input slices are not modified.
func (m *Matcher) Match(records []model.MeteoriteRecord, events []model.ImpactEvent) Result {
	consumed := make([]bool, len(events))
	out := make([]model.MeteoriteRecord, 0, len(records)+len(events))
	matched := 0

	for _, rec := range records {
		rec = rec.Clone()
		if idx := m.nearest(rec, events, consumed); idx >= 0 {
			consumed[idx] = true
			rec.Impact = events[idx].ToImpact()
			matched++
		}
		out = append(out, rec)
	}

	synthetic := 0
	for i, ev := range events {
		if consumed[i] {
			continue
		}
		synthetic++
		out = append(out, syntheticRecord(synthetic, ev))
	}

	m.logger.Info("linkage complete",
		"records", len(records),
		"events", len(events),
		"matched", matched,
		"synthetic", synthetic)

	return Result{Records: out, Matched: matched, Synthetic: synthetic}
}

// nearest returns the index of the closest eligible event, or -1
func (m *Matcher) nearest(rec model.MeteoriteRecord, events []model.ImpactEvent, consumed []bool) int {
	lat, lon, ok := rec.Exact.LatLon()
	if !ok {
		return -1
	}
	year, ok := rec.YearInt()
	if !ok {
		return -1
	}

	best := -1
	bestDist := math.Inf(1)
	for i, ev := range events {
		if consumed[i] {
			continue
		}
		evLat, evLon, ok := ev.LatLon()
		if !ok {
			continue
		}
		evYear, ok := ev.Year()
		if !ok {
			continue
		}
		if abs(evYear-year) > m.yearTolerance {
			continue
		}
		d := math.Hypot(evLat-lat, evLon-lon)
		if d < m.maxDistance && d < bestDist {
			best = i
			bestDist = d
		}
	}
	return best
}

func syntheticRecord(n int, ev model.ImpactEvent) model.MeteoriteRecord {
	return model.MeteoriteRecord{
		Name:           fmt.Sprintf("Impact %d", n),
		Year:           ev.YearString(),
		Status:         syntheticStatus,
		Place:          syntheticPlace,
		Classification: model.NoInformation,
		Exact: model.Coordinates{
			Lat: ev.Lat,
			Lon: ev.Lon,
		},
		MB109: model.MB109{
			Comments: syntheticComment,
		},
		Photos: []model.Photo{},
		Impact: ev.ToImpact(),
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
