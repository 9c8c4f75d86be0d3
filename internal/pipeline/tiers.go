package pipeline

import (
	"strings"

	"golang.org/x/text/cases"

	"github.com/kervino2/Meteora/internal/model"
)

// DefaultMassThreshold is the mass in grams from which a record qualifies
const DefaultMassThreshold = 4000

// Tiers partitions the unified record set. Manual overlaps the other two.
type Tiers struct {
	Qualifying    []model.MeteoriteRecord
	NonQualifying []model.MeteoriteRecord
	Manual        []model.MeteoriteRecord
}

// Qualifies reports whether a record is heavy enough or has photos.
// A non-numeric mass counts as zero.
func Qualifies(rec model.MeteoriteRecord, massThreshold float64) bool {
	return rec.MassGrams() >= massThreshold || rec.HasPhotos()
}

// NameFilter matches record names against a list of substrings with
// Unicode case folding. It is not safe for concurrent use.
type NameFilter struct {
	caser   cases.Caser
	needles []string
}

// NewNameFilter folds the filters once. Blank entries are ignored.
func NewNameFilter(filters []string) *NameFilter {
	f := &NameFilter{caser: cases.Fold()}
	for _, s := range filters {
		if s = strings.TrimSpace(s); s != "" {
			f.needles = append(f.needles, f.caser.String(s))
		}
	}
	return f
}

// Match reports whether name contains any filter
func (f *NameFilter) Match(name string) bool {
	if len(f.needles) == 0 {
		return false
	}
	folded := f.caser.String(name)
	for _, n := range f.needles {
		if strings.Contains(folded, n) {
			return true
		}
	}
	return false
}

// Classify computes the tiers in input order
func Classify(records []model.MeteoriteRecord, massThreshold float64, filters []string) Tiers {
	var t Tiers
	names := NewNameFilter(filters)
	for _, rec := range records {
		if Qualifies(rec, massThreshold) {
			t.Qualifying = append(t.Qualifying, rec)
		} else {
			t.NonQualifying = append(t.NonQualifying, rec)
		}
		if names.Match(rec.Name) {
			t.Manual = append(t.Manual, rec)
		}
	}
	return t
}

// Select returns the tier a mode processes
func (t Tiers) Select(mode string) []model.MeteoriteRecord {
	switch mode {
	case model.ModeQualifying:
		return t.Qualifying
	case model.ModeSkeleton:
		return t.NonQualifying
	default:
		return t.Manual
	}
}
