package enrich

import (
	"strings"

	"github.com/kervino2/Meteora/internal/model"
)

// Merge folds a bundle into a copy of rec.
//
// An absent, empty or sentinel field adopts the bundle value (or the sentinel
// when the bundle has nothing). A field that already holds text only grows:
// a new, different value is appended on its own line unless the existing text
// already contains it. Merging the same bundle twice is a no-op.
func Merge(rec model.MeteoriteRecord, b Bundle) model.MeteoriteRecord {
	out := rec.Clone()
	for _, spec := range model.Fields() {
		existing, _ := out.Get(spec.Field)
		incoming := strings.TrimSpace(b[spec.Field])
		if IsSentinel(incoming) {
			incoming = ""
		}
		out.Set(spec.Field, mergeValue(existing, incoming))
	}
	return out
}

func mergeValue(existing, incoming string) string {
	if existing == "" || existing == model.NoInformation {
		if incoming == "" {
			return model.NoInformation
		}
		return incoming
	}
	if incoming == "" || incoming == existing || strings.Contains(existing, incoming) {
		return existing
	}
	return existing + "\n" + incoming
}

// Reject marks every enrichment field of a copy of rec as explicitly unknown,
// keeping values gathered on earlier passes.
func Reject(rec model.MeteoriteRecord) model.MeteoriteRecord {
	return Merge(rec, nil)
}
