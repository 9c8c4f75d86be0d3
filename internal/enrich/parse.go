// Package enrich turns model output into enrichment fields and folds them
// into records.
package enrich

import (
	"strings"

	"github.com/kervino2/Meteora/internal/model"
)

// minLabelLen is the shortest label accepted for prefix matching
const minLabelLen = 3

// sentinels are values the model uses to say it has nothing
var sentinels = map[string]bool{
	"no information":     true,
	"no information.":    true,
	"no data":            true,
	"no data available":  true,
	"n/a":                true,
	"none":               true,
	"unknown":            true,
	"no hay información": true,
	"no hay informacion": true,
	"no hay datos":       true,
	"sin datos":          true,
	"sin información":    true,
}

// Bundle is the parsed output of one generation call. A present key with an
// empty value means the label was emitted without usable data.
type Bundle map[model.Field]string

// Has reports whether the field slot exists
func (b Bundle) Has(f model.Field) bool {
	_, ok := b[f]
	return ok
}

// IsSentinel reports whether v is an explicit "nothing known" answer
func IsSentinel(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	v = strings.Trim(v, `"'*`)
	return sentinels[v]
}

type labelEntry struct {
	label string
	field model.Field
}

var labels = buildLabels()

func buildLabels() []labelEntry {
	var out []labelEntry
	for _, spec := range model.Fields() {
		out = append(out, labelEntry{strings.ToLower(spec.Label), spec.Field})
		for _, alias := range spec.Aliases {
			out = append(out, labelEntry{strings.ToLower(alias), spec.Field})
		}
	}
	return out
}

// ParseResponse maps "label: value" lines onto enrichment fields. Lines
// without a colon or with an unknown label are ignored.
func ParseResponse(text string) Bundle {
	b := make(Bundle)
	for _, line := range strings.Split(text, "\n") {
		label, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		field, ok := lookupLabel(label)
		if !ok {
			continue
		}

		value = strings.TrimSpace(value)
		if IsSentinel(value) {
			value = ""
		}

		if prev, exists := b[field]; exists && prev != "" && value == "" {
			continue
		}
		b[field] = value
	}
	return b
}

// lookupLabel resolves a possibly truncated label by case-insensitive prefix
// match. Only a label that is a prefix of a known one matches, so longer
// labels such as "impact velocity" never land in the "impact" slot.
func lookupLabel(raw string) (model.Field, bool) {
	label := strings.ToLower(strings.TrimSpace(raw))
	label = strings.TrimLeft(label, "-*# ")
	label = strings.TrimRight(label, "* ")
	if len([]rune(label)) < minLabelLen {
		return 0, false
	}

	for _, e := range labels {
		if strings.HasPrefix(e.label, label) {
			return e.field, true
		}
	}
	return 0, false
}
