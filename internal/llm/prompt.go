package llm

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/kervino2/Meteora/internal/model"
)

// DefaultMaxReferenceChars caps the retrieved text embedded in a prompt
const DefaultMaxReferenceChars = 15000

// SystemPrompt frames every enrichment request
const SystemPrompt = "You are a meteorite researcher writing clear, factual, popular-science notes. " +
	"You only use the supplied data and reference text."

// BuildPrompt renders the fixed enrichment template for a record. Reference
// text beyond maxRefChars characters is dropped.
func BuildPrompt(rec model.MeteoriteRecord, referenceText string, maxRefChars int) string {
	if maxRefChars <= 0 {
		maxRefChars = DefaultMaxReferenceChars
	}
	referenceText = truncateRunes(strings.TrimSpace(referenceText), maxRefChars)
	if referenceText == "" {
		referenceText = "(no reference text available)"
	}

	var b strings.Builder

	b.WriteString(`Write extended information about the meteorite described below, based on the base data and the reference text.

Focus on:
- History and context of the discovery
- Known impact or consequences (geological, scientific or in the media)
- Origin and type of the meteorite
- Importance for research
- Verifiable news or references (use the links and sources that appear in the text)

Use standard units:
- Velocity in km/s
- Energy in kilotons

Rules:
`)
	fmt.Fprintf(&b, "- If a value is not available, write exactly: %q. Do not explain why it is missing.\n", model.NoInformation)
	b.WriteString(`- Do not invent information without context.
- Respect the base data when present (for example a given mass).
- Put every field on a single line, exactly as labelled below, without quotes.
- Under links, list every reference you used.

Response format (one line per field):

`)
	for _, spec := range model.Fields() {
		fmt.Fprintf(&b, "%s:\n", spec.Label)
	}

	b.WriteString("\nReference text:\n")
	b.WriteString(referenceText)
	b.WriteString("\n\nBase data:\n")

	lat, lon := rec.Exact.Lat, rec.Exact.Lon
	if lat == "" {
		lat, lon = rec.MB109.Lat, rec.MB109.Lon
	}
	mass := rec.Mass
	if mass == "" {
		mass = rec.MB109.Mass
	}
	recType := rec.Type
	if recType == "" {
		recType = rec.MB109.Class
	}

	base := [][2]string{
		{"name", rec.Name},
		{"year", rec.Year},
		{"mass (g)", mass},
		{"country", rec.Country},
		{"place", rec.Place},
		{"type", recType},
		{"classification", rec.Classification},
		{"latitude", lat},
		{"longitude", lon},
		{"weathering", rec.MB109.Weathering},
		{"fayalite", rec.MB109.Fayalite},
		{"ferrosilite", rec.MB109.Ferrosilite},
	}
	if rec.Impact != nil {
		base = append(base,
			[2]string{"impact date", rec.Impact.Date},
			[2]string{"impact altitude (km)", rec.Impact.Altitude},
			[2]string{"impact velocity (km/s)", rec.Impact.Velocity},
			[2]string{"impact energy (kilotons)", rec.Impact.ImpactEnergy},
		)
	}
	for _, kv := range base {
		if strings.TrimSpace(kv[1]) == "" {
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", kv[0], kv[1])
	}

	return b.String()
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
