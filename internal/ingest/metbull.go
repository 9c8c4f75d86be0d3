package ingest

import (
	"strings"

	"github.com/kervino2/Meteora/internal/model"
)

// Photo defaults for missing parts of a photo cell
const (
	UnknownAuthor      = "Unknown"
	UnspecifiedSource  = "Unspecified"
	NoLink             = "No link"
	photoSeparator     = ";"
	photoPartSeparator = "|"
)

func meteoriteFromRow(row rowReader) model.MeteoriteRecord {
	return model.MeteoriteRecord{
		Name:    row.get("name"),
		Year:    row.get("year"),
		Status:  row.get("status"),
		Fall:    row.get("fall"),
		Place:   row.get("place"),
		Type:    row.get("type"),
		Mass:    row.get("mass"),
		Country: row.get("country", "basic_country"),
		Basic: model.BasicInfo{
			Name:      row.get("basic_name"),
			Abbrev:    row.get("basic_abbrev"),
			Fall:      row.get("basic_fall"),
			YearFound: row.get("basic_yearfound"),
			Country:   row.get("basic_country"),
		},
		Classification: row.get("classification_recomend", "classification"),
		Exact: model.Coordinates{
			Text: row.get("coordinadesexact"),
			Lat:  row.get("coordinadeslat"),
			Lon:  row.get("coordinadeslon"),
		},
		Recommended: model.Coordinates{
			Text: row.get("coordinadesrecomend"),
			Lat:  row.get("coordinadeslatrecomend"),
			Lon:  row.get("coordinadeslonrecomend"),
		},
		MB109: model.MB109{
			Lat:         row.get("datamb109_lat"),
			Lon:         row.get("datamb109_lon"),
			Mass:        row.get("datamb109_mass"),
			Piece:       row.get("datamb109_piece"),
			Class:       row.get("datamb109_class"),
			Weathering:  row.get("datamb109_weathering"),
			Fayalite:    row.get("datamb109_fayalite"),
			Ferrosilite: row.get("datamb109_ferrosilite"),
			Classifier:  row.get("datamb109_classifier"),
			MainMass:    row.get("datamb109_main_mass"),
			Comments:    row.get("datamb109_coments", "datamb109_comments"),
		},
		Photos: ParsePhotos(row.get("fotos", "photos")),
	}
}

// ParsePhotos reads a photo cell of the form "author|reference|link;...".
// Missing parts get the Unknown/Unspecified/No link defaults.
func ParsePhotos(cell string) []model.Photo {
	photos := []model.Photo{}
	for _, entry := range strings.Split(cell, photoSeparator) {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, photoPartSeparator)
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		photos = append(photos, model.Photo{
			Author:    part(parts, 0, UnknownAuthor),
			Reference: part(parts, 1, UnspecifiedSource),
			Link:      part(parts, 2, NoLink),
		})
	}
	return photos
}

func part(parts []string, i int, fallback string) string {
	if i < len(parts) && parts[i] != "" {
		return parts[i]
	}
	return fallback
}
