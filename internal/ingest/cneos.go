package ingest

import (
	"strings"

	"github.com/kervino2/Meteora/internal/model"
)

func eventFromRow(row rowReader) model.ImpactEvent {
	return model.ImpactEvent{
		Date:         row.get("date"),
		Lat:          signed(row.get("lat"), row.get("lat-dir"), "S"),
		Lon:          signed(row.get("lon"), row.get("lon-dir"), "W"),
		Altitude:     row.get("alt"),
		Velocity:     row.get("vel"),
		Energy:       row.get("energy"),
		ImpactEnergy: row.get("impact-e"),
	}
}

// signed applies a hemisphere letter to an unsigned CNEOS coordinate.
// Values that already carry a sign are left alone.
func signed(value, dir, negative string) string {
	if value == "" || !strings.EqualFold(strings.TrimSpace(dir), negative) {
		return value
	}
	if strings.HasPrefix(value, "-") || strings.HasPrefix(value, "+") {
		return value
	}
	return "-" + value
}
