package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/kervino2/Meteora/internal/model"
)

// DefaultExportBatch is the number of rows committed per transaction
const DefaultExportBatch = 100

const schema = `
CREATE TABLE IF NOT EXISTS meteorites (
	name TEXT NOT NULL,
	year TEXT NOT NULL,
	year_num INTEGER,
	status TEXT,
	fall TEXT,
	place TEXT,
	type TEXT,
	mass TEXT,
	mass_num REAL,
	country TEXT,
	classification TEXT,
	lat REAL,
	lon REAL,
	coordinate_source TEXT,
	has_photos INTEGER NOT NULL DEFAULT 0,
	photos TEXT,
	impact_date TEXT,
	impact_energy REAL,
	impact_velocity REAL,
	ai_name TEXT,
	ai_history TEXT,
	ai_importance TEXT,
	ai_discovery TEXT,
	ai_impact TEXT,
	ai_velocity TEXT,
	ai_energy TEXT,
	ai_links TEXT,
	ai_photos TEXT,
	ai_videos TEXT,
	PRIMARY KEY (name, year)
);`

const upsert = `
INSERT INTO meteorites (
	name, year, year_num, status, fall, place, type, mass, mass_num, country, classification,
	lat, lon, coordinate_source, has_photos, photos, impact_date, impact_energy, impact_velocity,
	ai_name, ai_history, ai_importance, ai_discovery, ai_impact, ai_velocity, ai_energy, ai_links, ai_photos, ai_videos
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(name, year) DO UPDATE SET
	year_num = excluded.year_num,
	status = excluded.status,
	fall = excluded.fall,
	place = excluded.place,
	type = excluded.type,
	mass = excluded.mass,
	mass_num = excluded.mass_num,
	country = excluded.country,
	classification = excluded.classification,
	lat = excluded.lat,
	lon = excluded.lon,
	coordinate_source = excluded.coordinate_source,
	has_photos = excluded.has_photos,
	photos = excluded.photos,
	impact_date = excluded.impact_date,
	impact_energy = excluded.impact_energy,
	impact_velocity = excluded.impact_velocity,
	ai_name = excluded.ai_name,
	ai_history = excluded.ai_history,
	ai_importance = excluded.ai_importance,
	ai_discovery = excluded.ai_discovery,
	ai_impact = excluded.ai_impact,
	ai_velocity = excluded.ai_velocity,
	ai_energy = excluded.ai_energy,
	ai_links = excluded.ai_links,
	ai_photos = excluded.ai_photos,
	ai_videos = excluded.ai_videos`

// ExportSQLite upserts records into a SQLite database at dbPath, creating the
// table when needed. Rows are committed in batches. It returns the number of
// rows written.
func ExportSQLite(ctx context.Context, dbPath string, records []model.MeteoriteRecord, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = DefaultExportBatch
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return 0, fmt.Errorf("open sqlite: %w", err)
	}
	defer db.Close()

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout = 5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return 0, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return 0, fmt.Errorf("create schema: %w", err)
	}

	written := 0
	for start := 0; start < len(records); start += batchSize {
		end := start + batchSize
		if end > len(records) {
			end = len(records)
		}
		if err := upsertBatch(ctx, db, records[start:end]); err != nil {
			return written, err
		}
		written += end - start
	}
	return written, nil
}

func upsertBatch(ctx context.Context, db *sql.DB, batch []model.MeteoriteRecord) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsert)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, r := range batch {
		photos, err := json.Marshal(r.Photos)
		if err != nil {
			return fmt.Errorf("marshal photos for %s: %w", r.Key(), err)
		}

		loc, hasLoc := model.ResolveLocation(r)
		var lat, lon sql.NullFloat64
		if hasLoc {
			lat = sql.NullFloat64{Float64: loc.Lat, Valid: true}
			lon = sql.NullFloat64{Float64: loc.Lon, Valid: true}
		}

		var yearNum sql.NullInt64
		if y, ok := r.YearInt(); ok {
			yearNum = sql.NullInt64{Int64: int64(y), Valid: true}
		}

		var impactDate sql.NullString
		var impactEnergy, impactVelocity sql.NullFloat64
		if r.Impact != nil {
			impactDate = sql.NullString{String: r.Impact.Date, Valid: true}
			impactEnergy = nullNumber(r.Impact.Energy)
			impactVelocity = nullNumber(r.Impact.Velocity)
		}

		args := []any{
			r.Name, r.Year, yearNum, r.Status, r.Fall, r.Place, r.Type, r.Mass, nullNumber(r.Mass),
			r.Country, r.Classification, lat, lon, loc.Source, r.HasPhotos(), string(photos),
			impactDate, impactEnergy, impactVelocity,
		}
		for _, spec := range model.Fields() {
			args = append(args, nullField(r.Enrichment, spec.Field))
		}

		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("exec upsert for %s: %w", r.Key(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// nullNumber stores numeric-looking text as REAL and anything else as NULL
func nullNumber(s string) sql.NullFloat64 {
	f, ok := model.LookupNumber(s)
	if !ok {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: f, Valid: true}
}

func nullField(e model.Enrichment, f model.Field) sql.NullString {
	v, ok := e.Get(f)
	if !ok {
		return sql.NullString{}
	}
	return sql.NullString{String: v, Valid: true}
}
