// Package api serves the enriched snapshot over a read-only HTTP API.
package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"golang.org/x/text/cases"

	"github.com/kervino2/Meteora/internal/model"
	"github.com/kervino2/Meteora/internal/store"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
)

// Snapshot loads the current collection
type Snapshot interface {
	Load(ctx context.Context) (store.Collection, error)
}

// Summary is the list view of one record
type Summary struct {
	Name         string   `json:"name"`
	Year         string   `json:"year"`
	ImpactEnergy string   `json:"impact_energy,omitempty"`
	Lat          *float64 `json:"lat"`
	Lon          *float64 `json:"lon"`
	Source       string   `json:"location_source,omitempty"`
}

// Handler exposes the snapshot routes
type Handler struct {
	snapshot Snapshot
}

// NewHandler creates a Handler reading from snapshot
func NewHandler(snapshot Snapshot) *Handler {
	return &Handler{snapshot: snapshot}
}

// RegisterRoutes mounts the meteorite routes on rg
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.list)               // GET /meteorites
	rg.GET("/:name/:year", h.getOne) // GET /meteorites/:name/:year
}

func (h *Handler) list(c *gin.Context) {
	coll, err := h.snapshot.Load(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load failed"})
		return
	}

	limit := parseInt(c.Query("limit"), defaultLimit)
	if limit <= 0 || limit > maxLimit {
		limit = defaultLimit
	}
	offset := parseInt(c.Query("offset"), 0)
	if offset < 0 {
		offset = 0
	}

	q := strings.TrimSpace(c.Query("q"))
	fold := cases.Fold()
	q = fold.String(q)

	items := make([]Summary, 0)
	total := 0
	for _, rec := range coll.Records() {
		if q != "" && !strings.Contains(fold.String(rec.Name), q) {
			continue
		}
		total++
		if total <= offset || len(items) >= limit {
			continue
		}
		items = append(items, summarize(rec))
	}

	c.JSON(http.StatusOK, gin.H{
		"total":  total,
		"limit":  limit,
		"offset": offset,
		"items":  items,
	})
}

func (h *Handler) getOne(c *gin.Context) {
	coll, err := h.snapshot.Load(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load failed"})
		return
	}
	rec, ok := coll[model.Key{Name: c.Param("name"), Year: c.Param("year")}]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

func summarize(rec model.MeteoriteRecord) Summary {
	s := Summary{Name: rec.Name, Year: rec.Year}
	if rec.Impact != nil {
		s.ImpactEnergy = rec.Impact.ImpactEnergy
	}
	if loc, ok := model.ResolveLocation(rec); ok {
		s.Lat, s.Lon = &loc.Lat, &loc.Lon
		s.Source = loc.Source
	}
	return s
}

func parseInt(s string, def int) int {
	if strings.TrimSpace(s) == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
