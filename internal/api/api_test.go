package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kervino2/Meteora/internal/model"
	"github.com/kervino2/Meteora/internal/store"
)

type fakeSnapshot struct {
	coll store.Collection
	err  error
}

func (f fakeSnapshot) Load(ctx context.Context) (store.Collection, error) {
	return f.coll, f.err
}

func testCollection() store.Collection {
	recs := []model.MeteoriteRecord{
		{Name: "Chelyabinsk", Year: "2013", Impact: &model.Impact{Lat: "54.8", Lon: "61.1", ImpactEnergy: "440"}},
		{Name: "Hoba", Year: "1920", MB109: model.MB109{Lat: "-19.58", Lon: "17.92"}, Recommended: model.Coordinates{Lat: "1", Lon: "2"}},
		{Name: "Nowhere", Year: "2000"},
		{Name: "São João Nepomuceno", Year: "1960", Exact: model.Coordinates{Lat: "-21.5", Lon: "-43"}},
	}
	coll := store.Collection{}
	for _, r := range recs {
		coll[r.Key()] = r
	}
	return coll
}

type listResponse struct {
	Total  int       `json:"total"`
	Limit  int       `json:"limit"`
	Offset int       `json:"offset"`
	Items  []Summary `json:"items"`
}

func get(t *testing.T, snapshot Snapshot, target string) *httptest.ResponseRecorder {
	t.Helper()
	router := NewRouter(snapshot, nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	rec := get(t, fakeSnapshot{}, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestList(t *testing.T) {
	rec := get(t, fakeSnapshot{coll: testCollection()}, "/meteorites")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp listResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 4, resp.Total)
	require.Len(t, resp.Items, 4)

	chelyabinsk := resp.Items[0]
	assert.Equal(t, "Chelyabinsk", chelyabinsk.Name)
	assert.Equal(t, "440", chelyabinsk.ImpactEnergy)
	require.NotNil(t, chelyabinsk.Lat)
	assert.InDelta(t, 54.8, *chelyabinsk.Lat, 1e-9)
	assert.Equal(t, model.SourceImpact, chelyabinsk.Source)

	hoba := resp.Items[1]
	require.NotNil(t, hoba.Lon)
	assert.InDelta(t, 17.92, *hoba.Lon, 1e-9)
	assert.Equal(t, model.SourceMB109, hoba.Source)

	nowhere := resp.Items[2]
	assert.Nil(t, nowhere.Lat)
	assert.Nil(t, nowhere.Lon)
	assert.Empty(t, nowhere.Source)
}

func TestList_NonFiniteCoordinates(t *testing.T) {
	coll := store.Collection{}
	for _, r := range []model.MeteoriteRecord{
		{Name: "Broken", Year: "1990", Exact: model.Coordinates{Lat: "NaN", Lon: "NaN"}},
		{Name: "Hoba", Year: "1920", MB109: model.MB109{Lat: "-19.58", Lon: "17.92"}},
	} {
		coll[r.Key()] = r
	}

	rec := get(t, fakeSnapshot{coll: coll}, "/meteorites")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp listResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Items, 2)
	assert.Equal(t, "Broken", resp.Items[0].Name)
	assert.Nil(t, resp.Items[0].Lat)
	assert.Nil(t, resp.Items[0].Lon)
	require.NotNil(t, resp.Items[1].Lat)
	assert.InDelta(t, -19.58, *resp.Items[1].Lat, 1e-9)
}

func TestList_QueryAndPaging(t *testing.T) {
	rec := get(t, fakeSnapshot{coll: testCollection()}, "/meteorites?q="+url.QueryEscape("SÃO"))
	var resp listResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Total)
	assert.Equal(t, "São João Nepomuceno", resp.Items[0].Name)

	rec = get(t, fakeSnapshot{coll: testCollection()}, "/meteorites?limit=2&offset=1")
	resp = listResponse{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 4, resp.Total)
	assert.Equal(t, 2, resp.Limit)
	assert.Equal(t, 1, resp.Offset)
	require.Len(t, resp.Items, 2)
	assert.Equal(t, "Hoba", resp.Items[0].Name)
	assert.Equal(t, "Nowhere", resp.Items[1].Name)

	rec = get(t, fakeSnapshot{coll: testCollection()}, "/meteorites?limit=abc&offset=-3")
	resp = listResponse{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, defaultLimit, resp.Limit)
	assert.Equal(t, 0, resp.Offset)
}

func TestGetOne(t *testing.T) {
	rec := get(t, fakeSnapshot{coll: testCollection()}, "/meteorites/Hoba/1920")
	require.Equal(t, http.StatusOK, rec.Code)

	var got model.MeteoriteRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "Hoba", got.Name)
	assert.Equal(t, "-19.58", got.MB109.Lat)

	rec = get(t, fakeSnapshot{coll: testCollection()}, "/meteorites/Hoba/1921")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLoadFailure(t *testing.T) {
	snap := fakeSnapshot{err: errors.New("disk gone")}
	assert.Equal(t, http.StatusInternalServerError, get(t, snap, "/meteorites").Code)
	assert.Equal(t, http.StatusInternalServerError, get(t, snap, "/meteorites/Hoba/1920").Code)
}

func TestServe_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Serve(ctx, "127.0.0.1:0", fakeSnapshot{}, nil)
	assert.NoError(t, err)
}
