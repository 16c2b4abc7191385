package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	app "github.com/zonerun/backend/internal/app"
	"github.com/zonerun/backend/internal/app/storage"
	"github.com/zonerun/backend/internal/app/storage/memory"
	"github.com/zonerun/backend/internal/config"
)

func newTestHandler(t *testing.T) http.Handler {
	t.Helper()
	application, err := app.New(app.Stores{}, config.Default().Engine, nil)
	require.NoError(t, err)
	return NewHandler(application)
}

func submitBody(lat1, lon1, lat2, lon2 float64) string {
	return fmt.Sprintf(`{
		"distanceKm": 0.3,
		"durationSeconds": 300,
		"orderedPoints": [
			{"lat": %v, "lon": %v, "sequenceOrder": 1},
			{"lat": %v, "lon": %v, "sequenceOrder": 2}
		]
	}`, lat1, lon1, lat2, lon2)
}

func doRequest(h http.Handler, method, target, runnerID, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if runnerID != "" {
		req.Header.Set("X-Runner-ID", runnerID)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestConquestsCreatesTerritory(t *testing.T) {
	h := newTestHandler(t)

	rec := doRequest(h, http.MethodPost, "/conquests", "42", submitBody(0.0005, 0.0005, 0.0025, 0.0005))
	require.Equal(t, http.StatusCreated, rec.Code)

	var result struct {
		TrackID  string `json:"trackId"`
		Title    string `json:"title"`
		Headline string `json:"headline"`
		Stats    struct {
			New   int `json:"new"`
			Total int `json:"total"`
		} `json:"stats"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.NotEmpty(t, result.TrackID)
	require.Equal(t, "New territory", result.Title)
	require.Equal(t, 3, result.Stats.New)
	require.Equal(t, 3, result.Stats.Total)
	// The very first capture earns a medal, which decorates the headline.
	require.Contains(t, result.Headline, "achievement")

	list := doRequest(h, http.MethodGet, "/territories", "", "")
	require.Equal(t, http.StatusOK, list.Code)
	var zones struct {
		TotalZones int `json:"totalZones"`
		Zones      []struct {
			Cell     string `json:"cell"`
			RunnerID int64  `json:"runnerId"`
		} `json:"zones"`
	}
	require.NoError(t, json.Unmarshal(list.Body.Bytes(), &zones))
	require.Equal(t, 3, zones.TotalZones)
	for _, z := range zones.Zones {
		require.Equal(t, int64(42), z.RunnerID)
	}
}

func TestConquestsRequiresIdentity(t *testing.T) {
	h := newTestHandler(t)
	rec := doRequest(h, http.MethodPost, "/conquests", "", submitBody(0.0005, 0.0005, 0.0025, 0.0005))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestConquestsRejectsMalformedIdentity(t *testing.T) {
	h := newTestHandler(t)
	rec := doRequest(h, http.MethodPost, "/conquests", "not-a-number", submitBody(0.0005, 0.0005, 0.0025, 0.0005))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestConquestsRejectsMalformedBody(t *testing.T) {
	h := newTestHandler(t)
	rec := doRequest(h, http.MethodPost, "/conquests", "42", `{"unknown": true}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConquestsRejectsImplausibleTrack(t *testing.T) {
	h := newTestHandler(t)
	body := `{
		"distanceKm": 20,
		"durationSeconds": 1,
		"orderedPoints": [{"lat": 0.0005, "lon": 0.0005, "sequenceOrder": 1}]
	}`
	rec := doRequest(h, http.MethodPost, "/conquests", "42", body)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "error")
}

// conquerFailStore fails every transaction with a fixed error.
type conquerFailStore struct {
	*memory.Store
	err error
}

func (s *conquerFailStore) Conquer(context.Context, func(storage.ConquestTx) error) error {
	return s.err
}

func newFailingHandler(t *testing.T, storeErr error) http.Handler {
	t.Helper()
	store := &conquerFailStore{Store: memory.New(), err: storeErr}
	application, err := app.New(app.Stores{Territory: store}, config.Default().Engine, nil)
	require.NoError(t, err)
	return NewHandler(application)
}

func TestConquestsRetryableStorageFailureIs503(t *testing.T) {
	h := newFailingHandler(t, &storage.RetryableError{Err: errors.New("deadlock detected")})
	rec := doRequest(h, http.MethodPost, "/conquests", "42", submitBody(0.0005, 0.0005, 0.0025, 0.0005))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestConquestsNonRetryableStorageFailureIs500(t *testing.T) {
	h := newFailingHandler(t, errors.New("constraint violated"))
	rec := doRequest(h, http.MethodPost, "/conquests", "42", submitBody(0.0005, 0.0005, 0.0025, 0.0005))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestConquestsMethodNotAllowed(t *testing.T) {
	h := newTestHandler(t)
	rec := doRequest(h, http.MethodGet, "/conquests", "42", "")
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestTerritoryDetail(t *testing.T) {
	h := newTestHandler(t)

	free := doRequest(h, http.MethodGet, "/territories/0:0", "", "")
	require.Equal(t, http.StatusOK, free.Code)
	require.Contains(t, free.Body.String(), `"FREE"`)

	rec := doRequest(h, http.MethodPost, "/conquests", "42", submitBody(0.0005, 0.0005, 0.0025, 0.0005))
	require.Equal(t, http.StatusCreated, rec.Code)

	occupied := doRequest(h, http.MethodGet, "/territories/0:0", "", "")
	require.Equal(t, http.StatusOK, occupied.Code)
	require.Contains(t, occupied.Body.String(), `"OCCUPIED"`)
	require.Contains(t, occupied.Body.String(), `"runnerId":42`)

	malformed := doRequest(h, http.MethodGet, "/territories/not-a-cell", "", "")
	require.Equal(t, http.StatusBadRequest, malformed.Code)
}

func TestRunnerResources(t *testing.T) {
	h := newTestHandler(t)

	rec := doRequest(h, http.MethodPost, "/conquests", "42", submitBody(0.0005, 0.0005, 0.0025, 0.0005))
	require.Equal(t, http.StatusCreated, rec.Code)

	tracks := doRequest(h, http.MethodGet, "/runners/42/tracks", "", "")
	require.Equal(t, http.StatusOK, tracks.Code)
	require.Contains(t, tracks.Body.String(), `"tracks"`)

	awards := doRequest(h, http.MethodGet, "/runners/42/achievements", "", "")
	require.Equal(t, http.StatusOK, awards.Code)
	var earned struct {
		TotalEarned int `json:"totalEarned"`
	}
	require.NoError(t, json.Unmarshal(awards.Body.Bytes(), &earned))
	require.Equal(t, 1, earned.TotalEarned)

	badID := doRequest(h, http.MethodGet, "/runners/abc/tracks", "", "")
	require.Equal(t, http.StatusBadRequest, badID.Code)

	unknown := doRequest(h, http.MethodGet, "/runners/42/unknown", "", "")
	require.Equal(t, http.StatusNotFound, unknown.Code)
}

func TestHealthz(t *testing.T) {
	h := newTestHandler(t)
	rec := doRequest(h, http.MethodGet, "/healthz", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"ok"`)
}
