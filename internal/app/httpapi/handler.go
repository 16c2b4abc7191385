package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	app "github.com/zonerun/backend/internal/app"
	"github.com/zonerun/backend/internal/app/domain/territory"
	"github.com/zonerun/backend/internal/app/domain/track"
	"github.com/zonerun/backend/internal/app/metrics"
	"github.com/zonerun/backend/internal/app/services/conquest"
	"github.com/zonerun/backend/internal/app/storage"
)

// runnerHeader carries the authenticated runner identity, set by the fronting
// auth layer. Identity issuance itself is outside this service.
const runnerHeader = "X-Runner-ID"

// teamHeader optionally carries the runner's team affiliation.
const teamHeader = "X-Team-ID"

// handler bundles HTTP endpoints for the conquest engine.
type handler struct {
	app *app.Application
}

// NewHandler returns a mux exposing the engine's REST API.
func NewHandler(application *app.Application) http.Handler {
	h := &handler{app: application}
	mux := http.NewServeMux()
	mux.Handle("/conquests", metrics.Instrument("/conquests", http.HandlerFunc(h.conquests)))
	mux.Handle("/territories", metrics.Instrument("/territories", http.HandlerFunc(h.territories)))
	mux.Handle("/territories/", metrics.Instrument("/territories/{cell}", http.HandlerFunc(h.territoryDetail)))
	mux.Handle("/runners/", metrics.Instrument("/runners/{id}", http.HandlerFunc(h.runnerResources)))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Handle("/metrics", metrics.Handler())
	return mux
}

type geoPointPayload struct {
	Lat           float64   `json:"lat"`
	Lon           float64   `json:"lon"`
	SequenceOrder int       `json:"sequenceOrder"`
	Timestamp     time.Time `json:"timestamp"`
}

type conquestPayload struct {
	DistanceKm      float64           `json:"distanceKm"`
	DurationSeconds int               `json:"durationSeconds"`
	OrderedPoints   []geoPointPayload `json:"orderedPoints"`
}

func (h *handler) conquests(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	runnerID, teamID, err := identity(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}

	var payload conquestPayload
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	points := make([]track.GeoPoint, 0, len(payload.OrderedPoints))
	for _, p := range payload.OrderedPoints {
		points = append(points, track.GeoPoint{
			Lat:       p.Lat,
			Lon:       p.Lon,
			Sequence:  p.SequenceOrder,
			Timestamp: p.Timestamp,
		})
	}

	result, err := h.app.Conquest.Submit(r.Context(), runnerID, teamID, conquest.TrackSubmission{
		DistanceKm:      payload.DistanceKm,
		DurationSeconds: payload.DurationSeconds,
		Points:          points,
	})
	if err != nil {
		switch {
		case conquest.IsRejection(err):
			writeError(w, http.StatusBadRequest, err)
		case storage.IsRetryable(err):
			// The submission rolled back cleanly; the client may retry.
			writeError(w, http.StatusServiceUnavailable, err)
		default:
			writeError(w, http.StatusInternalServerError, err)
		}
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

type ownershipView struct {
	Cell       string    `json:"cell"`
	RunnerID   int64     `json:"runnerId"`
	TeamID     *int64    `json:"teamId,omitempty"`
	CapturedAt time.Time `json:"capturedAt"`
}

func (h *handler) territories(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	owns, err := h.app.Territory.ListOwnerships(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}

	views := make([]ownershipView, 0, len(owns))
	for _, own := range owns {
		views = append(views, ownershipView{
			Cell:       own.Cell.Key(),
			RunnerID:   own.RunnerID,
			TeamID:     own.TeamID,
			CapturedAt: own.CapturedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"totalZones": len(views), "zones": views})
}

func (h *handler) territoryDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	key := strings.Trim(strings.TrimPrefix(r.URL.Path, "/territories"), "/")
	cell, err := territory.ParseCellKey(key)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	own, err := h.app.Territory.GetOwnership(r.Context(), cell)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	if own == nil {
		writeJSON(w, http.StatusOK, map[string]any{"status": "FREE", "cell": cell.Key()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "OCCUPIED",
		"cell":   cell.Key(),
		"owner":  ownershipView{Cell: cell.Key(), RunnerID: own.RunnerID, TeamID: own.TeamID, CapturedAt: own.CapturedAt},
	})
}

func (h *handler) runnerResources(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	trimmed := strings.Trim(strings.TrimPrefix(r.URL.Path, "/runners"), "/")
	parts := strings.Split(trimmed, "/")
	if len(parts) != 2 {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	runnerID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid runner id %q", parts[0]))
		return
	}

	switch parts[1] {
	case "tracks":
		tracks, err := h.app.Territory.ListTracks(r.Context(), runnerID)
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"tracks": tracks})
	case "achievements":
		awards, err := h.app.Achievements.Awards(r.Context(), runnerID)
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"totalEarned": len(awards), "awards": awards})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func identity(r *http.Request) (int64, *int64, error) {
	raw := strings.TrimSpace(r.Header.Get(runnerHeader))
	if raw == "" {
		return 0, nil, fmt.Errorf("missing %s header", runnerHeader)
	}
	runnerID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, nil, fmt.Errorf("invalid %s header: %w", runnerHeader, err)
	}

	var teamID *int64
	if rawTeam := strings.TrimSpace(r.Header.Get(teamHeader)); rawTeam != "" {
		id, err := strconv.ParseInt(rawTeam, 10, 64)
		if err != nil {
			return 0, nil, fmt.Errorf("invalid %s header: %w", teamHeader, err)
		}
		teamID = &id
	}
	return runnerID, teamID, nil
}

func decodeJSON(body io.Reader, dst any) error {
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
