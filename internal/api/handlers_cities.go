package api

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/lox/weatherreminder/internal/models"
	"github.com/lox/weatherreminder/internal/store"
)

type listResponse struct {
	Results any    `json:"results"`
	Count   int    `json:"count"`
	Message string `json:"message,omitempty"`
}

func (s *Server) handleListCities(w http.ResponseWriter, r *http.Request) {
	locations, err := s.store.ListLocations(r.Context())
	if err != nil {
		s.log.Error("list cities", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to list cities.")
		return
	}
	if locations == nil {
		locations = []models.Location{}
	}
	writeJSON(w, http.StatusOK, listResponse{Results: locations, Count: len(locations)})
}

// handleSearchCities never creates locations; that happens when a
// subscription is made.
func (s *Server) handleSearchCities(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, "Query parameter 'q' is required.")
		return
	}

	res, err := s.locations.Search(r.Context(), q, false)
	if err != nil {
		s.log.Error("search cities", zap.String("query", q), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to search cities.")
		return
	}

	switch {
	case len(res.Locations) > 0:
		writeJSON(w, http.StatusOK, listResponse{Results: res.Locations, Count: len(res.Locations)})
	case len(res.Candidates) > 0:
		writeJSON(w, http.StatusOK, listResponse{Results: res.Candidates, Count: len(res.Candidates)})
	default:
		writeJSON(w, http.StatusOK, listResponse{
			Results: []models.Location{},
			Message: "No cities found for '" + q + "'",
		})
	}
}

type cityDetail struct {
	models.Location
	CurrentWeather *models.Point `json:"current_weather"`
}

// handleGetCity returns the city with its current weather. A weather
// failure degrades to the last stored current snapshot, or null.
func (s *Server) handleGetCity(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		writeError(w, http.StatusNotFound, "City not found.")
		return
	}
	loc, err := s.locations.Get(r.Context(), id)
	if errors.Is(err, store.ErrLocationNotFound) {
		writeError(w, http.StatusNotFound, "City not found.")
		return
	}
	if err != nil {
		s.log.Error("get city", zap.Int64("location_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to load city.")
		return
	}

	detail := cityDetail{Location: loc}
	snap, _, err := s.weather.FetchCurrent(r.Context(), loc)
	if err != nil {
		s.log.Warn("current weather unavailable", zap.Int64("location_id", id), zap.Error(err))
		if stored, serr := s.store.GetSnapshot(r.Context(), id, models.PeriodCurrent); serr == nil {
			snap = stored.Data
		}
	}
	if len(snap) > 0 {
		detail.CurrentWeather = &snap[0]
	}
	writeJSON(w, http.StatusOK, detail)
}
