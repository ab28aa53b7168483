package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lox/weatherreminder/internal/models"
	"github.com/lox/weatherreminder/internal/store"
	"github.com/lox/weatherreminder/internal/weather"
)

const historyPageSize = 20

type cityRef struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Country string `json:"country"`
}

type WeatherResponse struct {
	City           cityRef         `json:"city"`
	Period         models.Period   `json:"period"`
	Data           models.Snapshot `json:"data"`
	ItemsCount     int             `json:"items_count"`
	FetchedAt      time.Time       `json:"fetched_at"`
	TimezoneOffset int             `json:"timezone_offset"`
}

func validPeriods() string {
	names := make([]string, len(models.Periods))
	for i, p := range models.Periods {
		names[i] = string(p)
	}
	return strings.Join(names, ", ")
}

func (s *Server) handleWeather(w http.ResponseWriter, r *http.Request) {
	period := models.Period(strings.TrimSpace(r.URL.Query().Get("period")))
	if period == "" {
		period = models.PeriodCurrent
	}
	if !period.Valid() {
		writeError(w, http.StatusBadRequest, "Invalid period. Valid options: "+validPeriods())
		return
	}

	loc, ok := s.lookupCity(w, r)
	if !ok {
		return
	}

	snap, offset, err := s.weather.FetchForecast(r.Context(), loc, period)
	if errors.Is(err, weather.ErrInvalidPeriod) {
		writeError(w, http.StatusBadRequest, "Invalid period. Valid options: "+validPeriods())
		return
	}
	if err != nil {
		s.log.Error("fetch weather failed",
			zap.Int64("location_id", loc.ID), zap.String("period", string(period)), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to fetch weather data. Please try again later.")
		return
	}
	if snap == nil {
		snap = models.Snapshot{}
	}

	writeJSON(w, http.StatusOK, WeatherResponse{
		City:           cityRef{ID: loc.ID, Name: loc.Name, Country: loc.Country},
		Period:         period,
		Data:           snap,
		ItemsCount:     len(snap),
		FetchedAt:      time.Now().UTC(),
		TimezoneOffset: offset,
	})
}

type historyResponse struct {
	Count    int                     `json:"count"`
	Page     int                     `json:"page"`
	NumPages int                     `json:"num_pages"`
	Results  []models.StoredSnapshot `json:"results"`
}

// handleWeatherHistory lists stored snapshots for a city. The store keeps
// one row per period, so this is the latest data per period rather than a
// time series.
func (s *Server) handleWeatherHistory(w http.ResponseWriter, r *http.Request) {
	page := 1
	if raw := r.URL.Query().Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "Invalid page.")
			return
		}
		page = n
	}

	loc, ok := s.lookupCity(w, r)
	if !ok {
		return
	}

	snaps, total, err := s.store.ListSnapshots(r.Context(), loc.ID, historyPageSize, (page-1)*historyPageSize)
	if err != nil {
		s.log.Error("list history", zap.Int64("location_id", loc.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to load weather history.")
		return
	}
	numPages := (total + historyPageSize - 1) / historyPageSize
	if page > 1 && page > numPages {
		writeError(w, http.StatusNotFound, "Invalid page.")
		return
	}
	if snaps == nil {
		snaps = []models.StoredSnapshot{}
	}
	writeJSON(w, http.StatusOK, historyResponse{Count: total, Page: page, NumPages: numPages, Results: snaps})
}

func (s *Server) lookupCity(w http.ResponseWriter, r *http.Request) (models.Location, bool) {
	id, ok := idParam(r)
	if !ok {
		writeError(w, http.StatusNotFound, "City not found.")
		return models.Location{}, false
	}
	loc, err := s.locations.Get(r.Context(), id)
	if errors.Is(err, store.ErrLocationNotFound) {
		writeError(w, http.StatusNotFound, "City not found.")
		return models.Location{}, false
	}
	if err != nil {
		s.log.Error("get city", zap.Int64("location_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to load city.")
		return models.Location{}, false
	}
	return loc, true
}
