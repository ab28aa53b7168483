package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lox/weatherreminder/internal/models"
	"github.com/lox/weatherreminder/internal/store"
)

// UserHeader carries the authenticated user id, set by the fronting auth
// layer.
const UserHeader = "X-User-ID"

type userKey struct{}

func requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := strings.TrimSpace(r.Header.Get(UserHeader))
		if user == "" {
			writeError(w, http.StatusUnauthorized, "Authentication credentials were not provided.")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey{}, user)))
	})
}

func userFrom(ctx context.Context) string {
	user, _ := ctx.Value(userKey{}).(string)
	return user
}

type cityData struct {
	Name    string   `json:"name" validate:"required"`
	Country string   `json:"country" validate:"required"`
	Lat     *float64 `json:"lat" validate:"required,gte=-90,lte=90"`
	Lon     *float64 `json:"lon" validate:"required,gte=-180,lte=180"`
}

type createSubscriptionRequest struct {
	CityID           int64     `json:"city_id" validate:"omitempty,gt=0"`
	CityData         *cityData `json:"city_data"`
	Period           int       `json:"period" validate:"required,oneof=1 3 6 12 24"`
	ForecastPeriod   string    `json:"forecast_period" validate:"omitempty,oneof=current hourly today tomorrow 3days week"`
	NotificationType string    `json:"notification_type" validate:"omitempty,oneof=email webhook both"`
	IsActive         *bool     `json:"is_active"`
}

type updateSubscriptionRequest struct {
	Period           *int    `json:"period" validate:"omitempty,oneof=1 3 6 12 24"`
	ForecastPeriod   *string `json:"forecast_period" validate:"omitempty,oneof=current hourly today tomorrow 3days week"`
	NotificationType *string `json:"notification_type" validate:"omitempty,oneof=email webhook both"`
	IsActive         *bool   `json:"is_active"`
}

type SubscriptionResponse struct {
	ID               int64                   `json:"id"`
	User             string                  `json:"user"`
	City             models.Location         `json:"city"`
	Period           int                     `json:"period"`
	ForecastPeriod   models.Period           `json:"forecast_period"`
	NotificationType models.NotificationType `json:"notification_type"`
	IsActive         bool                    `json:"is_active"`
	LastNotifiedAt   *time.Time              `json:"last_notified_at"`
	CreatedAt        time.Time               `json:"created_at"`
	UpdatedAt        time.Time               `json:"updated_at"`
}

func (s *Server) subscriptionResponse(ctx context.Context, sub models.Subscription) (SubscriptionResponse, error) {
	loc, err := s.store.GetLocation(ctx, sub.LocationID)
	if err != nil {
		return SubscriptionResponse{}, err
	}
	resp := SubscriptionResponse{
		ID:               sub.ID,
		User:             sub.UserID,
		City:             loc,
		Period:           sub.IntervalHours,
		ForecastPeriod:   sub.ForecastPeriod,
		NotificationType: sub.NotificationType,
		IsActive:         sub.Active,
		CreatedAt:        sub.CreatedAt,
		UpdatedAt:        sub.UpdatedAt,
	}
	if sub.LastNotifiedAt.Valid {
		t := sub.LastNotifiedAt.Time
		resp.LastNotifiedAt = &t
	}
	return resp, nil
}

func (s *Server) handleListSubscriptions(w http.ResponseWriter, r *http.Request) {
	subs, err := s.store.ListSubscriptions(r.Context(), userFrom(r.Context()))
	if err != nil {
		s.log.Error("list subscriptions", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to list subscriptions.")
		return
	}

	out := make([]SubscriptionResponse, 0, len(subs))
	for _, sub := range subs {
		resp, err := s.subscriptionResponse(r.Context(), sub)
		if err != nil {
			s.log.Error("load subscription city", zap.Int64("subscription_id", sub.ID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "Failed to list subscriptions.")
			return
		}
		out = append(out, resp)
	}
	writeJSON(w, http.StatusOK, listResponse{Results: out, Count: len(out)})
}

func (s *Server) handleCreateSubscription(w http.ResponseWriter, r *http.Request) {
	var req createSubscriptionRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body.")
		return
	}
	if req.CityID == 0 && req.CityData == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"city_id": "Either city_id or city_data must be provided."})
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, validationErrors(err))
		return
	}

	ctx := r.Context()
	var loc models.Location
	if req.CityID != 0 {
		var err error
		loc, err = s.locations.Get(ctx, req.CityID)
		if errors.Is(err, store.ErrLocationNotFound) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"city_id": "City not found."})
			return
		}
		if err != nil {
			s.log.Error("get city", zap.Int64("location_id", req.CityID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "Failed to create subscription.")
			return
		}
	} else {
		var err error
		loc, _, err = s.locations.GetOrCreate(ctx, req.CityData.Name, req.CityData.Country, *req.CityData.Lat, *req.CityData.Lon)
		if err != nil {
			s.log.Error("get or create city", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "Failed to create subscription.")
			return
		}
	}

	sub := models.Subscription{
		UserID:           userFrom(ctx),
		LocationID:       loc.ID,
		IntervalHours:    req.Period,
		ForecastPeriod:   models.Period(req.ForecastPeriod),
		NotificationType: models.NotificationType(req.NotificationType),
		Active:           true,
	}
	if sub.ForecastPeriod == "" {
		sub.ForecastPeriod = models.PeriodCurrent
	}
	if sub.NotificationType == "" {
		sub.NotificationType = models.NotifyEmail
	}
	if req.IsActive != nil {
		sub.Active = *req.IsActive
	}

	sub, err := s.store.CreateSubscription(ctx, sub)
	if errors.Is(err, store.ErrDuplicateSubscription) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"city_id": "You are already subscribed to this city."})
		return
	}
	if err != nil {
		s.log.Error("create subscription", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to create subscription.")
		return
	}

	s.log.Info("subscription created",
		zap.Int64("subscription_id", sub.ID), zap.String("user_id", sub.UserID), zap.Int64("location_id", loc.ID))
	resp, err := s.subscriptionResponse(ctx, sub)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create subscription.")
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

// ownSubscription loads the path subscription for the current user. Other
// users' subscriptions are reported as not found.
func (s *Server) ownSubscription(w http.ResponseWriter, r *http.Request) (models.Subscription, bool) {
	id, ok := idParam(r)
	if !ok {
		writeError(w, http.StatusNotFound, "Not found.")
		return models.Subscription{}, false
	}
	sub, err := s.store.GetSubscription(r.Context(), userFrom(r.Context()), id)
	if errors.Is(err, store.ErrSubscriptionNotFound) {
		writeError(w, http.StatusNotFound, "Not found.")
		return models.Subscription{}, false
	}
	if err != nil {
		s.log.Error("get subscription", zap.Int64("subscription_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to load subscription.")
		return models.Subscription{}, false
	}
	return sub, true
}

func (s *Server) handleGetSubscription(w http.ResponseWriter, r *http.Request) {
	sub, ok := s.ownSubscription(w, r)
	if !ok {
		return
	}
	resp, err := s.subscriptionResponse(r.Context(), sub)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load subscription.")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUpdateSubscription(w http.ResponseWriter, r *http.Request) {
	sub, ok := s.ownSubscription(w, r)
	if !ok {
		return
	}

	var req updateSubscriptionRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body.")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, validationErrors(err))
		return
	}

	if req.Period != nil {
		sub.IntervalHours = *req.Period
	}
	if req.ForecastPeriod != nil {
		sub.ForecastPeriod = models.Period(*req.ForecastPeriod)
	}
	if req.NotificationType != nil {
		sub.NotificationType = models.NotificationType(*req.NotificationType)
	}
	if req.IsActive != nil {
		sub.Active = *req.IsActive
	}

	sub, err := s.store.UpdateSubscription(r.Context(), sub)
	if errors.Is(err, store.ErrSubscriptionNotFound) {
		writeError(w, http.StatusNotFound, "Not found.")
		return
	}
	if err != nil {
		s.log.Error("update subscription", zap.Int64("subscription_id", sub.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to update subscription.")
		return
	}
	resp, err := s.subscriptionResponse(r.Context(), sub)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to update subscription.")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDeleteSubscription(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		writeError(w, http.StatusNotFound, "Not found.")
		return
	}
	err := s.store.DeleteSubscription(r.Context(), userFrom(r.Context()), id)
	if errors.Is(err, store.ErrSubscriptionNotFound) {
		writeError(w, http.StatusNotFound, "Not found.")
		return
	}
	if err != nil {
		s.log.Error("delete subscription", zap.Int64("subscription_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to delete subscription.")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
