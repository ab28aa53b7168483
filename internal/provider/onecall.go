package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"github.com/lox/weatherreminder/internal/models"
)

// Exclude lists passed to One Call, one per data need.
const (
	ExcludeForCurrent  = "minutely,hourly,daily,alerts"
	ExcludeForHourly   = "current,minutely,daily,alerts"
	ExcludeForDaily    = "current,minutely,hourly,alerts"
	ExcludeForTimezone = "current,minutely,hourly,daily,alerts"
)

// OneCall fetches weather for (lat, lon) in metric units with the given
// exclude list.
func (c *Client) OneCall(ctx context.Context, lat, lon float64, exclude string) (*OneCallResponse, error) {
	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	params.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	params.Set("units", "metric")
	params.Set("appid", c.apiKey)
	if exclude != "" {
		params.Set("exclude", exclude)
	}

	body, err := c.get(ctx, "onecall", c.oneCallBreaker, c.oneCallURL, params)
	if err != nil {
		return nil, err
	}

	var resp OneCallResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: decode onecall: %v", ErrUpstreamUnavailable, err)
	}
	c.log.Debug("onecall fetched",
		zap.String("exclude", exclude),
		zap.Int("hourly", len(resp.HourlyStream())),
		zap.Int("daily", len(resp.Daily)))
	return &resp, nil
}

// TimezoneOffset fetches only the UTC offset for (lat, lon).
func (c *Client) TimezoneOffset(ctx context.Context, lat, lon float64) (int, error) {
	resp, err := c.OneCall(ctx, lat, lon, ExcludeForTimezone)
	if err != nil {
		return 0, err
	}
	return resp.Offset(), nil
}

type geocodeResult struct {
	Name    string  `json:"name"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	Country string  `json:"country"`
	State   string  `json:"state"`
}

// Geocode resolves a free-text place name into at most GeocodeLimit
// candidates.
func (c *Client) Geocode(ctx context.Context, query string) ([]models.Candidate, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("limit", strconv.Itoa(GeocodeLimit))
	params.Set("appid", c.apiKey)

	body, err := c.get(ctx, "geocode", c.geocodeBreaker, c.geocodingURL, params)
	if err != nil {
		return nil, err
	}

	var results []geocodeResult
	if err := json.Unmarshal(body, &results); err != nil {
		return nil, fmt.Errorf("%w: decode geocode: %v", ErrUpstreamUnavailable, err)
	}

	candidates := make([]models.Candidate, 0, len(results))
	for _, r := range results {
		candidates = append(candidates, models.Candidate{
			Name:    r.Name,
			Country: r.Country,
			State:   r.State,
			Lat:     r.Lat,
			Lon:     r.Lon,
		})
	}
	return candidates, nil
}
