package models

import (
	"database/sql"
	"time"
)

// Period names a forecast horizon/granularity.
type Period string

const (
	PeriodCurrent  Period = "current"
	PeriodHourly   Period = "hourly"
	PeriodToday    Period = "today"
	PeriodTomorrow Period = "tomorrow"
	Period3Days    Period = "3days"
	PeriodWeek     Period = "week"
)

// Periods lists every supported period in order of increasing horizon.
var Periods = []Period{PeriodCurrent, PeriodHourly, PeriodToday, PeriodTomorrow, Period3Days, PeriodWeek}

func (p Period) Valid() bool {
	for _, v := range Periods {
		if p == v {
			return true
		}
	}
	return false
}

type Location struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Country   string    `json:"country"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	CreatedAt time.Time `json:"created_at"`
}

// Candidate is a geocoder result that has not been persisted.
type Candidate struct {
	Name    string  `json:"name"`
	Country string  `json:"country"`
	State   string  `json:"state,omitempty"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}

// Point is one normalized weather data point. It is the unit of every
// cache entry and stored snapshot payload.
type Point struct {
	Dt          int64    `json:"dt"`
	Temp        float64  `json:"temp"`
	TempMin     *float64 `json:"temp_min,omitempty"`
	TempMax     *float64 `json:"temp_max,omitempty"`
	FeelsLike   float64  `json:"feels_like"`
	Humidity    int      `json:"humidity"`
	Pressure    int      `json:"pressure"`
	WindSpeed   float64  `json:"wind_speed"`
	WindDeg     int      `json:"wind_deg"`
	Clouds      int      `json:"clouds"`
	Visibility  *int     `json:"visibility"`
	UVI         float64  `json:"uvi"`
	Pop         float64  `json:"pop"`
	Rain        *float64 `json:"rain"`
	Snow        *float64 `json:"snow"`
	Description string   `json:"description"`
	Icon        string   `json:"icon"`
}

// Time returns the point timestamp in UTC.
func (p Point) Time() time.Time {
	return time.Unix(p.Dt, 0).UTC()
}

// Snapshot is an ordered sequence of points; always a list, even for
// single-point periods.
type Snapshot []Point

type StoredSnapshot struct {
	ID         int64     `json:"id"`
	LocationID int64     `json:"city"`
	Period     Period    `json:"forecast_period"`
	Data       Snapshot  `json:"data"`
	ItemsCount int       `json:"items_count"`
	FetchedAt  time.Time `json:"fetched_at"`
}

type NotificationType string

const (
	NotifyEmail   NotificationType = "email"
	NotifyWebhook NotificationType = "webhook"
	NotifyBoth    NotificationType = "both"
)

// IntervalHours lists the allowed subscription notification intervals.
var IntervalHours = []int{1, 3, 6, 12, 24}

type Subscription struct {
	ID               int64
	UserID           string
	LocationID       int64
	IntervalHours    int
	ForecastPeriod   Period
	NotificationType NotificationType
	Active           bool
	LastNotifiedAt   sql.NullTime
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// IsDue reports whether the subscription should be refreshed at now.
func (s Subscription) IsDue(now time.Time) bool {
	if !s.Active {
		return false
	}
	if !s.LastNotifiedAt.Valid {
		return true
	}
	return now.Sub(s.LastNotifiedAt.Time) >= time.Duration(s.IntervalHours)*time.Hour
}
