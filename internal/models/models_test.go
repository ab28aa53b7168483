package models

import (
	"database/sql"
	"testing"
	"time"
)

func TestPeriodValid(t *testing.T) {
	tests := []struct {
		period Period
		want   bool
	}{
		{PeriodCurrent, true},
		{PeriodHourly, true},
		{PeriodToday, true},
		{PeriodTomorrow, true},
		{Period3Days, true},
		{PeriodWeek, true},
		{"decade", false},
		{"", false},
		{"Current", false},
	}
	for _, tt := range tests {
		if got := tt.period.Valid(); got != tt.want {
			t.Errorf("Period(%q).Valid() = %v, want %v", tt.period, got, tt.want)
		}
	}
}

func TestSubscriptionIsDue(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	notified := func(ago time.Duration) sql.NullTime {
		return sql.NullTime{Time: now.Add(-ago), Valid: true}
	}

	tests := []struct {
		name string
		sub  Subscription
		want bool
	}{
		{"never notified", Subscription{Active: true, IntervalHours: 6}, true},
		{"inactive", Subscription{Active: false, IntervalHours: 1}, false},
		{"interval elapsed", Subscription{Active: true, IntervalHours: 3, LastNotifiedAt: notified(3 * time.Hour)}, true},
		{"interval not elapsed", Subscription{Active: true, IntervalHours: 3, LastNotifiedAt: notified(2*time.Hour + 59*time.Minute)}, false},
		{"daily", Subscription{Active: true, IntervalHours: 24, LastNotifiedAt: notified(25 * time.Hour)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.sub.IsDue(now); got != tt.want {
				t.Errorf("IsDue() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPointTime(t *testing.T) {
	p := Point{Dt: 1700000000}
	if got := p.Time(); !got.Equal(time.Unix(1700000000, 0)) || got.Location() != time.UTC {
		t.Errorf("Time() = %v, want UTC %v", got, time.Unix(1700000000, 0).UTC())
	}
}
