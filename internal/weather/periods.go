package weather

import (
	"fmt"
	"time"

	"github.com/lox/weatherreminder/internal/models"
	"github.com/lox/weatherreminder/internal/provider"
)

var ttls = map[models.Period]time.Duration{
	models.PeriodCurrent:  600 * time.Second,
	models.PeriodHourly:   900 * time.Second,
	models.PeriodToday:    1800 * time.Second,
	models.PeriodTomorrow: 1800 * time.Second,
	models.Period3Days:    3600 * time.Second,
	models.PeriodWeek:     3600 * time.Second,
}

// TTL returns the cache lifetime for period. Longer horizons change less
// often and live longer.
func TTL(period models.Period) time.Duration {
	if ttl, ok := ttls[period]; ok {
		return ttl
	}
	return ttls[models.PeriodCurrent]
}

func CacheKey(locationID int64, period models.Period) string {
	return fmt.Sprintf("weather:%d:%s", locationID, period)
}

func excludeFor(period models.Period) string {
	switch period {
	case models.PeriodCurrent:
		return provider.ExcludeForCurrent
	case models.Period3Days, models.PeriodWeek:
		return provider.ExcludeForDaily
	default:
		return provider.ExcludeForHourly
	}
}

// localTime shifts a UTC instant by offset seconds and returns it as a UTC
// time whose wall clock reads the location's local time.
func localTime(t time.Time, offset int) time.Time {
	return t.UTC().Add(time.Duration(offset) * time.Second)
}

type slot struct {
	year  int
	month time.Month
	day   int
	hour  int
}

func slotOf(p models.Point, offset int) slot {
	lt := localTime(p.Time(), offset)
	return slot{lt.Year(), lt.Month(), lt.Day(), lt.Hour()}
}

func sameDate(a time.Time, s slot) bool {
	return a.Year() == s.year && a.Month() == s.month && a.Day() == s.day
}

// selectPoints picks the points for period out of a decoded response.
func (e *Engine) selectPoints(resp *provider.OneCallResponse, period models.Period, offset int) models.Snapshot {
	switch period {
	case models.PeriodCurrent:
		if resp.Current == nil {
			return models.Snapshot{}
		}
		return models.Snapshot{normalize(*resp.Current)}

	case models.PeriodHourly:
		return firstN(resp.HourlyStream(), e.cfg.HourlyLimit)

	case models.PeriodToday:
		today := localTime(e.cfg.Now(), offset)
		return e.onSchedule(normalizeAll(resp.HourlyStream()), today, offset)

	case models.PeriodTomorrow:
		tomorrow := localTime(e.cfg.Now(), offset).AddDate(0, 0, 1)
		return e.closestToSchedule(normalizeAll(resp.HourlyStream()), tomorrow, offset)

	case models.Period3Days:
		return firstN(resp.Daily, 3)

	case models.PeriodWeek:
		return firstN(resp.Daily, 7)
	}
	return models.Snapshot{}
}

func firstN(raw []provider.RawPoint, n int) models.Snapshot {
	if n >= 0 && len(raw) > n {
		raw = raw[:n]
	}
	return normalizeAll(raw)
}

func (e *Engine) isScheduled(hour int) bool {
	for _, h := range e.cfg.TodayHours {
		if h == hour {
			return true
		}
	}
	return false
}

// onSchedule keeps points that fall on a scheduled hour of day's local
// date, at most one per hour.
func (e *Engine) onSchedule(points models.Snapshot, day time.Time, offset int) models.Snapshot {
	out := models.Snapshot{}
	seen := make(map[int]bool)
	for _, p := range points {
		lt := localTime(p.Time(), offset)
		if lt.Year() != day.Year() || lt.YearDay() != day.YearDay() {
			continue
		}
		if !e.isScheduled(lt.Hour()) || seen[lt.Hour()] {
			continue
		}
		seen[lt.Hour()] = true
		out = append(out, p)
	}
	return out
}

// closestToSchedule picks, for each scheduled hour of day's local date,
// the point nearest to that hour within the match tolerance. Slots with no
// point in range are skipped.
func (e *Engine) closestToSchedule(points models.Snapshot, day time.Time, offset int) models.Snapshot {
	midnight := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	out := models.Snapshot{}
	used := make(map[int64]bool)
	for _, h := range e.cfg.TodayHours {
		target := midnight.Add(time.Duration(h) * time.Hour)
		best := -1
		var bestDiff time.Duration
		for i, p := range points {
			if used[p.Dt] {
				continue
			}
			diff := localTime(p.Time(), offset).Sub(target)
			if diff < 0 {
				diff = -diff
			}
			if diff > e.cfg.MatchTolerance {
				continue
			}
			if best < 0 || diff < bestDiff {
				best, bestDiff = i, diff
			}
		}
		if best >= 0 {
			used[points[best].Dt] = true
			out = append(out, points[best])
		}
	}
	sortByTime(out)
	return out
}
