package weather

import (
	"time"

	"github.com/lox/weatherreminder/internal/models"
)

// mergeToday combines freshly fetched today points with previously stored
// ones keyed by local (date, hour). Fresh points win on collision; stored
// points only fill scheduled slots of the current local date.
func (e *Engine) mergeToday(fresh, stored models.Snapshot, offset int) models.Snapshot {
	today := localTime(e.cfg.Now(), offset)

	bySlot := make(map[slot]models.Point, len(fresh)+len(stored))
	for _, p := range stored {
		s := slotOf(p, offset)
		if !sameDate(today, s) || !e.isScheduled(s.hour) {
			continue
		}
		bySlot[s] = p
	}
	for _, p := range fresh {
		bySlot[slotOf(p, offset)] = p
	}

	out := make(models.Snapshot, 0, len(bySlot))
	for _, p := range bySlot {
		out = append(out, p)
	}
	sortByTime(out)
	return out
}

func todayDate(now time.Time, offset int) string {
	return localTime(now, offset).Format(time.DateOnly)
}
