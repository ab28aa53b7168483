package weather

import (
	"math"
	"sort"

	"github.com/lox/weatherreminder/internal/models"
	"github.com/lox/weatherreminder/internal/provider"
)

// normalize converts one raw upstream point into the stored point shape.
// Daily aggregates collapse to their "day" value with min/max kept
// alongside; legacy nested main/wind blocks override the flat fields.
func normalize(r provider.RawPoint) models.Point {
	p := models.Point{
		Dt:         r.Dt,
		Temp:       r.Temp.Value,
		FeelsLike:  r.FeelsLike.Value,
		Humidity:   round(r.Humidity),
		Pressure:   round(r.Pressure),
		WindSpeed:  r.WindSpeed,
		WindDeg:    round(r.WindDeg),
		Clouds:     r.Clouds.Value,
		Visibility: r.Visibility,
		UVI:        r.UVI,
		Pop:        r.Pop,
		Rain:       r.Rain.Value,
		Snow:       r.Snow.Value,
	}
	if r.Temp.Kind == provider.TempDaily {
		p.TempMin = r.Temp.Min
		p.TempMax = r.Temp.Max
	}

	if m := r.Main; m != nil {
		if m.Temp != nil {
			p.Temp = *m.Temp
		}
		if m.FeelsLike != nil {
			p.FeelsLike = *m.FeelsLike
		}
		if m.Humidity != nil {
			p.Humidity = round(*m.Humidity)
		}
		if m.Pressure != nil {
			p.Pressure = round(*m.Pressure)
		}
	}
	if w := r.Wind; w != nil {
		if w.Speed != nil {
			p.WindSpeed = *w.Speed
		}
		if w.Deg != nil {
			p.WindDeg = round(*w.Deg)
		}
	}

	if len(r.Weather) > 0 {
		p.Description = r.Weather[0].Description
		p.Icon = r.Weather[0].Icon
	}
	return p
}

func normalizeAll(raw []provider.RawPoint) models.Snapshot {
	out := make(models.Snapshot, 0, len(raw))
	for _, r := range raw {
		out = append(out, normalize(r))
	}
	return out
}

func round(f float64) int {
	return int(math.Round(f))
}

func sortByTime(s models.Snapshot) {
	sort.SliceStable(s, func(i, j int) bool { return s[i].Dt < s[j].Dt })
}
