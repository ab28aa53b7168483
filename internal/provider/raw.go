package provider

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// OneCallResponse is the decoded upstream weather payload. It accepts the
// One Call 3.0 layout as well as the older 2.5 layouts (flat current
// weather, forecast under "list", numeric "timezone").
type OneCallResponse struct {
	TimezoneOffset *int            `json:"timezone_offset"`
	Timezone       json.RawMessage `json:"timezone"`
	Current        *RawPoint       `json:"current"`
	Hourly         []RawPoint      `json:"hourly"`
	List           []RawPoint      `json:"list"`
	Daily          []RawPoint      `json:"daily"`
	City           *struct {
		Timezone *int `json:"timezone"`
	} `json:"city"`
}

func (r *OneCallResponse) UnmarshalJSON(data []byte) error {
	type plain OneCallResponse
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = OneCallResponse(p)

	// 2.5 current weather is a single point at the top level.
	if r.Current == nil {
		var probe struct {
			Main json.RawMessage `json:"main"`
		}
		if err := json.Unmarshal(data, &probe); err == nil && len(probe.Main) > 0 {
			var pt RawPoint
			if err := json.Unmarshal(data, &pt); err != nil {
				return fmt.Errorf("decode legacy current: %w", err)
			}
			r.Current = &pt
		}
	}
	return nil
}

// Offset returns the location's offset from UTC in seconds, taken from
// timezone_offset, a numeric timezone, or city.timezone in that order.
func (r *OneCallResponse) Offset() int {
	if r.TimezoneOffset != nil {
		return *r.TimezoneOffset
	}
	var n int
	if len(r.Timezone) > 0 && json.Unmarshal(r.Timezone, &n) == nil {
		return n
	}
	if r.City != nil && r.City.Timezone != nil {
		return *r.City.Timezone
	}
	return 0
}

// HourlyStream returns the hourly points, falling back to the legacy list.
func (r *OneCallResponse) HourlyStream() []RawPoint {
	if len(r.Hourly) > 0 {
		return r.Hourly
	}
	return r.List
}

type RawPoint struct {
	Dt         int64       `json:"dt"`
	Temp       Temperature `json:"temp"`
	FeelsLike  Temperature `json:"feels_like"`
	Humidity   float64     `json:"humidity"`
	Pressure   float64     `json:"pressure"`
	WindSpeed  float64     `json:"wind_speed"`
	WindDeg    float64     `json:"wind_deg"`
	Clouds     Clouds      `json:"clouds"`
	Visibility *int        `json:"visibility"`
	UVI        float64     `json:"uvi"`
	Pop        float64     `json:"pop"`
	Rain       Volume      `json:"rain"`
	Snow       Volume      `json:"snow"`
	Weather    []Condition `json:"weather"`

	Main *LegacyMain `json:"main"`
	Wind *LegacyWind `json:"wind"`
}

type Condition struct {
	ID          int    `json:"id"`
	Main        string `json:"main"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

// LegacyMain is the 2.5 "main" block.
type LegacyMain struct {
	Temp      *float64 `json:"temp"`
	FeelsLike *float64 `json:"feels_like"`
	TempMin   *float64 `json:"temp_min"`
	TempMax   *float64 `json:"temp_max"`
	Humidity  *float64 `json:"humidity"`
	Pressure  *float64 `json:"pressure"`
}

// LegacyWind is the 2.5 "wind" block.
type LegacyWind struct {
	Speed *float64 `json:"speed"`
	Deg   *float64 `json:"deg"`
}

type TemperatureKind int

const (
	TempAbsent TemperatureKind = iota
	TempScalar
	TempDaily
)

// Temperature is either a plain number (current and hourly points) or a
// daily aggregate object.
type Temperature struct {
	Kind  TemperatureKind
	Value float64
	Min   *float64
	Max   *float64
}

func (t *Temperature) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	*t = Temperature{}
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '{' {
		var agg struct {
			Day   *float64 `json:"day"`
			Min   *float64 `json:"min"`
			Max   *float64 `json:"max"`
			Night *float64 `json:"night"`
			Eve   *float64 `json:"eve"`
			Morn  *float64 `json:"morn"`
		}
		if err := json.Unmarshal(b, &agg); err != nil {
			return fmt.Errorf("decode daily temperature: %w", err)
		}
		t.Kind = TempDaily
		t.Min, t.Max = agg.Min, agg.Max
		for _, v := range []*float64{agg.Day, agg.Max, agg.Eve, agg.Morn, agg.Min, agg.Night} {
			if v != nil {
				t.Value = *v
				break
			}
		}
		return nil
	}
	if err := json.Unmarshal(b, &t.Value); err != nil {
		return fmt.Errorf("decode temperature: %w", err)
	}
	t.Kind = TempScalar
	return nil
}

// Volume is a precipitation amount in mm, either a plain number (daily) or
// an object keyed by accumulation window ("1h", "3h").
type Volume struct {
	Value *float64
}

func (v *Volume) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	*v = Volume{}
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '{' {
		var w struct {
			OneHour   *float64 `json:"1h"`
			ThreeHour *float64 `json:"3h"`
		}
		if err := json.Unmarshal(b, &w); err != nil {
			return fmt.Errorf("decode precipitation: %w", err)
		}
		if w.OneHour != nil {
			v.Value = w.OneHour
		} else {
			v.Value = w.ThreeHour
		}
		return nil
	}
	var n float64
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("decode precipitation: %w", err)
	}
	v.Value = &n
	return nil
}

// Clouds is cloud cover in percent, either a plain number or {"all": n}.
type Clouds struct {
	Value int
}

func (c *Clouds) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	*c = Clouds{}
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	var n float64
	if b[0] == '{' {
		var w struct {
			All float64 `json:"all"`
		}
		if err := json.Unmarshal(b, &w); err != nil {
			return fmt.Errorf("decode clouds: %w", err)
		}
		n = w.All
	} else if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("decode clouds: %w", err)
	}
	c.Value = int(n)
	return nil
}
