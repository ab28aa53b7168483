package weather

import (
	"go.uber.org/zap"

	"github.com/lox/weatherreminder/internal/models"
)

const (
	FlagTempOutOfRange     = "temp_out_of_range"
	FlagHumidityInvalid    = "humidity_invalid"
	FlagWindDirInvalid     = "wind_dir_invalid"
	FlagWindSpeedUnlikely  = "wind_speed_unlikely"
	FlagPressureOutOfRange = "pressure_out_of_range"
	FlagPopInvalid         = "pop_invalid"
	FlagPrecipNegative     = "precip_negative"
)

// QualityFlags reports implausible values in a normalized point. Flagged
// points are still served; the flags only feed logging.
func QualityFlags(p models.Point) []string {
	var flags []string

	if p.Temp < -90 || p.Temp > 60 {
		flags = append(flags, FlagTempOutOfRange)
	}
	if p.Humidity < 0 || p.Humidity > 100 {
		flags = append(flags, FlagHumidityInvalid)
	}
	if p.WindDeg < 0 || p.WindDeg > 360 {
		flags = append(flags, FlagWindDirInvalid)
	}
	if p.WindSpeed < 0 || p.WindSpeed > 120 {
		flags = append(flags, FlagWindSpeedUnlikely)
	}
	// Zero means the field was absent.
	if p.Pressure != 0 && (p.Pressure < 850 || p.Pressure > 1100) {
		flags = append(flags, FlagPressureOutOfRange)
	}
	if p.Pop < 0 || p.Pop > 1 {
		flags = append(flags, FlagPopInvalid)
	}
	if (p.Rain != nil && *p.Rain < 0) || (p.Snow != nil && *p.Snow < 0) {
		flags = append(flags, FlagPrecipNegative)
	}

	return flags
}

func (e *Engine) checkQuality(locationID int64, period models.Period, snap models.Snapshot) {
	for _, p := range snap {
		if flags := QualityFlags(p); len(flags) > 0 {
			e.log.Warn("implausible weather point",
				zap.Int64("location_id", locationID),
				zap.String("period", string(period)),
				zap.Int64("dt", p.Dt),
				zap.Strings("flags", flags))
		}
	}
}
