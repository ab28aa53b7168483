package weather

import (
	"testing"

	"github.com/lox/weatherreminder/internal/models"
)

func TestQualityFlags(t *testing.T) {
	neg := -1.0
	tests := []struct {
		name  string
		point models.Point
		want  []string
	}{
		{"plausible", models.Point{Temp: 15, Humidity: 60, Pressure: 1013, WindSpeed: 4, WindDeg: 180, Pop: 0.2}, nil},
		{"absent pressure", models.Point{Temp: 15}, nil},
		{"hot", models.Point{Temp: 75}, []string{FlagTempOutOfRange}},
		{"humidity", models.Point{Humidity: 140}, []string{FlagHumidityInvalid}},
		{"wind", models.Point{WindDeg: 400, WindSpeed: 300}, []string{FlagWindDirInvalid, FlagWindSpeedUnlikely}},
		{"pressure", models.Point{Pressure: 500}, []string{FlagPressureOutOfRange}},
		{"pop", models.Point{Pop: 1.5}, []string{FlagPopInvalid}},
		{"negative rain", models.Point{Rain: &neg}, []string{FlagPrecipNegative}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := QualityFlags(tt.point)
			if len(got) != len(tt.want) {
				t.Fatalf("QualityFlags() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("flag[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}
