package suntimes

import (
	"math"
	"time"

	"github.com/sixdouglas/suncalc"
)

// DayPhases holds the astronomically derived phases of a day at a location.
// Unlike Result these come from the suncalc reference implementation and
// include twilight and golden hour boundaries.
type DayPhases struct {
	Dawn           time.Time `json:"dawn"`
	Sunrise        time.Time `json:"sunrise"`
	GoldenHourEnd  time.Time `json:"golden_hour_end"`
	SolarNoon      time.Time `json:"solar_noon"`
	GoldenHour     time.Time `json:"golden_hour"`
	Sunset         time.Time `json:"sunset"`
	Dusk           time.Time `json:"dusk"`
	SunAltitudeDeg float64   `json:"sun_altitude_deg"` // Altitude at the query time
	SunAzimuthDeg  float64   `json:"sun_azimuth_deg"`  // Azimuth at the query time
}

// Phases returns the sun phases for the given date and location using the
// suncalc reference provider. Useful as an independent cross-check of the
// closed-form model.
func Phases(date time.Time, lat, lng float64) DayPhases {
	times := suncalc.GetTimes(date, lat, lng)
	pos := suncalc.GetPosition(date, lat, lng)

	return DayPhases{
		Dawn:           times["dawn"].Value,
		Sunrise:        times["sunrise"].Value,
		GoldenHourEnd:  times["goldenHourEnd"].Value,
		SolarNoon:      times["solarNoon"].Value,
		GoldenHour:     times["goldenHour"].Value,
		Sunset:         times["sunset"].Value,
		Dusk:           times["dusk"].Value,
		SunAltitudeDeg: pos.Altitude * 180 / math.Pi,
		SunAzimuthDeg:  pos.Azimuth * 180 / math.Pi,
	}
}
