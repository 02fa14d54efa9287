package suntimes

import (
	"testing"
	"time"
)

func TestPhases_Ordering(t *testing.T) {
	// Mid-latitude spring day: all phases exist and are ordered
	date := time.Date(2025, 4, 12, 12, 0, 0, 0, time.UTC)
	phases := Phases(date, 56.9496, 24.1052) // Riga

	ordered := []struct {
		name   string
		before time.Time
		after  time.Time
	}{
		{"dawn before sunrise", phases.Dawn, phases.Sunrise},
		{"sunrise before golden hour end", phases.Sunrise, phases.GoldenHourEnd},
		{"golden hour end before solar noon", phases.GoldenHourEnd, phases.SolarNoon},
		{"solar noon before golden hour", phases.SolarNoon, phases.GoldenHour},
		{"golden hour before sunset", phases.GoldenHour, phases.Sunset},
		{"sunset before dusk", phases.Sunset, phases.Dusk},
	}

	for _, tt := range ordered {
		if !tt.before.Before(tt.after) {
			t.Errorf("%s: expected %v before %v", tt.name, tt.before, tt.after)
		}
	}
}

func TestPhases_AgreesWithClosedForm(t *testing.T) {
	// The suncalc reference accounts for atmospheric refraction and uses a
	// full equation of time; the simplified formula does neither, so on a
	// mid-latitude winter day the two can be about a quarter hour apart.
	date := time.Date(2025, 1, 16, 12, 0, 0, 0, time.UTC) // day-of-year index 15

	phases := Phases(date, testLat, testLng)

	result, err := Compute(Request{Lat: testLat, Lng: testLng, DayNo: 15, UTCOffset: 0})
	if err != nil {
		t.Fatalf("Compute returned error: %v", err)
	}

	midnight := time.Date(2025, 1, 16, 0, 0, 0, 0, time.UTC)
	sunriseMinutes := result.SunriseHour*60 + result.SunriseMinute
	closedForm := midnight.Add(time.Duration(sunriseMinutes * float64(time.Minute)))

	diff := phases.Sunrise.UTC().Sub(closedForm)
	if diff < 0 {
		diff = -diff
	}
	if diff > 20*time.Minute {
		t.Errorf("Reference sunrise %v differs from closed form %v by %v", phases.Sunrise.UTC(), closedForm, diff)
	}
}
