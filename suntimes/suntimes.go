package suntimes

import (
	"errors"
	"fmt"
	"math"
)

// ErrPolar is the sentinel for polar day/night conditions where the sun
// neither rises nor sets on the requested day.
var ErrPolar = errors.New("polar day or night: sun does not cross the horizon")

// PolarError reports that no sunrise/sunset exists for the given latitude
// and day. PolarDay is true when the sun stays above the horizon all day.
type PolarError struct {
	Latitude float64
	DayNo    int
	PolarDay bool
}

func (e *PolarError) Error() string {
	kind := "polar night"
	if e.PolarDay {
		kind = "polar day"
	}
	return fmt.Sprintf("%s at latitude %.3f on day %d: sun does not cross the horizon", kind, e.Latitude, e.DayNo)
}

func (e *PolarError) Unwrap() error {
	return ErrPolar
}

// Request describes a single sunrise/sunset query.
type Request struct {
	Lat       float64 `json:"lat"`        // Latitude in degrees, positive north
	Lng       float64 `json:"lng"`        // Longitude in degrees, positive east
	DayNo     int     `json:"dayno"`      // Day-of-year index, 0 = Jan 1
	UTCOffset int     `json:"utc_offset"` // Local timezone offset from UTC in hours
}

// Result holds the computed local sunrise and sunset, split into whole
// hours and fractional minutes.
type Result struct {
	DayNo         int     `json:"dayNo"`
	SunriseHour   float64 `json:"sunrise_hr"`
	SunriseMinute float64 `json:"sunrise_min"`
	SunsetHour    float64 `json:"sunset_hr"`
	SunsetMinute  float64 `json:"sunset_min"`
}

// Validate checks that the request parameters are within acceptable ranges
func (r Request) Validate() error {
	if r.Lat < -90 || r.Lat > 90 {
		return fmt.Errorf("latitude must be between -90 and 90, got %f", r.Lat)
	}
	if r.Lng < -180 || r.Lng > 180 {
		return fmt.Errorf("longitude must be between -180 and 180, got %f", r.Lng)
	}
	if r.DayNo < 0 || r.DayNo > 365 {
		return fmt.Errorf("dayno must be between 0 and 365, got %d", r.DayNo)
	}
	if r.UTCOffset < -12 || r.UTCOffset > 14 {
		return fmt.Errorf("utc_offset must be between -12 and 14, got %d", r.UTCOffset)
	}
	return nil
}

// Compute calculates local sunrise and sunset with the default formula
// constants. Atmospheric refraction is ignored.
func Compute(req Request) (Result, error) {
	return computeWith(DefaultConstants(), req)
}

// computeWith evaluates the closed-form sunrise/sunset formula using the
// given constants.
//
// Solar time at a longitude differs from clock time by 4 minutes per degree
// of offset from the timezone meridian, plus the equation of time. The
// hour angle acos(-tan(lat)*tan(decl)) gives half the day length.
func computeWith(c Constants, req Request) (Result, error) {
	if err := req.Validate(); err != nil {
		return Result{}, err
	}

	// Minutes of clock offset from the timezone's reference meridian
	lngCorrection := 4 * (req.Lng - 15*float64(req.UTCOffset))

	// Day angle, zero at the spring equinox reference day
	b := 2 * math.Pi * float64(req.DayNo-c.EquinoxDay) / c.YearDays

	equationOfTime := c.EoTSin2B*math.Sin(2*b) + c.EoTCosB*math.Cos(b) + c.EoTSinB*math.Sin(b)

	// Total correction from local clock noon to solar noon, in minutes
	solarCorrection := lngCorrection - equationOfTime

	declination := math.Asin(math.Sin(c.AxialTilt*math.Pi/180) * math.Sin(b))

	cosHourAngle := -math.Tan(req.Lat*math.Pi/180) * math.Tan(declination)
	if cosHourAngle > 1 || cosHourAngle < -1 {
		return Result{}, &PolarError{
			Latitude: req.Lat,
			DayNo:    req.DayNo,
			PolarDay: cosHourAngle < -1,
		}
	}

	// Half day length in hours: hour angle in degrees, 15 degrees per hour
	hourAngleHours := math.Acos(cosHourAngle) * 180 / math.Pi / 15

	sunrise := 12 - hourAngleHours - solarCorrection/60
	sunset := 12 + hourAngleHours - solarCorrection/60

	sunriseHour := math.Floor(sunrise)
	sunsetHour := math.Floor(sunset)

	return Result{
		DayNo:         req.DayNo,
		SunriseHour:   sunriseHour,
		SunriseMinute: (sunrise - sunriseHour) * 60,
		SunsetHour:    sunsetHour,
		SunsetMinute:  (sunset - sunsetHour) * 60,
	}, nil
}

// DayLength returns the day length in hours implied by a result.
func (r Result) DayLength() float64 {
	return (r.SunsetHour + r.SunsetMinute/60) - (r.SunriseHour + r.SunriseMinute/60)
}

// Clock formats an hour/minute pair as HH:MM with minutes rounded.
func Clock(hour, minute float64) string {
	h := int(hour)
	m := int(math.Round(minute))
	if m == 60 {
		h++
		m = 0
	}
	return fmt.Sprintf("%02d:%02d", h, m)
}
