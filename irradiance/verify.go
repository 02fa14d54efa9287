package irradiance

import (
	"fmt"
	"time"

	"github.com/devskill-org/suntimes-serving/suntimes"
	"github.com/devskill-org/suntimes-serving/utils"
)

// Verification is the outcome of comparing a measured irradiance reading
// against the predicted daylight window.
type Verification struct {
	Reading           *Reading
	Result            suntimes.Result
	PredictedDaylight bool // whether the clock time falls inside sunrise..sunset
	MeasuredDaylight  bool // whether irradiance exceeds the threshold
	Agree             bool
}

// VerifyDaylight predicts today's daylight window for the location with the
// given model and checks it against the sensor reading. The at time is
// interpreted as local clock time at the location.
func VerifyDaylight(model *suntimes.Model, reading *Reading, lat, lng float64, utcOffset int, at time.Time, threshold float64) (*Verification, error) {
	if model == nil {
		return nil, fmt.Errorf("model cannot be nil")
	}
	if reading == nil {
		return nil, fmt.Errorf("reading cannot be nil")
	}

	result, err := model.Predict(suntimes.Request{
		Lat:       lat,
		Lng:       lng,
		DayNo:     utils.DayOfYear(at),
		UTCOffset: utcOffset,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to predict daylight window: %w", err)
	}

	clock := float64(at.Hour()) + float64(at.Minute())/60
	sunrise := result.SunriseHour + result.SunriseMinute/60
	sunset := result.SunsetHour + result.SunsetMinute/60

	verification := &Verification{
		Reading:           reading,
		Result:            result,
		PredictedDaylight: clock >= sunrise && clock <= sunset,
		MeasuredDaylight:  reading.Daylight(threshold),
	}
	verification.Agree = verification.PredictedDaylight == verification.MeasuredDaylight

	return verification, nil
}

// String formats a verification for log output
func (v *Verification) String() string {
	return fmt.Sprintf("predicted window %s-%s, predicted daylight: %v, measured %.1f W/m2, measured daylight: %v, agree: %v",
		suntimes.Clock(v.Result.SunriseHour, v.Result.SunriseMinute),
		suntimes.Clock(v.Result.SunsetHour, v.Result.SunsetMinute),
		v.PredictedDaylight,
		v.Reading.Irradiance,
		v.MeasuredDaylight,
		v.Agree,
	)
}
