// Package suntimes computes local sunrise and sunset times from latitude,
// longitude, day-of-year and UTC offset using a closed-form solar formula,
// and packages the formula's coefficients as a versioned model artifact.
//
// Basic Usage:
//
//	result, err := suntimes.Compute(suntimes.Request{
//		Lat:       39.833, // geographic center of the contiguous US
//		Lng:       -98.583,
//		DayNo:     15,
//		UTCOffset: -6,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	fmt.Println("Sunrise:", suntimes.Clock(result.SunriseHour, result.SunriseMinute))
//	fmt.Println("Sunset:", suntimes.Clock(result.SunsetHour, result.SunsetMinute))
//
// Model artifacts:
//
// The formula constants can be exported to a JSON artifact and loaded back
// into a Model, which is how the serving endpoint consumes them:
//
//	artifact := suntimes.NewArtifact("suntimes", "v1", suntimes.DefaultConstants())
//	_ = artifact.Export("suntimes-v1.json")
//
//	loaded, _ := suntimes.LoadArtifact("suntimes-v1.json")
//	model, _ := suntimes.NewModel(loaded)
//	result, err = model.Predict(suntimes.Request{Lat: 56.95, Lng: 24.11, DayNo: 120})
//
// Polar regions:
//
// Above the polar circles near the solstices the sun does not cross the
// horizon and no sunrise/sunset exists. Compute and Model.Predict return a
// *PolarError (matched by errors.Is(err, suntimes.ErrPolar)) instead of a
// NaN result.
//
// Atmospheric refraction is ignored throughout; times are accurate to a few
// minutes at mid-latitudes.
package suntimes
