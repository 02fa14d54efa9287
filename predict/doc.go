// Package predict provides a Go client library for the suntimes prediction
// endpoint.
//
// This package allows you to query a deployed suntimes model for local
// sunrise and sunset times, and to manage the model versions the endpoint
// serves. It speaks the endpoint's JSON contract: requests carry lat, lng,
// dayno and utc_offset; responses carry dayNo, sunrise_hr, sunrise_min,
// sunset_hr and sunset_min.
//
// Basic Usage:
//
//	client := predict.NewClient("http://localhost:8080", "suntimes")
//
//	result, err := client.Predict(suntimes.Request{
//		Lat:       39.833,
//		Lng:       -98.583,
//		DayNo:     15,
//		UTCOffset: -6,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	fmt.Printf("Sunrise %02.0f:%05.2f, Sunset %02.0f:%05.2f\n",
//		result.SunriseHour, result.SunriseMinute,
//		result.SunsetHour, result.SunsetMinute)
//
// Batching:
//
// PredictBatch sends multiple instances in one request. Instances in polar
// day or night come back as per-entry errors rather than failing the whole
// batch:
//
//	response, err := client.PredictBatch([]suntimes.Request{
//		{Lat: 39.833, Lng: -98.583, DayNo: 15, UTCOffset: -6},
//		{Lat: 75.0, Lng: 0, DayNo: 355},
//	})
//
// Version management:
//
// Versions, CreateVersion, EnsureVersion, SetDefaultVersion and
// DeleteVersion drive the endpoint's model registry, covering the usual
// deploy sequence (create if absent, promote, clean up old versions).
//
// The client includes proper error handling: *APIError for endpoint
// failures, *ValidationError for bad inputs caught before the request is
// sent, and *NetworkError for transport problems.
package predict
