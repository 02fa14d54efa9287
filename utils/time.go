// Package utils provides utility functions shared across the suntimes services.
package utils //nolint:revive // utils is a common and acceptable package name

import "time"

// DayOfYear returns the zero-based day-of-year index for t, so January 1
// maps to 0 and December 31 to 364 (365 in leap years).
func DayOfYear(t time.Time) int {
	return t.YearDay() - 1
}
