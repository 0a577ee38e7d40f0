// Package laptime parses and formats the fixed-width "MM:SS.mmm" time strings
// recorded for laps and runs.
package laptime

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
)

var pattern = regexp.MustCompile(`^(\d{2}):(\d{2})\.(\d{3})$`)

// Parse converts "MM:SS.mmm" into seconds. Any other input yields ok == false.
func Parse(s string) (seconds float64, ok bool) {
	m := pattern.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	minutes, _ := strconv.Atoi(m[1])
	secs, _ := strconv.Atoi(m[2])
	millis, _ := strconv.Atoi(m[3])
	return float64(minutes*60+secs) + float64(millis)/1000, true
}

// Valid reports whether s matches the MM:SS.mmm format exactly.
func Valid(s string) bool {
	return pattern.MatchString(s)
}

// SecondsOrInf is Parse for comparisons: invalid input ranks last.
func SecondsOrInf(s string) float64 {
	if v, ok := Parse(s); ok {
		return v
	}
	return math.Inf(1)
}

// SecondsOrZero is Parse for summations: invalid input contributes nothing.
func SecondsOrZero(s string) float64 {
	v, _ := Parse(s)
	return v
}

// PtrSecondsOrInf handles optional columns.
func PtrSecondsOrInf(s *string) float64 {
	if s == nil {
		return math.Inf(1)
	}
	return SecondsOrInf(*s)
}

// Format renders seconds as MM:SS.mmm, rounding to the millisecond. Minutes
// are not capped at 99.
func Format(seconds float64) string {
	if seconds < 0 || math.IsInf(seconds, 0) || math.IsNaN(seconds) {
		return ""
	}
	ms := int64(math.Round(seconds * 1000))
	return fmt.Sprintf("%02d:%02d.%03d", ms/60000, (ms/1000)%60, ms%1000)
}
