package captions

import (
	"fmt"
	"math"
)

// truncation guard so values like 0.29 (28.999... centiseconds) land on 29
const centisecondEpsilon = 1e-6

// larger inputs would overflow the centisecond count
const maxTimestampSeconds = 1e12

// FormatTimestamp renders seconds as H:MM:SS.CC. Hours are not padded and
// centiseconds are truncated, never rounded.
func FormatTimestamp(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		seconds = 0
	}
	seconds = min(seconds, maxTimestampSeconds)
	total := int64(math.Floor(seconds*100 + centisecondEpsilon))

	cs := total % 100
	totalSeconds := total / 100
	s := totalSeconds % 60
	totalMinutes := totalSeconds / 60
	m := totalMinutes % 60
	h := totalMinutes / 60
	return fmt.Sprintf("%d:%02d:%02d.%02d", h, m, s, cs)
}
