package util

import "strconv"

// FormatSeconds renders a seconds value the way ffmpeg accepts it for -ss and -t
func FormatSeconds(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	return strconv.FormatFloat(seconds, 'f', 3, 64)
}
