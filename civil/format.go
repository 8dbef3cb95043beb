package civil

import (
	"fmt"
	"math"
)

// FormatSignedHours renders a signed decimal-hours value as "±H:MMh",
// rounding to the nearest minute. Positive values carry no leading sign;
// negative values keep their minus. Matches the desktop client's
// "Arbeitszeitkonto" display convention.
func FormatSignedHours(hours float64) string {
	sign := ""
	abs := hours
	if hours < 0 {
		sign = "-"
		abs = -hours
	}
	totalMinutes := int(math.Round(abs * 60))
	h := totalMinutes / 60
	m := totalMinutes % 60
	return fmt.Sprintf("%s%d:%02dh", sign, h, m)
}
