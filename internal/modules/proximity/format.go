// README: Human-readable distance and duration strings for notifications and status payloads.
package proximity

import (
	"fmt"
	"math"
)

// FormatDistance renders metres below one kilometre and one decimal above.
func FormatDistance(km float64) string {
	if km < 1 {
		return fmt.Sprintf("%d m", int(math.Round(km*1000)))
	}
	return fmt.Sprintf("%.1f km", km)
}

// FormatDuration renders minutes, switching to hours from one hour up.
func FormatDuration(minutes float64) string {
	if minutes < 60 {
		return fmt.Sprintf("%d min", int(math.Round(minutes)))
	}
	hours := int(math.Floor(minutes / 60))
	rest := int(math.Round(math.Mod(minutes, 60)))
	if rest == 60 {
		hours++
		rest = 0
	}
	if rest == 0 {
		return fmt.Sprintf("%d hr", hours)
	}
	return fmt.Sprintf("%d hr %d min", hours, rest)
}
