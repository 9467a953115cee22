package calc

import "fmt"

// HumanFormat renders v with a K/M/B/T suffix and two decimals:
// 1234 -> "1.23K", 250000000 -> "250.00M".
func HumanFormat(v float64) string {
	abs := v
	if abs < 0 {
		abs = -abs
	}
	switch {
	case abs >= 1e12:
		return fmt.Sprintf("%.2fT", v/1e12)
	case abs >= 1e9:
		return fmt.Sprintf("%.2fB", v/1e9)
	case abs >= 1e6:
		return fmt.Sprintf("%.2fM", v/1e6)
	case abs >= 1e3:
		return fmt.Sprintf("%.2fK", v/1e3)
	default:
		return fmt.Sprintf("%.2f", v)
	}
}

// FormatOptional renders nil as an empty string so a missing value never
// shows as zero.
func FormatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return HumanFormat(*v)
}
