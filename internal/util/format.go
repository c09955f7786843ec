package util

import "fmt"

// FormatBitsPerSecond renders a bit rate with scaled units.
func FormatBitsPerSecond(bps float64) string {
	return formatScaled(bps, []string{"bps", "Kbps", "Mbps", "Gbps", "Tbps"})
}

// FormatBytes renders a byte count with scaled units.
func FormatBytes(bytes float64) string {
	return formatScaled(bytes, []string{"B", "KB", "MB", "GB", "TB"})
}

func formatScaled(value float64, units []string) string {
	if value < 0 {
		value = 0
	}
	idx := 0
	for value >= 1000 && idx < len(units)-1 {
		value /= 1000
		idx++
	}
	switch {
	case value >= 100:
		return fmt.Sprintf("%.0f %s", value, units[idx])
	case value >= 10:
		return fmt.Sprintf("%.1f %s", value, units[idx])
	default:
		return fmt.Sprintf("%.2f %s", value, units[idx])
	}
}
