package util

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ParseBandwidth parses a bandwidth string such as "100mbps", "1gbps"
// or a bare number (bits per second) and returns bits per second.
func ParseBandwidth(input string) (float64, error) {
	value, unit, err := splitValueUnit(input)
	if err != nil {
		return 0, fmt.Errorf("invalid bandwidth %q: %w", input, err)
	}
	switch unit {
	case "", "bps":
		return value, nil
	case "k", "kbps":
		return value * 1e3, nil
	case "m", "mbps":
		return value * 1e6, nil
	case "g", "gbps":
		return value * 1e9, nil
	case "t", "tbps":
		return value * 1e12, nil
	default:
		return 0, fmt.Errorf("unknown bandwidth unit %q", unit)
	}
}

// ParseBytes parses a size string such as "512", "1500b", "64kb" and
// returns bytes.
func ParseBytes(input string) (int64, error) {
	value, unit, err := splitValueUnit(input)
	if err != nil {
		return 0, fmt.Errorf("invalid byte size %q: %w", input, err)
	}
	if value < 0 {
		return 0, errors.New("byte size must be >= 0")
	}
	scale := 1.0
	switch unit {
	case "", "b":
	case "kb":
		scale = 1e3
	case "mb":
		scale = 1e6
	case "gb":
		scale = 1e9
	default:
		return 0, fmt.Errorf("unknown byte unit %q", unit)
	}
	return int64(math.Round(value * scale)), nil
}

func splitValueUnit(input string) (float64, string, error) {
	s := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(input)), " ", "")
	if s == "" {
		return 0, "", errors.New("empty value")
	}
	cut := len(s)
	for i, r := range s {
		if (r < '0' || r > '9') && r != '.' {
			cut = i
			break
		}
	}
	value, err := strconv.ParseFloat(s[:cut], 64)
	if err != nil {
		return 0, "", errors.New("not a number")
	}
	return value, s[cut:], nil
}
