package scheduler

import (
	"strconv"
	"strings"
	"time"
)

// ParseIntervalDuration parses "30m", "1h", "6h", "1d" into time.Duration.
// Returns (0, false) on invalid input.
func ParseIntervalDuration(interval string) (time.Duration, bool) {
	interval = strings.ToLower(strings.TrimSpace(interval))
	if len(interval) < 2 {
		return 0, false
	}
	unit := interval[len(interval)-1]
	n, err := strconv.Atoi(interval[:len(interval)-1])
	if err != nil || n <= 0 {
		return 0, false
	}
	switch unit {
	case 'm':
		return time.Duration(n) * time.Minute, true
	case 'h':
		return time.Duration(n) * time.Hour, true
	case 'd':
		return time.Duration(n) * 24 * time.Hour, true
	default:
		return 0, false
	}
}

// BarsPerYear 返回该周期在一年内的根数，用于年化计算。
func BarsPerYear(interval time.Duration) float64 {
	if interval <= 0 {
		return 0
	}
	return float64(365*24*time.Hour) / float64(interval)
}
