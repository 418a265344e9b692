package utils

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	B  = 1
	KB = 1024 * B
	MB = 1024 * KB
	GB = 1024 * MB
	TB = 1024 * GB
)

// sizeUnits is ordered largest first for formatting
var sizeUnits = []struct {
	suffix  string
	size    int64
	aliases []string
}{
	{"TB", TB, []string{"tb", "t", "tib"}},
	{"GB", GB, []string{"gb", "g", "gib"}},
	{"MB", MB, []string{"mb", "m", "mib"}},
	{"KB", KB, []string{"kb", "k", "kib"}},
	{"B", B, []string{"b", ""}},
}

// FormatBytes renders a byte count with two decimals in the largest unit
// that keeps the value >= 1, e.g. "1.50 KB". Negative counts render as 0.
func FormatBytes(bytes int64) string {
	if bytes < KB {
		return fmt.Sprintf("%d B", max(bytes, 0))
	}
	for _, u := range sizeUnits {
		if bytes >= u.size {
			return fmt.Sprintf("%.2f %s", float64(bytes)/float64(u.size), u.suffix)
		}
	}
	return fmt.Sprintf("%d B", bytes)
}

// ParseSize parses sizes such as "512", "10KB", "1.5 MB" or "2MiB". Units
// are binary and case-insensitive.
func ParseSize(size string) (int64, error) {
	s := strings.TrimSpace(size)
	split := strings.IndexFunc(s, func(r rune) bool {
		return (r < '0' || r > '9') && r != '.' && r != '-'
	})
	number, unit := s, ""
	if split >= 0 {
		number, unit = s[:split], strings.TrimSpace(s[split:])
	}

	value, err := strconv.ParseFloat(number, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size format: %s", size)
	}
	if value < 0 {
		return 0, fmt.Errorf("size must be >= 0: %s", size)
	}

	unit = strings.ToLower(unit)
	for _, u := range sizeUnits {
		for _, alias := range u.aliases {
			if unit == alias {
				return int64(value * float64(u.size)), nil
			}
		}
	}
	return 0, fmt.Errorf("unknown unit: %s", unit)
}
