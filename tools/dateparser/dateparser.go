package dateparser

import (
	"fmt"
	"time"
)

// ParseReadingDate parses a reading date from the formats field
// applications are known to send.
func ParseReadingDate(dateStr string) (time.Time, error) {
	formats := []string{
		time.RFC3339,          // 2026-01-02T15:04:05Z07:00
		"2006-01-02 15:04:05", // date and time, no zone
		"2006-01-02",          // date only
	}

	var lastErr error
	for _, format := range formats {
		t, err := time.Parse(format, dateStr)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}

	return time.Time{}, fmt.Errorf("failed to parse reading date '%s': %w", dateStr, lastErr)
}
