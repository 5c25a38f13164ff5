package common

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseClock parses "HH:MM" or "HH:MM:SS" into hour and minute.
func ParseClock(s string) (int, int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 1 || len(parts) > 3 || parts[0] == "" {
		return 0, 0, fmt.Errorf("invalid time %q", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	minute := 0
	if len(parts) > 1 {
		minute, err = strconv.Atoi(parts[1])
		if err != nil || minute < 0 || minute > 59 {
			return 0, 0, fmt.Errorf("invalid minute in %q", s)
		}
	}
	return hour, minute, nil
}

// FormatRunDuration renders how long a run took, or since when it is running.
func FormatRunDuration(status string, createdAt time.Time, finishedAt *time.Time) string {
	if status == "running" && !createdAt.IsZero() {
		return "Running since " + createdAt.Local().Format("15:04")
	}
	if finishedAt == nil || createdAt.IsZero() {
		return "-"
	}
	secs := int(finishedAt.Sub(createdAt).Seconds())
	if secs < 60 {
		return fmt.Sprintf("%ds", secs)
	}
	m, s := secs/60, secs%60
	if s == 0 {
		return fmt.Sprintf("%dm", m)
	}
	return fmt.Sprintf("%dm %ds", m, s)
}
