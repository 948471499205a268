package engine

import (
	"strings"
	"time"
)

// BucketFor formats a deterministic context key from an event's time and
// location: "weekday|morning|kitchen". Learned patterns are partitioned by
// this key, so the same inputs must always yield the same string.
func BucketFor(t time.Time, location string) string {
	daykind := "weekday"
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		daykind = "weekend"
	}

	var segment string
	switch h := t.Hour(); {
	case h < 6:
		segment = "night"
	case h < 12:
		segment = "morning"
	case h < 18:
		segment = "afternoon"
	default:
		segment = "evening"
	}

	loc := strings.ToLower(strings.TrimSpace(location))
	if loc == "" {
		loc = "anywhere"
	}

	return daykind + "|" + segment + "|" + loc
}
