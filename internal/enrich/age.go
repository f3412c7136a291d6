// Package enrich derives display fields for dispatcher task records.
package enrich

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"dispatch-watch/internal/models"
)

const (
	// FormattedMissing is shown when a task carries no creation date.
	FormattedMissing = "N/A"
	// FormattedInvalid is shown when the creation date cannot be parsed.
	FormattedInvalid = "Invalid Date"
)

// Age is the elapsed time since a task was created.
type Age struct {
	Seconds   int64
	Formatted string
	Valid     bool
}

var layouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000-0700",
	"2006-01-02T15:04:05-0700",
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseTimestamp understands the date encodings the dispatcher emits.
// Zone-less values are read as UTC.
func ParseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.UnixMilli(ms), nil
	}
	for _, layout := range layouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", raw)
}

// ComputeAge returns the age of a task created at raw, as seen at now.
func ComputeAge(raw string, now time.Time) Age {
	if strings.TrimSpace(raw) == "" {
		return Age{Formatted: FormattedMissing}
	}
	created, err := ParseTimestamp(raw)
	if err != nil {
		return Age{Formatted: FormattedInvalid}
	}

	secs := int64(now.Sub(created) / time.Second)
	if secs < 0 {
		secs = 0
	}
	return Age{Seconds: secs, Formatted: Format(secs), Valid: true}
}

// Format renders seconds as "H hrs M min S sec".
func Format(secs int64) string {
	return fmt.Sprintf("%d hrs %d min %d sec", secs/3600, (secs%3600)/60, secs%60)
}

// Task normalizes a raw record and stamps its age. The returned error wraps
// models.ErrMalformedRecord when the record is kept with degraded fields.
func Task(raw models.RawTask, now time.Time) (models.Task, error) {
	age := ComputeAge(string(raw.CreationDate), now)
	task := models.Task{
		ID:             raw.Key(),
		PrimaryObjects: raw.PrimaryObjects,
		OwningGroup:    raw.OwningGroup,
		ServiceName:    raw.ServiceName,
		CurrentState:   raw.CurrentState,
		CreationDate:   string(raw.CreationDate),
		AgeSeconds:     age.Seconds,
		AgeFormatted:   age.Formatted,
	}

	switch {
	case task.ID == "":
		return task, fmt.Errorf("%w: missing id", models.ErrMalformedRecord)
	case !age.Valid:
		return task, fmt.Errorf("%w: task %s creation_date %q", models.ErrMalformedRecord, task.ID, raw.CreationDate)
	}
	return task, nil
}
