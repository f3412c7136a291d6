package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// StateComplete is the dispatcher state that resolves a task.
const StateComplete = "COMPLETE"

// RawTask is one record as returned by the dispatcher info endpoint.
type RawTask struct {
	ID             string    `json:"id"`
	UID            string    `json:"uid"`
	PrimaryObjects string    `json:"primaryObjects"`
	OwningGroup    string    `json:"owning_group"`
	ServiceName    string    `json:"serviceName"`
	CurrentState   string    `json:"currentState"`
	CreationDate   Timestamp `json:"creation_date"`
}

// Key returns the task identity, preferring id over the legacy uid field.
func (r RawTask) Key() string {
	if r.ID != "" {
		return r.ID
	}
	return r.UID
}

// Task is a normalized dispatcher task with derived age fields.
type Task struct {
	ID             string `json:"id"`
	PrimaryObjects string `json:"primaryObjects"`
	OwningGroup    string `json:"owning_group"`
	ServiceName    string `json:"serviceName"`
	CurrentState   string `json:"currentState"`
	CreationDate   string `json:"creation_date,omitempty"`
	AgeSeconds     int64  `json:"ageSeconds"`
	AgeFormatted   string `json:"time_difference"`
}

// Complete reports whether the dispatcher has resolved the task.
func (t Task) Complete() bool {
	return t.CurrentState == StateComplete
}

// Timestamp holds a creation date exactly as the dispatcher sent it. The
// dispatcher emits either a date string or epoch milliseconds.
type Timestamp string

func (ts *Timestamp) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0, bytes.Equal(b, []byte("null")):
		*ts = ""
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("creation_date: %w", err)
		}
		*ts = Timestamp(s)
	default:
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return fmt.Errorf("creation_date: %w", err)
		}
		*ts = Timestamp(n.String())
	}
	return nil
}
