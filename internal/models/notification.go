package models

import (
	"time"

	"github.com/google/uuid"
)

// Stage is the escalation level of an overdue-task alert.
type Stage int

const (
	StageNone Stage = iota
	Stage1
	Stage2
	Stage3
)

func (s Stage) String() string {
	switch s {
	case StageNone:
		return "none"
	case Stage1:
		return "stage1"
	case Stage2:
		return "stage2"
	case Stage3:
		return "stage3"
	default:
		return "unknown"
	}
}

func (s Stage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Notification is one outgoing escalation message covering a batch of tasks.
type Notification struct {
	ID        uuid.UUID `json:"id"`
	BatchID   uuid.UUID `json:"batch_id"`
	Stage     Stage     `json:"stage"`
	CreatedAt time.Time `json:"created_at"`
	To        []string  `json:"to"`
	CC        []string  `json:"cc,omitempty"`
	Subject   string    `json:"subject"`
	Tasks     []Task    `json:"tasks"`
}
