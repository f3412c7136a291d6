package models

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrSourceUnavailable means the dispatcher task list could not be fetched.
	ErrSourceUnavailable = errors.New("dispatcher source unavailable")
	// ErrMalformedRecord flags a record kept with degraded derived fields.
	ErrMalformedRecord = errors.New("malformed task record")
	// ErrInvalidRequest rejects an action before any dispatcher call.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrSinkFailure means the dispatcher rejected or failed an action.
	ErrSinkFailure = errors.New("dispatcher action failed")
	// ErrNotifyFailure means an escalation message could not be delivered.
	ErrNotifyFailure = errors.New("notification delivery failed")
)

// SinkError carries the dispatcher status for a failed action.
type SinkError struct {
	Action ActionKind
	Status int // 0 when no response was received
	IDs    []string
	Err    error
}

func (e *SinkError) Error() string {
	msg := fmt.Sprintf("%s %s for [%s] (status %d)", ErrSinkFailure, e.Action, strings.Join(e.IDs, ", "), e.Status)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SinkError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrSinkFailure}
	}
	return []error{ErrSinkFailure, e.Err}
}
