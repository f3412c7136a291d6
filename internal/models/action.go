package models

import (
	"encoding/json"
	"fmt"
)

// ActionKind is a bulk operator action the dispatcher accepts.
type ActionKind string

const (
	ActionResubmit ActionKind = "resubmit"
	ActionRecreate ActionKind = "recreate"
	ActionDelete   ActionKind = "delete"
)

// ActionKinds lists every supported action in route order.
var ActionKinds = []ActionKind{ActionResubmit, ActionRecreate, ActionDelete}

// ParseActionKind validates an action name.
func ParseActionKind(s string) (ActionKind, error) {
	for _, k := range ActionKinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: unknown action %q", ErrInvalidRequest, s)
}

// ActionRequest is the payload forwarded to the dispatcher action endpoint.
type ActionRequest struct {
	UIDs   []string   `json:"uids"`
	Action ActionKind `json:"action"`
	Site   string     `json:"site"`
}

// ActionResult is the dispatcher's answer to an action.
type ActionResult struct {
	Status int             `json:"status"`
	Body   json.RawMessage `json:"data,omitempty"`
}
