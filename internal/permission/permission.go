package permission

import (
	"errors"
	"fmt"
)

// Action is the configured handling of a tool call.
type Action string

const (
	ActionAllow Action = "allow"
	ActionDeny  Action = "deny"
	ActionAsk   Action = "ask"
)

// Reply values accepted by Checker.Respond.
const (
	ReplyOnce   = "once"
	ReplyAlways = "always"
	ReplyReject = "reject"
)

// ErrRequestNotFound is returned when answering an unknown or finished request.
var ErrRequestNotFound = errors.New("confirmation request not found")

// Request asks the user to confirm one tool call.
type Request struct {
	ID        string         `json:"id"`
	SessionID string         `json:"sessionID"`
	Tool      string         `json:"tool"` // qualified server_tool name
	CallID    string         `json:"callID,omitempty"`
	Title     string         `json:"title"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Response is a user's answer to a confirmation request.
type Response struct {
	RequestID string `json:"requestID"`
	Action    string `json:"action"` // "once" | "always" | "reject"
}

// RejectedError is returned when a tool call is denied.
type RejectedError struct {
	SessionID string
	Tool      string
	CallID    string
	Message   string
}

func (e *RejectedError) Error() string {
	return e.Message
}

// Denied returns the error for a call the configuration forbids.
func Denied(req Request) error {
	return &RejectedError{
		SessionID: req.SessionID,
		Tool:      req.Tool,
		CallID:    req.CallID,
		Message:   "Tool call denied by configuration",
	}
}

// ParseAction validates a configured tool action. Empty is accepted and
// means the default.
func ParseAction(s string) (Action, error) {
	switch a := Action(s); a {
	case "", ActionAllow, ActionDeny, ActionAsk:
		return a, nil
	}
	return "", fmt.Errorf("unknown tool action %q", s)
}

// IsRejectedError checks if an error is a confirmation rejection.
func IsRejectedError(err error) bool {
	var rejected *RejectedError
	return errors.As(err, &rejected)
}
