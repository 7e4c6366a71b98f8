package quotes

import (
	"fmt"
	"strings"

	"github.com/ampere-erp/ampere-erp/internal/platform/httpx"
)

// Status is the lifecycle state of a quote.
type Status string

const (
	StatusDraft      Status = "draft"
	StatusSent       Status = "sent"
	StatusApproved   Status = "approved"
	StatusRejected   Status = "rejected"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// Statuses lists every known status in lifecycle order.
var Statuses = []Status{
	StatusDraft, StatusSent, StatusApproved, StatusRejected,
	StatusInProgress, StatusCompleted, StatusCancelled,
}

// ParseStatus rejects values outside the closed set.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.TrimSpace(raw))
	if s.Valid() {
		return s, nil
	}
	return "", fmt.Errorf("%w: unknown quote status %q", httpx.ErrValidation, raw)
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}
	return false
}

// Mutable reports whether lines, client and observations may still change.
func (s Status) Mutable() bool {
	return s != StatusCompleted && s != StatusCancelled
}

// Deletable reports whether the quote may be removed. Completed quotes are
// deletable but the removal is flagged in the audit trail.
func (s Status) Deletable() bool {
	return s != StatusCancelled
}

// Receivable reports whether outstanding balances count as debt.
func (s Status) Receivable() bool {
	return s == StatusApproved || s == StatusInProgress || s == StatusCompleted
}

// Action is a user-invoked lifecycle step.
type Action string

const (
	ActionSend    Action = "send"
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
	ActionStart   Action = "start"
	ActionCancel  Action = "cancel"
	ActionFinish  Action = "finish"
)

type transition struct {
	from []Status
	to   Status
}

var transitions = map[Action]transition{
	ActionSend:    {from: []Status{StatusDraft}, to: StatusSent},
	ActionApprove: {from: []Status{StatusDraft, StatusSent}, to: StatusApproved},
	ActionReject:  {from: []Status{StatusDraft, StatusSent}, to: StatusRejected},
	ActionStart:   {from: []Status{StatusApproved}, to: StatusInProgress},
	ActionCancel:  {from: []Status{StatusApproved}, to: StatusCancelled},
	ActionFinish:  {from: []Status{StatusInProgress}, to: StatusCompleted},
}

// Next returns the status reached by applying action to current.
func Next(current Status, action Action) (Status, error) {
	t, ok := transitions[action]
	if !ok {
		return "", fmt.Errorf("%w: unknown action %q", httpx.ErrValidation, action)
	}
	for _, from := range t.from {
		if current == from {
			return t.to, nil
		}
	}
	return "", &TransitionError{From: current, Action: action}
}

// TransitionError reports an action not allowed from the current status.
type TransitionError struct {
	From   Status
	Action Action
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s a quote in status %s", e.Action, e.From)
}

// Unwrap maps the error to a conflict.
func (e *TransitionError) Unwrap() error {
	return httpx.ErrConflict
}
