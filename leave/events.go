package leave

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// DOMAIN EVENTS
// =============================================================================
// Events are returned to the caller in Outcome.Events; the engine holds no
// subscriber registry. Delivery (log, Kafka, audit) is the caller's concern.

type EventType string

const (
	EventSubmitted EventType = "leave.request.submitted"
	EventApproved  EventType = "leave.request.approved"
	EventRejected  EventType = "leave.request.rejected"
	EventCancelled EventType = "leave.request.cancelled"
)

type Event struct {
	ID             string    `json:"id"`
	Type           EventType `json:"type"`
	RequestID      string    `json:"request_id"`
	OrganizationID string    `json:"organization_id"`
	UserID         string    `json:"user_id"`
	LeaveTypeID    string    `json:"leave_type_id"`
	ActorID        string    `json:"actor_id"`
	Status         Status    `json:"status"`
	StartDate      Date      `json:"start_date"`
	EndDate        Date      `json:"end_date"`
	Days           int       `json:"days"`
	OccurredAt     time.Time `json:"occurred_at"`
}

func newEvent(t EventType, r LeaveRequest, actorID string, at time.Time) Event {
	return Event{
		ID:             uuid.NewString(),
		Type:           t,
		RequestID:      r.ID,
		OrganizationID: r.OrganizationID,
		UserID:         r.UserID,
		LeaveTypeID:    r.LeaveTypeID,
		ActorID:        actorID,
		Status:         r.Status,
		StartDate:      r.StartDate,
		EndDate:        r.EndDate,
		Days:           r.DaysRequested,
		OccurredAt:     at,
	}
}

// =============================================================================
// COMMANDS - One typed struct per transition
// =============================================================================

type SubmitCommand struct {
	UserID      string
	LeaveTypeID string
	Start       Date
	End         Date
	Reason      string
}

type ApproveCommand struct {
	RequestID  string
	ApproverID string
	Comments   string
}

type RejectCommand struct {
	RequestID  string
	ApproverID string
	Comments   string
}

type CancelCommand struct {
	RequestID string
	ActorID   string
}

// Outcome is the result of a lifecycle operation.
type Outcome struct {
	Request LeaveRequest
	Events  []Event
}
