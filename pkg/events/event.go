package events

import "time"

// Event defines the contract for all system events.
type Event interface {
	// EventType returns the unique code for this event (e.g., "EXCHANGE_SAVED").
	EventType() string

	// Payload returns the data associated with the event.
	Payload() map[string]interface{}

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// BaseEvent is the common implementation used by the constructors below.
type BaseEvent struct {
	Type       string
	Data       map[string]interface{}
	OccurredAt time.Time
}

func (e BaseEvent) EventType() string {
	return e.Type
}

func (e BaseEvent) Payload() map[string]interface{} {
	return e.Data
}

func (e BaseEvent) Timestamp() time.Time {
	return e.OccurredAt
}

const (
	TypeExchangeSaved    = "EXCHANGE_SAVED"
	TypeSessionScheduled = "SESSION_SCHEDULED"
	TypeCourseDrafted    = "COURSE_DRAFTED"
	TypeReminderDue      = "REMINDER_DUE"
)

// NewExchangeSaved fires after a conversational turn has been persisted
// locally; the consumer picks it up to index the exchange semantically.
func NewExchangeSaved(subjectID, sessionID, exchangeID string) BaseEvent {
	return BaseEvent{
		Type: TypeExchangeSaved,
		Data: map[string]interface{}{
			"subject_id":  subjectID,
			"session_id":  sessionID,
			"exchange_id": exchangeID,
		},
		OccurredAt: time.Now(),
	}
}

// NewSessionScheduled fires when a validated live session has been created
// in the directory.
func NewSessionScheduled(userID string, session map[string]interface{}) BaseEvent {
	return BaseEvent{
		Type: TypeSessionScheduled,
		Data: map[string]interface{}{
			"user_id": userID,
			"session": session,
		},
		OccurredAt: time.Now(),
	}
}

// NewCourseDrafted fires when a course draft passes validation and is
// committed to the directory.
func NewCourseDrafted(userID string, course map[string]interface{}) BaseEvent {
	return BaseEvent{
		Type: TypeCourseDrafted,
		Data: map[string]interface{}{
			"user_id": userID,
			"course":  course,
		},
		OccurredAt: time.Now(),
	}
}

// NewReminderDue fires when a live session is close enough to its start
// time that participants should be notified.
func NewReminderDue(userID, message string, sessionID string) BaseEvent {
	return BaseEvent{
		Type: TypeReminderDue,
		Data: map[string]interface{}{
			"user_id":    userID,
			"message":    message,
			"session_id": sessionID,
		},
		OccurredAt: time.Now(),
	}
}
