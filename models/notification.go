package models

import "time"

type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityError   Severity = "error"
	SeverityInfo    Severity = "info"
)

// Notice is an outcome message handed to a notification sink.
type Notice struct {
	Title     string
	Message   string
	Severity  Severity
	MeetingID string
}

// Notification is a persisted inbox entry.
type Notification struct {
	ID        string    `json:"id" bson:"id"`
	UserID    string    `json:"userId" bson:"userId"`
	Title     string    `json:"title" bson:"title"`
	Message   string    `json:"message" bson:"message"`
	Type      Severity  `json:"type" bson:"type"`
	MeetingID string    `json:"meetingId,omitempty" bson:"meetingId,omitempty"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
	Read      bool      `json:"read" bson:"read"`
}
