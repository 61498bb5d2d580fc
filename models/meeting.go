package models

import (
	"slices"
	"time"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusRejected:
		return true
	}
	return false
}

// Terminal statuses are never left again.
func (s Status) Terminal() bool {
	return s == StatusAccepted || s == StatusRejected
}

// MeetingRequest is a proposed pairing between two participants.
type MeetingRequest struct {
	ID            string     `json:"id" bson:"id"`
	RequesterID   string     `json:"requesterId" bson:"requesterId"`
	ReceiverID    string     `json:"receiverId" bson:"receiverId"`
	Participants  []string   `json:"participants" bson:"participants"`
	Status        Status     `json:"status" bson:"status"`
	TimeSlot      *TimeRange `json:"timeSlot,omitempty" bson:"timeSlot,omitempty"`
	TableAssigned *int       `json:"tableAssigned,omitempty" bson:"tableAssigned,omitempty"`
	TableName     string     `json:"tableName,omitempty" bson:"tableName,omitempty"`
	SlotID        string     `json:"slotId,omitempty" bson:"slotId,omitempty"`
	AssignedBy    string     `json:"assignedBy,omitempty" bson:"assignedBy,omitempty"`
	CreatedAt     time.Time  `json:"createdAt" bson:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt" bson:"updatedAt"`
}

// NewMeetingRequest returns a pending request from requester to receiver.
func NewMeetingRequest(id, requesterID, receiverID string, now time.Time) MeetingRequest {
	return MeetingRequest{
		ID:           id,
		RequesterID:  requesterID,
		ReceiverID:   receiverID,
		Participants: []string{requesterID, receiverID},
		Status:       StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func (m MeetingRequest) Involves(participantID string) bool {
	return slices.Contains(m.Participants, participantID)
}

// Counterpart returns the other member of the pair.
func (m MeetingRequest) Counterpart(participantID string) string {
	if m.RequesterID == participantID {
		return m.ReceiverID
	}
	return m.RequesterID
}

// Apply records the slot a request was accepted into.
func (m *MeetingRequest) Apply(a Assignment) {
	tr := a.TimeSlot
	table := a.Table
	m.TimeSlot = &tr
	m.TableAssigned = &table
	m.TableName = a.TableName
	m.SlotID = a.SlotID
}

// Clone returns a deep copy safe to hand across store boundaries.
func (m MeetingRequest) Clone() MeetingRequest {
	c := m
	c.Participants = slices.Clone(m.Participants)
	if m.TimeSlot != nil {
		tr := *m.TimeSlot
		c.TimeSlot = &tr
	}
	if m.TableAssigned != nil {
		t := *m.TableAssigned
		c.TableAssigned = &t
	}
	return c
}
