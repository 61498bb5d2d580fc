package models

import "time"

// Slot is one bookable (table, time range) cell of the agenda.
// Available is false exactly when AssignedRequestID names an accepted request.
type Slot struct {
	ID                string    `json:"id" bson:"id"`
	TableNumber       int       `json:"tableNumber" bson:"tableNumber"`
	TableName         string    `json:"tableName,omitempty" bson:"tableName,omitempty"`
	StartTime         Clock     `json:"startTime" bson:"startTime"`
	EndTime           Clock     `json:"endTime" bson:"endTime"`
	Available         bool      `json:"available" bson:"available"`
	AssignedRequestID string    `json:"assignedRequestId,omitempty" bson:"assignedRequestId,omitempty"`
	UpdatedAt         time.Time `json:"updatedAt" bson:"updatedAt"`
}

func (s Slot) Range() TimeRange {
	return TimeRange{Start: s.StartTime, End: s.EndTime}
}

// Before orders slots by (startTime, tableNumber).
func (s Slot) Before(o Slot) bool {
	if s.StartTime != o.StartTime {
		return s.StartTime < o.StartTime
	}
	return s.TableNumber < o.TableNumber
}

// CompareSlots is Before as a three-way comparison for slices.SortFunc.
func CompareSlots(a, b Slot) int {
	switch {
	case a.Before(b):
		return -1
	case b.Before(a):
		return 1
	}
	return 0
}

// Assignment is what an accepted request records about its slot.
type Assignment struct {
	SlotID    string
	TimeSlot  TimeRange
	Table     int
	TableName string
}

func AssignmentFor(s Slot) Assignment {
	return Assignment{
		SlotID:    s.ID,
		TimeSlot:  s.Range(),
		Table:     s.TableNumber,
		TableName: s.TableName,
	}
}
