package allocation

import (
	"errors"
	"fmt"

	"rueda/models"
)

var (
	ErrCapacityExceeded   = errors.New("capacity exceeded")
	ErrNoAvailableSlot    = errors.New("no available slot")
	ErrTimeConflict       = errors.New("participant already has a meeting at this time")
	ErrSameParticipant    = errors.New("a participant cannot meet themselves")
	ErrMissingParticipant = errors.New("participant id required")

	// errLostRace means a concurrent writer took the candidate slot or time
	// range first; the caller rescans.
	errLostRace = errors.New("lost race for slot")

	// errClaimContended means another in-flight decision holds the time range
	// on a participant's calendar. Accept rereads the ledgers and rescans.
	errClaimContended = errors.New("time range claimed by another request")
)

type contendedError struct {
	participantID string
	timeSlot      models.TimeRange
}

func (e *contendedError) Error() string {
	return fmt.Sprintf("%s at %s: %v", e.participantID, e.timeSlot, errClaimContended)
}

func (e *contendedError) Unwrap() error { return errClaimContended }

// CapacityError names the participant who is already at the cap.
type CapacityError struct {
	ParticipantID string
	Limit         int
	Accepted      int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("participant %s already has %d of %d accepted meetings", e.ParticipantID, e.Accepted, e.Limit)
}

func (e *CapacityError) Unwrap() error { return ErrCapacityExceeded }

// NoSlotError is returned when no slot is free for both participants.
// ParticipantID, when set, is the participant whose own meetings cover every
// remaining candidate.
type NoSlotError struct {
	RequestID     string
	ParticipantID string
	Candidates    int
	Attempts      int
}

func (e *NoSlotError) Error() string {
	msg := "no available slot for request " + e.RequestID
	if e.ParticipantID != "" {
		msg += fmt.Sprintf(": participant %s is busy at every remaining time", e.ParticipantID)
	}
	return msg
}

func (e *NoSlotError) Unwrap() error { return ErrNoAvailableSlot }

// ConflictError is returned by operator assignment when a participant is
// already booked at the chosen time.
type ConflictError struct {
	ParticipantID string
	TimeSlot      models.TimeRange
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("participant %s already has a meeting at %s", e.ParticipantID, e.TimeSlot)
}

func (e *ConflictError) Unwrap() error { return ErrTimeConflict }
