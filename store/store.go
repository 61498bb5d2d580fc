// Package store declares the persistence contracts of the allocation service
// and ships an in-memory implementation of all of them.
//
// Every mutation that other writers can race on is a single conditional
// write: Reserve only succeeds on an available slot, Transition only on a
// request still in the expected status, Claim only while the participant's
// calendar has room and the time range is free.
package store

import (
	"context"
	"errors"
	"iter"

	"rueda/models"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrDuplicatePending = errors.New("a pending request already exists for this pair")
	ErrAlreadyProcessed = errors.New("request already processed")
	ErrSlotConflict     = errors.New("slot reservation conflict")
	ErrUnavailable      = errors.New("store unavailable")
	ErrConfigMissing    = errors.New("agenda configuration missing")
	ErrCalendarConflict = errors.New("participant already has a meeting in this time range")
	ErrCalendarFull     = errors.New("participant calendar is full")
)

type SlotStore interface {
	InsertSlots(ctx context.Context, slots []models.Slot) error
	// ListSlots returns every slot ordered by (startTime, tableNumber).
	ListSlots(ctx context.Context) ([]models.Slot, error)
	// ListAvailable runs a fresh query on each iteration and yields
	// available slots ordered by (startTime, tableNumber).
	ListAvailable(ctx context.Context) iter.Seq2[models.Slot, error]
	GetSlot(ctx context.Context, slotID string) (*models.Slot, error)
	// Reserve marks the slot taken by requestID. It fails with
	// ErrSlotConflict when the slot is no longer available.
	Reserve(ctx context.Context, slotID, requestID string) (*models.Slot, error)
	Release(ctx context.Context, slotID string) (*models.Slot, error)
	// ReleaseAll frees every reserved slot and reports how many changed.
	ReleaseAll(ctx context.Context) (int, error)
	DeleteSlots(ctx context.Context) (int, error)
}

// Role narrows a listing to one side of the pair.
type Role string

const (
	RoleAny      Role = ""
	RoleIncoming Role = "incoming"
	RoleOutgoing Role = "outgoing"
)

type MeetingFilter struct {
	Role   Role
	Status models.Status
}

type MeetingStore interface {
	// Create stores a pending request. It fails with ErrDuplicatePending when
	// requester already has a pending request to receiver.
	Create(ctx context.Context, id, requesterID, receiverID string) (*models.MeetingRequest, error)
	Get(ctx context.Context, id string) (*models.MeetingRequest, error)
	// Transition moves the request from -> to in one conditional write and
	// fails with ErrAlreadyProcessed if the stored status is not from.
	// assign is recorded when non-nil.
	Transition(ctx context.Context, id string, from, to models.Status, assign *models.Assignment) (*models.MeetingRequest, error)
	AcceptedFor(ctx context.Context, participantID string) ([]models.MeetingRequest, error)
	ListFor(ctx context.Context, participantID string, f MeetingFilter) ([]models.MeetingRequest, error)
	// InsertAccepted stores an already accepted request (operator assignment).
	InsertAccepted(ctx context.Context, m models.MeetingRequest) error
	// DeleteAccepted removes every accepted request and reports how many.
	DeleteAccepted(ctx context.Context) (int, error)
}

// CalendarStore keeps one document per participant listing the time ranges
// they are committed to. Claims are keyed by request id.
type CalendarStore interface {
	// Claim records tr for requestID. It fails with ErrCalendarConflict if tr
	// is already claimed and with ErrCalendarFull if limit claims exist.
	Claim(ctx context.Context, participantID, requestID string, tr models.TimeRange, limit int) error
	Unclaim(ctx context.Context, participantID, requestID string) error
	ClearCalendars(ctx context.Context) (int, error)
}

type ConfigStore interface {
	// GetConfig fails with ErrConfigMissing before the first SetConfig.
	GetConfig(ctx context.Context) (*models.AgendaConfig, error)
	SetConfig(ctx context.Context, cfg models.AgendaConfig) error
}

type UserDirectory interface {
	GetParticipant(ctx context.Context, participantID string) (*models.Participant, error)
	SearchParticipants(ctx context.Context, term string, limit int) ([]models.Participant, error)
}

type NotificationStore interface {
	AddNotification(ctx context.Context, n models.Notification) error
	ListNotifications(ctx context.Context, participantID string, unreadOnly bool) ([]models.Notification, error)
	// MarkRead flags the given notifications of participantID as read; no ids
	// marks all of them. It reports how many changed.
	MarkRead(ctx context.Context, participantID string, ids ...string) (int, error)
}

// Stores bundles one implementation of each contract.
type Stores struct {
	Slots         SlotStore
	Meetings      MeetingStore
	Calendars     CalendarStore
	Config        ConfigStore
	Users         UserDirectory
	Notifications NotificationStore
}

// Collect drains seq into a slice, stopping at the first error.
func Collect[T any](seq iter.Seq2[T, error]) ([]T, error) {
	var out []T
	for v, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, v)
	}
	return out, nil
}
