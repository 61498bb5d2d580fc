// Package feed carries change notifications about the agenda and meeting
// requests to live subscribers.
package feed

import (
	"context"
	"errors"
	"time"

	"rueda/models"
)

// TopicAgenda receives every slot change.
const TopicAgenda = "agenda"

const (
	KindAgendaChanged   = "agenda.changed"
	KindSlotUpdated     = "slot.updated"
	KindMeetingCreated  = "meeting.created"
	KindMeetingUpdated  = "meeting.updated"
	KindMeetingsCleared = "meetings.cleared"
	KindNotification    = "notification"
)

var ErrClosed = errors.New("feed: broker closed")

// ParticipantTopic is the per-participant topic for meeting and inbox events.
func ParticipantTopic(participantID string) string {
	return "participant:" + participantID
}

// Event is one change on a topic.
type Event struct {
	Topic        string                 `json:"topic"`
	Kind         string                 `json:"kind"`
	ID           string                 `json:"id,omitempty"`
	Count        int                    `json:"count,omitempty"`
	Slot         *models.Slot           `json:"slot,omitempty"`
	Meeting      *models.MeetingRequest `json:"meeting,omitempty"`
	Notification *models.Notification   `json:"notification,omitempty"`
	At           time.Time              `json:"at"`
}

// Publisher accepts events for delivery.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Broker is a Publisher that also hands out subscriptions.
type Broker interface {
	Publisher
	Subscribe(ctx context.Context, topics ...string) (*Subscription, error)
}

// MeetingEvents returns one event per participant topic of m.
func MeetingEvents(kind string, m models.MeetingRequest, at time.Time) []Event {
	evs := make([]Event, 0, len(m.Participants))
	for _, p := range m.Participants {
		mc := m.Clone()
		evs = append(evs, Event{
			Topic:   ParticipantTopic(p),
			Kind:    kind,
			ID:      m.ID,
			Meeting: &mc,
			At:      at,
		})
	}
	return evs
}

// Discard drops every event.
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(context.Context, Event) error { return nil }
