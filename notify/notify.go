// Package notify delivers allocation outcomes to participants.
package notify

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/gommon/log"

	"rueda/feed"
	"rueda/models"
	"rueda/store"
)

// Sink receives one notice for one participant. Delivery is best effort:
// callers log failures and carry on.
type Sink interface {
	Notify(ctx context.Context, participantID string, n models.Notice) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, participantID string, n models.Notice) error

func (f SinkFunc) Notify(ctx context.Context, participantID string, n models.Notice) error {
	return f(ctx, participantID, n)
}

// Discard accepts and drops every notice.
var Discard Sink = SinkFunc(func(context.Context, string, models.Notice) error { return nil })

// Inbox persists notices as unread notifications and, when a publisher is
// set, pushes the stored notification to the participant's feed topic.
type Inbox struct {
	store store.NotificationStore
	pub   feed.Publisher
	now   func() time.Time
}

func NewInbox(s store.NotificationStore, pub feed.Publisher) *Inbox {
	if pub == nil {
		pub = feed.Discard
	}
	return &Inbox{store: s, pub: pub, now: time.Now}
}

func (i *Inbox) Notify(ctx context.Context, participantID string, n models.Notice) error {
	rec := models.Notification{
		ID:        uuid.NewString(),
		UserID:    participantID,
		Title:     n.Title,
		Message:   n.Message,
		Type:      n.Severity,
		MeetingID: n.MeetingID,
		Timestamp: i.now(),
	}
	if err := i.store.AddNotification(ctx, rec); err != nil {
		return err
	}
	return i.pub.Publish(ctx, feed.Event{
		Topic:        feed.ParticipantTopic(participantID),
		Kind:         feed.KindNotification,
		ID:           rec.ID,
		Notification: &rec,
		At:           rec.Timestamp,
	})
}

// Fanout delivers to every sink and joins their errors.
type Fanout []Sink

func (f Fanout) Notify(ctx context.Context, participantID string, n models.Notice) error {
	var errs []error
	for _, s := range f {
		if err := s.Notify(ctx, participantID, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Log writes notices to the service log.
var Log Sink = SinkFunc(func(_ context.Context, participantID string, n models.Notice) error {
	log.Infof("[Notify] %s <- %s: %s", participantID, n.Title, n.Message)
	return nil
})
