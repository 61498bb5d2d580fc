// Package db implements the store contracts on MongoDB.
package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/labstack/gommon/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"rueda/store"
)

const (
	slotsColl         = "slots"
	meetingsColl      = "meetings"
	calendarsColl     = "calendars"
	settingsColl      = "settings"
	usersColl         = "users"
	notificationsColl = "notifications"

	pendingPairIndex = "pending_pair"
)

type DB struct {
	Client *mongo.Client
	Name   string

	SlotCollection         *mongo.Collection
	MeetingsCollection     *mongo.Collection
	CalendarsCollection    *mongo.Collection
	SettingsCollection     *mongo.Collection
	UserCollection         *mongo.Collection
	NotificationCollection *mongo.Collection
}

// Connect dials uri and checks the primary is reachable.
func Connect(ctx context.Context, uri, name string) (*DB, error) {
	client, err := mongo.Connect(ctx, options.Client().
		ApplyURI(uri).
		SetServerSelectionTimeout(5*time.Second))
	if err != nil {
		return nil, fmt.Errorf("connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	log.Infof("[DB] connected to %s", name)
	return Open(client, name), nil
}

// Open binds the collections of database name on an existing client.
func Open(client *mongo.Client, name string) *DB {
	d := client.Database(name)
	return &DB{
		Client:                 client,
		Name:                   name,
		SlotCollection:         d.Collection(slotsColl),
		MeetingsCollection:     d.Collection(meetingsColl),
		CalendarsCollection:    d.Collection(calendarsColl),
		SettingsCollection:     d.Collection(settingsColl),
		UserCollection:         d.Collection(usersColl),
		NotificationCollection: d.Collection(notificationsColl),
	}
}

func (d *DB) Close(ctx context.Context) error {
	return d.Client.Disconnect(ctx)
}

// EnsureIndexes creates the indexes the conditional writes rely on. The
// partial unique index on pending pairs is what makes Create reject a second
// pending request for the same ordered pair.
func (d *DB) EnsureIndexes(ctx context.Context) error {
	indexes := map[*mongo.Collection][]mongo.IndexModel{
		d.SlotCollection: {
			{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "available", Value: 1}, {Key: "startTime", Value: 1}, {Key: "tableNumber", Value: 1}}},
		},
		d.MeetingsCollection: {
			{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
			{
				Keys: bson.D{{Key: "requesterId", Value: 1}, {Key: "receiverId", Value: 1}},
				Options: options.Index().
					SetName(pendingPairIndex).
					SetUnique(true).
					SetPartialFilterExpression(bson.M{"status": "pending"}),
			},
			{Keys: bson.D{{Key: "participants", Value: 1}, {Key: "status", Value: 1}}},
		},
		d.NotificationCollection: {
			{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "timestamp", Value: -1}}},
		},
	}
	for coll, idx := range indexes {
		if _, err := coll.Indexes().CreateMany(ctx, idx); err != nil {
			return fmt.Errorf("indexes on %s: %w", coll.Name(), classify(err))
		}
	}
	return nil
}

// Stores exposes the collections through the store contracts.
func (d *DB) Stores() store.Stores {
	return store.Stores{
		Slots:         &SlotStore{c: d.SlotCollection},
		Meetings:      &MeetingStore{c: d.MeetingsCollection},
		Calendars:     &CalendarStore{c: d.CalendarsCollection},
		Config:        &ConfigStore{c: d.SettingsCollection},
		Users:         &UserDirectory{c: d.UserCollection},
		Notifications: &NotificationStore{c: d.NotificationCollection},
	}
}

// classify marks transport failures as store.ErrUnavailable so callers retry
// them. Everything else passes through.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) ||
		errors.Is(err, mongo.ErrClientDisconnected) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return err
}
