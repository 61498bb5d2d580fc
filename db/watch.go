package db

import (
	"context"
	"fmt"
	"time"

	"github.com/labstack/gommon/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"rueda/feed"
	"rueda/models"
)

type changeEvent struct {
	OperationType string `bson:"operationType"`
	NS            struct {
		Coll string `bson:"coll"`
	} `bson:"ns"`
	FullDocument bson.Raw `bson:"fullDocument"`
}

// Watch tails the slot and meeting collections and republishes every change
// on pub until ctx ends. It needs a replica set; on a standalone server the
// stream fails to open and Watch returns that error.
func (d *DB) Watch(ctx context.Context, pub feed.Publisher) error {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"ns.coll": bson.M{"$in": bson.A{slotsColl, meetingsColl}}}}},
	}
	cs, err := d.Client.Database(d.Name).Watch(ctx, pipeline,
		options.ChangeStream().SetFullDocument(options.UpdateLookup))
	if err != nil {
		return fmt.Errorf("open change stream: %w", classify(err))
	}
	defer cs.Close(context.WithoutCancel(ctx))

	log.Infof("[DB] watching %s.%s and %s.%s", d.Name, slotsColl, d.Name, meetingsColl)
	for cs.Next(ctx) {
		var ev changeEvent
		if err := cs.Decode(&ev); err != nil {
			log.Warnf("[DB] undecodable change: %v", err)
			continue
		}
		for _, out := range translate(ev, time.Now()) {
			if err := pub.Publish(ctx, out); err != nil {
				log.Warnf("[DB] publish %s: %v", out.Kind, err)
			}
		}
	}
	if err := cs.Err(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("change stream: %w", classify(err))
	}
	return nil
}

// translate maps one change to the feed events the memory store would have
// published for the same write.
func translate(ev changeEvent, at time.Time) []feed.Event {
	switch ev.NS.Coll {
	case slotsColl:
		if ev.OperationType == "delete" || ev.FullDocument == nil {
			return []feed.Event{{Topic: feed.TopicAgenda, Kind: feed.KindAgendaChanged, Count: 1, At: at}}
		}
		var s models.Slot
		if err := bson.Unmarshal(ev.FullDocument, &s); err != nil {
			log.Warnf("[DB] decode slot change: %v", err)
			return nil
		}
		return []feed.Event{{Topic: feed.TopicAgenda, Kind: feed.KindSlotUpdated, ID: s.ID, Slot: &s, At: at}}

	case meetingsColl:
		if ev.OperationType == "delete" || ev.FullDocument == nil {
			return []feed.Event{{Topic: feed.TopicAgenda, Kind: feed.KindMeetingsCleared, Count: 1, At: at}}
		}
		var m models.MeetingRequest
		if err := bson.Unmarshal(ev.FullDocument, &m); err != nil {
			log.Warnf("[DB] decode meeting change: %v", err)
			return nil
		}
		kind := feed.KindMeetingUpdated
		if ev.OperationType == "insert" {
			kind = feed.KindMeetingCreated
		}
		return feed.MeetingEvents(kind, m, at)
	}
	return nil
}
