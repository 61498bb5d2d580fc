package db

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"rueda/models"
	"rueda/store"
)

type NotificationStore struct {
	c *mongo.Collection
}

var _ store.NotificationStore = (*NotificationStore)(nil)

func (s *NotificationStore) AddNotification(ctx context.Context, n models.Notification) error {
	_, err := s.c.InsertOne(ctx, n)
	return classify(err)
}

// ListNotifications returns newest first.
func (s *NotificationStore) ListNotifications(ctx context.Context, participantID string, unreadOnly bool) ([]models.Notification, error) {
	filter := bson.M{"userId": participantID}
	if unreadOnly {
		filter["read"] = false
	}
	cur, err := s.c.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}}).SetLimit(200))
	if err != nil {
		return nil, classify(err)
	}
	var out []models.Notification
	if err := cur.All(ctx, &out); err != nil {
		return nil, classify(err)
	}
	return out, nil
}

func (s *NotificationStore) MarkRead(ctx context.Context, participantID string, ids ...string) (int, error) {
	filter := bson.M{"userId": participantID, "read": false}
	if len(ids) > 0 {
		filter["id"] = bson.M{"$in": ids}
	}
	res, err := s.c.UpdateMany(ctx, filter, bson.M{"$set": bson.M{"read": true}})
	if err != nil {
		return 0, classify(err)
	}
	return int(res.ModifiedCount), nil
}
