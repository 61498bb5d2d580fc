package db

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"rueda/models"
	"rueda/store"
)

// UserDirectory reads participant profiles owned by the registration service.
type UserDirectory struct {
	c *mongo.Collection
}

var _ store.UserDirectory = (*UserDirectory)(nil)

var participantProjection = bson.M{
	"_id": 0, "userid": 1, "username": 1, "name": 1,
	"organization": 1, "title": 1, "email": 1, "role": 1,
}

func (u *UserDirectory) GetParticipant(ctx context.Context, participantID string) (*models.Participant, error) {
	var p models.Participant
	err := u.c.FindOne(ctx, bson.M{"userid": participantID},
		options.FindOne().SetProjection(participantProjection)).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("participant %s: %w", participantID, store.ErrNotFound)
	}
	if err != nil {
		return nil, classify(err)
	}
	return &p, nil
}

func (u *UserDirectory) SearchParticipants(ctx context.Context, term string, limit int) ([]models.Participant, error) {
	filter := bson.M{}
	if term = strings.TrimSpace(term); term != "" {
		rx := primitive.Regex{Pattern: regexp.QuoteMeta(term), Options: "i"}
		filter["$or"] = bson.A{
			bson.M{"name": rx},
			bson.M{"username": rx},
			bson.M{"organization": rx},
		}
	}
	opts := options.Find().
		SetProjection(participantProjection).
		SetSort(bson.D{{Key: "name", Value: 1}, {Key: "userid", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cur, err := u.c.Find(ctx, filter, opts)
	if err != nil {
		return nil, classify(err)
	}
	var out []models.Participant
	if err := cur.All(ctx, &out); err != nil {
		return nil, classify(err)
	}
	return out, nil
}
