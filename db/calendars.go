package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"rueda/models"
	"rueda/store"
)

// calendarDoc is one participant's committed time ranges, keyed by
// participant id.
type calendarDoc struct {
	ParticipantID string          `bson:"_id"`
	Claims        []calendarClaim `bson:"claims"`
	UpdatedAt     time.Time       `bson:"updatedAt"`
}

type calendarClaim struct {
	RequestID string       `bson:"requestId"`
	Start     models.Clock `bson:"start"`
	End       models.Clock `bson:"end"`
}

func (c calendarClaim) Range() models.TimeRange {
	return models.TimeRange{Start: c.Start, End: c.End}
}

type CalendarStore struct {
	c *mongo.Collection
}

var _ store.CalendarStore = (*CalendarStore)(nil)

// Claim pushes the range onto the participant's document only if no claim
// has the same range and fewer than limit claims exist. The upsert creates
// the document on first use; when the document exists and the filter misses,
// the upsert collides on _id and the document is read to say why.
func (s *CalendarStore) Claim(ctx context.Context, participantID, requestID string, tr models.TimeRange, limit int) error {
	filter := bson.M{
		"_id": participantID,
		"claims": bson.M{"$not": bson.M{"$elemMatch": bson.M{
			"start": tr.Start,
			"end":   tr.End,
		}}},
	}
	if limit > 0 {
		filter[fmt.Sprintf("claims.%d", limit-1)] = bson.M{"$exists": false}
	}
	update := bson.M{
		"$push": bson.M{"claims": calendarClaim{RequestID: requestID, Start: tr.Start, End: tr.End}},
		"$set":  bson.M{"updatedAt": time.Now().UTC()},
	}

	for range 3 {
		_, err := s.c.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
		if err == nil {
			return nil
		}
		if !mongo.IsDuplicateKeyError(err) {
			return classify(err)
		}

		var doc calendarDoc
		err = s.c.FindOne(ctx, bson.M{"_id": participantID}).Decode(&doc)
		if errors.Is(err, mongo.ErrNoDocuments) {
			continue
		}
		if err != nil {
			return classify(err)
		}
		for _, c := range doc.Claims {
			if c.Range() == tr {
				if c.RequestID == requestID {
					return nil
				}
				return fmt.Errorf("%s at %s: %w", participantID, tr, store.ErrCalendarConflict)
			}
		}
		if limit > 0 && len(doc.Claims) >= limit {
			return fmt.Errorf("%s holds %d: %w", participantID, len(doc.Claims), store.ErrCalendarFull)
		}
		// the document changed between the update and the read
	}
	return fmt.Errorf("claim %s for %s: %w", tr, participantID, store.ErrUnavailable)
}

func (s *CalendarStore) Unclaim(ctx context.Context, participantID, requestID string) error {
	_, err := s.c.UpdateOne(ctx,
		bson.M{"_id": participantID},
		bson.M{
			"$pull": bson.M{"claims": bson.M{"requestId": requestID}},
			"$set":  bson.M{"updatedAt": time.Now().UTC()},
		},
	)
	return classify(err)
}

func (s *CalendarStore) ClearCalendars(ctx context.Context) (int, error) {
	res, err := s.c.DeleteMany(ctx, bson.M{})
	if err != nil {
		return 0, classify(err)
	}
	return int(res.DeletedCount), nil
}
