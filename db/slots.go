package db

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"rueda/models"
	"rueda/store"
)

var slotOrder = bson.D{{Key: "startTime", Value: 1}, {Key: "tableNumber", Value: 1}}

type SlotStore struct {
	c *mongo.Collection
}

var _ store.SlotStore = (*SlotStore)(nil)

func (s *SlotStore) InsertSlots(ctx context.Context, slots []models.Slot) error {
	if len(slots) == 0 {
		return nil
	}
	docs := make([]any, len(slots))
	for i := range slots {
		docs[i] = slots[i]
	}
	_, err := s.c.InsertMany(ctx, docs)
	return classify(err)
}

func (s *SlotStore) ListSlots(ctx context.Context) ([]models.Slot, error) {
	cur, err := s.c.Find(ctx, bson.M{}, options.Find().SetSort(slotOrder))
	if err != nil {
		return nil, classify(err)
	}
	var out []models.Slot
	if err := cur.All(ctx, &out); err != nil {
		return nil, classify(err)
	}
	return out, nil
}

// ListAvailable opens a new cursor each time the sequence is ranged over.
func (s *SlotStore) ListAvailable(ctx context.Context) iter.Seq2[models.Slot, error] {
	return func(yield func(models.Slot, error) bool) {
		cur, err := s.c.Find(ctx, bson.M{"available": true}, options.Find().SetSort(slotOrder).SetBatchSize(64))
		if err != nil {
			yield(models.Slot{}, classify(err))
			return
		}
		defer cur.Close(context.WithoutCancel(ctx))

		for cur.Next(ctx) {
			var sl models.Slot
			if err := cur.Decode(&sl); err != nil {
				yield(models.Slot{}, fmt.Errorf("decode slot: %w", err))
				return
			}
			if !yield(sl, nil) {
				return
			}
		}
		if err := cur.Err(); err != nil {
			yield(models.Slot{}, classify(err))
		}
	}
}

func (s *SlotStore) GetSlot(ctx context.Context, slotID string) (*models.Slot, error) {
	var sl models.Slot
	err := s.c.FindOne(ctx, bson.M{"id": slotID}).Decode(&sl)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("slot %s: %w", slotID, store.ErrNotFound)
	}
	if err != nil {
		return nil, classify(err)
	}
	return &sl, nil
}

// Reserve flips available in a single conditional update. A miss is either
// an unknown id or a slot someone else already holds.
func (s *SlotStore) Reserve(ctx context.Context, slotID, requestID string) (*models.Slot, error) {
	var sl models.Slot
	err := s.c.FindOneAndUpdate(ctx,
		bson.M{"id": slotID, "available": true},
		bson.M{"$set": bson.M{"available": false, "assignedRequestId": requestID, "updatedAt": time.Now()}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&sl)
	if errors.Is(err, mongo.ErrNoDocuments) {
		if _, gerr := s.GetSlot(ctx, slotID); gerr != nil {
			return nil, gerr
		}
		return nil, fmt.Errorf("slot %s: %w", slotID, store.ErrSlotConflict)
	}
	if err != nil {
		return nil, classify(err)
	}
	return &sl, nil
}

func (s *SlotStore) Release(ctx context.Context, slotID string) (*models.Slot, error) {
	var sl models.Slot
	err := s.c.FindOneAndUpdate(ctx,
		bson.M{"id": slotID},
		bson.M{
			"$set":   bson.M{"available": true, "updatedAt": time.Now()},
			"$unset": bson.M{"assignedRequestId": ""},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&sl)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("slot %s: %w", slotID, store.ErrNotFound)
	}
	if err != nil {
		return nil, classify(err)
	}
	return &sl, nil
}

func (s *SlotStore) ReleaseAll(ctx context.Context) (int, error) {
	res, err := s.c.UpdateMany(ctx,
		bson.M{"$or": bson.A{
			bson.M{"available": false},
			bson.M{"assignedRequestId": bson.M{"$exists": true}},
		}},
		bson.M{
			"$set":   bson.M{"available": true, "updatedAt": time.Now()},
			"$unset": bson.M{"assignedRequestId": ""},
		},
	)
	if err != nil {
		return 0, classify(err)
	}
	return int(res.ModifiedCount), nil
}

func (s *SlotStore) DeleteSlots(ctx context.Context) (int, error) {
	res, err := s.c.DeleteMany(ctx, bson.M{})
	if err != nil {
		return 0, classify(err)
	}
	return int(res.DeletedCount), nil
}
