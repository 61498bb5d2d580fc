package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"rueda/models"
	"rueda/store"
)

var meetingOrder = bson.D{{Key: "createdAt", Value: 1}, {Key: "id", Value: 1}}

type MeetingStore struct {
	c *mongo.Collection
}

var _ store.MeetingStore = (*MeetingStore)(nil)

func (m *MeetingStore) Create(ctx context.Context, id, requesterID, receiverID string) (*models.MeetingRequest, error) {
	req := models.NewMeetingRequest(id, requesterID, receiverID, time.Now().UTC())
	if _, err := m.c.InsertOne(ctx, req); err != nil {
		if mongo.IsDuplicateKeyError(err) && strings.Contains(err.Error(), pendingPairIndex) {
			return nil, fmt.Errorf("%s -> %s: %w", requesterID, receiverID, store.ErrDuplicatePending)
		}
		return nil, classify(err)
	}
	return &req, nil
}

func (m *MeetingStore) Get(ctx context.Context, id string) (*models.MeetingRequest, error) {
	var req models.MeetingRequest
	err := m.c.FindOne(ctx, bson.M{"id": id}).Decode(&req)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("request %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, classify(err)
	}
	return &req, nil
}

// Transition is a compare-and-set on status.
func (m *MeetingStore) Transition(ctx context.Context, id string, from, to models.Status, a *models.Assignment) (*models.MeetingRequest, error) {
	set := bson.M{"status": to, "updatedAt": time.Now().UTC()}
	if a != nil {
		set["timeSlot"] = a.TimeSlot
		set["tableAssigned"] = a.Table
		set["slotId"] = a.SlotID
		if a.TableName != "" {
			set["tableName"] = a.TableName
		}
	}

	var req models.MeetingRequest
	err := m.c.FindOneAndUpdate(ctx,
		bson.M{"id": id, "status": from},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&req)
	if errors.Is(err, mongo.ErrNoDocuments) {
		cur, gerr := m.Get(ctx, id)
		if gerr != nil {
			return nil, gerr
		}
		return nil, fmt.Errorf("request %s is %s: %w", id, cur.Status, store.ErrAlreadyProcessed)
	}
	if err != nil {
		return nil, classify(err)
	}
	return &req, nil
}

func (m *MeetingStore) find(ctx context.Context, filter bson.M) ([]models.MeetingRequest, error) {
	cur, err := m.c.Find(ctx, filter, options.Find().SetSort(meetingOrder))
	if err != nil {
		return nil, classify(err)
	}
	var out []models.MeetingRequest
	if err := cur.All(ctx, &out); err != nil {
		return nil, classify(err)
	}
	return out, nil
}

func (m *MeetingStore) AcceptedFor(ctx context.Context, participantID string) ([]models.MeetingRequest, error) {
	return m.find(ctx, bson.M{"participants": participantID, "status": models.StatusAccepted})
}

func (m *MeetingStore) ListFor(ctx context.Context, participantID string, f store.MeetingFilter) ([]models.MeetingRequest, error) {
	filter := bson.M{}
	switch f.Role {
	case store.RoleIncoming:
		filter["receiverId"] = participantID
	case store.RoleOutgoing:
		filter["requesterId"] = participantID
	default:
		filter["participants"] = participantID
	}
	if f.Status != "" {
		filter["status"] = f.Status
	}
	return m.find(ctx, filter)
}

func (m *MeetingStore) InsertAccepted(ctx context.Context, req models.MeetingRequest) error {
	if req.Status != models.StatusAccepted {
		return fmt.Errorf("insert request %s: status %s is not accepted", req.ID, req.Status)
	}
	_, err := m.c.InsertOne(ctx, req)
	return classify(err)
}

func (m *MeetingStore) DeleteAccepted(ctx context.Context) (int, error) {
	res, err := m.c.DeleteMany(ctx, bson.M{"status": models.StatusAccepted})
	if err != nil {
		return 0, classify(err)
	}
	return int(res.DeletedCount), nil
}
