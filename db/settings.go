package db

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"rueda/models"
	"rueda/store"
)

// agendaKey is the _id of the single agenda config document.
const agendaKey = "agenda"

type ConfigStore struct {
	c *mongo.Collection
}

var _ store.ConfigStore = (*ConfigStore)(nil)

func (s *ConfigStore) GetConfig(ctx context.Context) (*models.AgendaConfig, error) {
	var cfg models.AgendaConfig
	err := s.c.FindOne(ctx, bson.M{"_id": agendaKey}).Decode(&cfg)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, store.ErrConfigMissing
	}
	if err != nil {
		return nil, classify(err)
	}
	return &cfg, nil
}

func (s *ConfigStore) SetConfig(ctx context.Context, cfg models.AgendaConfig) error {
	cfg.UpdatedAt = time.Now().UTC()
	_, err := s.c.ReplaceOne(ctx, bson.M{"_id": agendaKey}, cfg, options.Replace().SetUpsert(true))
	return classify(err)
}
