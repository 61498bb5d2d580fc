// Package rdx holds the Redis client setup and the state this service keeps
// in Redis.
package rdx

import (
	"context"
	"errors"
	"fmt"

	"github.com/labstack/gommon/log"
	"github.com/redis/go-redis/v9"

	"rueda/agenda"
)

const maintenanceKey = "rueda:maintenance"

// NewClient connects and pings the server.
func NewClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	log.Infof("[Redis] connected to %s", addr)
	return client, nil
}

// Switch is the maintenance flag shared by every instance.
type Switch struct {
	rdb *redis.Client
	key string
}

var _ agenda.Switch = (*Switch)(nil)

func NewSwitch(rdb *redis.Client) *Switch {
	return &Switch{rdb: rdb, key: maintenanceKey}
}

func (s *Switch) Enabled(ctx context.Context) (bool, error) {
	v, err := s.rdb.Get(ctx, s.key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return v == "1", nil
}

func (s *Switch) SetEnabled(ctx context.Context, on bool) error {
	if !on {
		return s.rdb.Del(ctx, s.key).Err()
	}
	return s.rdb.Set(ctx, s.key, "1", 0).Err()
}
