package allocation

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/labstack/gommon/log"

	"rueda/models"
	"rueda/store"
)

// Builder makes an engine for one loaded config.
type Builder func(cfg models.AgendaConfig) *Engine

// Sessions hands out the engine for the current agenda config. The config is
// read from the store on first use and again on Reload, never per call.
type Sessions struct {
	configs store.ConfigStore
	build   Builder
	retry   store.RetryPolicy

	mu  sync.Mutex
	cur atomic.Pointer[Engine]
}

func NewSessions(configs store.ConfigStore, build Builder) *Sessions {
	return &Sessions{configs: configs, build: build, retry: store.DefaultRetryPolicy()}
}

// Engine returns the current engine, loading the config if needed. It fails
// with store.ErrConfigMissing until an agenda has been configured.
func (s *Sessions) Engine(ctx context.Context) (*Engine, error) {
	if e := s.cur.Load(); e != nil {
		return e, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if e := s.cur.Load(); e != nil {
		return e, nil
	}
	return s.load(ctx)
}

// Reload rereads the config and swaps in a fresh engine. Calls already
// running keep the engine they started with.
func (s *Sessions) Reload(ctx context.Context) (*Engine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

func (s *Sessions) load(ctx context.Context) (*Engine, error) {
	cfg, err := store.Get(ctx, s.retry, func() (*models.AgendaConfig, error) {
		return s.configs.GetConfig(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("load agenda config: %w", err)
	}
	e := s.build(*cfg)
	s.cur.Store(e)
	log.Infof("[Allocation] session loaded: cap %d per participant", e.Config().MaxAcceptedPerParticipant)
	return e, nil
}
