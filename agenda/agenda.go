// Package agenda builds and resets the universe of bookable slots.
package agenda

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/gommon/log"

	"rueda/models"
	"rueda/store"
)

// ErrMaintenanceRequired is returned by Generate and Reset while allocation
// traffic has not been quiesced.
var ErrMaintenanceRequired = errors.New("agenda: maintenance mode must be enabled")

// ErrMaintenanceActive is returned by Open while maintenance mode is on.
var ErrMaintenanceActive = errors.New("agenda: maintenance mode is on; try again later")

// Switch is the maintenance-mode flag. While it is on the HTTP layer refuses
// new allocation calls. Decisions already running are not interrupted, so
// operators must wait for in-flight accepts and assigns to drain after
// turning it on and before calling Generate or Reset.
type Switch interface {
	Enabled(ctx context.Context) (bool, error)
	SetEnabled(ctx context.Context, on bool) error
}

// Open fails with ErrMaintenanceActive while sw is on. A nil Switch is
// always open.
func Open(ctx context.Context, sw Switch) error {
	if sw == nil {
		return nil
	}
	on, err := sw.Enabled(ctx)
	if err != nil {
		return fmt.Errorf("read maintenance flag: %w", err)
	}
	if on {
		return ErrMaintenanceActive
	}
	return nil
}

// Flag is a process-local Switch.
type Flag struct {
	on atomic.Bool
}

var _ Switch = (*Flag)(nil)

func (f *Flag) Enabled(context.Context) (bool, error) { return f.on.Load(), nil }

func (f *Flag) SetEnabled(_ context.Context, on bool) error {
	f.on.Store(on)
	return nil
}

// Plan lays out the slots for cfg ordered by (startTime, tableNumber).
// newID may be nil, in which case ids are random UUIDs.
func Plan(cfg models.AgendaConfig, newID func() string) []models.Slot {
	if newID == nil {
		newID = uuid.NewString
	}
	cfg = cfg.Normalized()
	rounds := cfg.Rounds()
	now := time.Now()

	slots := make([]models.Slot, 0, rounds*cfg.NumTables)
	for i := range rounds {
		tr := models.NewTimeRange(cfg.StartTime.Add(i*cfg.Step()), cfg.MeetingDuration)
		for table := 1; table <= cfg.NumTables; table++ {
			slots = append(slots, models.Slot{
				ID:          newID(),
				TableNumber: table,
				TableName:   cfg.TableName(table),
				StartTime:   tr.Start,
				EndTime:     tr.End,
				Available:   true,
				UpdatedAt:   now,
			})
		}
	}
	return slots
}

type GenerateResult struct {
	SlotsCreated int         `json:"slotsCreated"`
	Reset        ResetResult `json:"reset"`
}

type ResetResult struct {
	SlotsReset       int `json:"slotsReset"`
	MeetingsCleared  int `json:"meetingsCleared"`
	CalendarsCleared int `json:"calendarsCleared"`
}

// Generator owns slot creation and the maintenance reset.
type Generator struct {
	slots     store.SlotStore
	meetings  store.MeetingStore
	calendars store.CalendarStore
	sw        Switch
	retry     store.RetryPolicy
	newID     func() string
}

type Option func(*Generator)

// WithSwitch makes Generate and Reset require maintenance mode.
func WithSwitch(sw Switch) Option {
	return func(g *Generator) { g.sw = sw }
}

func WithRetryPolicy(p store.RetryPolicy) Option {
	return func(g *Generator) { g.retry = p }
}

func WithIDGenerator(f func() string) Option {
	return func(g *Generator) { g.newID = f }
}

func NewGenerator(stores store.Stores, opts ...Option) *Generator {
	g := &Generator{
		slots:     stores.Slots,
		meetings:  stores.Meetings,
		calendars: stores.Calendars,
		retry:     store.DefaultRetryPolicy(),
		newID:     uuid.NewString,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

func (g *Generator) guard(ctx context.Context) error {
	if g.sw == nil {
		return nil
	}
	on, err := g.sw.Enabled(ctx)
	if err != nil {
		return fmt.Errorf("read maintenance flag: %w", err)
	}
	if !on {
		return ErrMaintenanceRequired
	}
	return nil
}

// Generate replaces the agenda with the slots planned from cfg. Existing
// slots, accepted meetings and participant calendars are dropped first, so
// running it twice with the same cfg yields the same slot set.
func (g *Generator) Generate(ctx context.Context, cfg models.AgendaConfig) (GenerateResult, error) {
	cfg = cfg.Normalized()
	if err := cfg.Validate(); err != nil {
		return GenerateResult{}, fmt.Errorf("invalid agenda config: %w", err)
	}
	if err := g.guard(ctx); err != nil {
		return GenerateResult{}, err
	}

	reset, err := g.reset(ctx)
	if err != nil {
		return GenerateResult{}, err
	}
	if err := g.retry.Do(ctx, func() error {
		_, err := g.slots.DeleteSlots(ctx)
		return err
	}); err != nil {
		return GenerateResult{}, fmt.Errorf("delete slots: %w", err)
	}

	slots := Plan(cfg, g.newID)
	if err := g.retry.Do(ctx, func() error { return g.slots.InsertSlots(ctx, slots) }); err != nil {
		return GenerateResult{}, fmt.Errorf("insert slots: %w", err)
	}

	log.Infof("[Agenda] generated %d slots (%d tables from %s to %s)",
		len(slots), cfg.NumTables, cfg.StartTime, cfg.EndTime)
	return GenerateResult{SlotsCreated: len(slots), Reset: reset}, nil
}

// Reset clears every accepted meeting and frees every slot.
func (g *Generator) Reset(ctx context.Context) (ResetResult, error) {
	if err := g.guard(ctx); err != nil {
		return ResetResult{}, err
	}
	res, err := g.reset(ctx)
	if err != nil {
		return res, err
	}
	log.Infof("[Agenda] reset: %d meetings cleared, %d slots freed", res.MeetingsCleared, res.SlotsReset)
	return res, nil
}

func (g *Generator) reset(ctx context.Context) (ResetResult, error) {
	var res ResetResult
	var err error

	if res.MeetingsCleared, err = store.Get(ctx, g.retry, func() (int, error) {
		return g.meetings.DeleteAccepted(ctx)
	}); err != nil {
		return res, fmt.Errorf("clear accepted meetings: %w", err)
	}
	if res.SlotsReset, err = store.Get(ctx, g.retry, func() (int, error) {
		return g.slots.ReleaseAll(ctx)
	}); err != nil {
		return res, fmt.Errorf("release slots: %w", err)
	}
	if res.CalendarsCleared, err = store.Get(ctx, g.retry, func() (int, error) {
		return g.calendars.ClearCalendars(ctx)
	}); err != nil {
		return res, fmt.Errorf("clear calendars: %w", err)
	}
	return res, nil
}
