package store

import (
	"cmp"
	"context"
	"fmt"
	"iter"
	"slices"
	"sync"
	"time"

	"rueda/feed"
	"rueda/models"
)

type claim struct {
	RequestID string
	Range     models.TimeRange
}

// Memory implements every store contract in process memory. Each method
// holds the mutex for its whole read-check-write, which gives the same
// per-document atomicity the Mongo implementation gets from conditional
// updates. Changes are published to the feed after the lock is released.
type Memory struct {
	mu            sync.RWMutex
	slots         map[string]models.Slot
	meetings      map[string]models.MeetingRequest
	calendars     map[string][]claim
	config        *models.AgendaConfig
	users         map[string]models.Participant
	notifications []models.Notification

	pub feed.Publisher
}

var (
	_ SlotStore         = (*Memory)(nil)
	_ MeetingStore      = (*Memory)(nil)
	_ CalendarStore     = (*Memory)(nil)
	_ ConfigStore       = (*Memory)(nil)
	_ UserDirectory     = (*Memory)(nil)
	_ NotificationStore = (*Memory)(nil)
)

// NewMemory returns an empty store publishing changes to pub (nil drops them).
func NewMemory(pub feed.Publisher) *Memory {
	if pub == nil {
		pub = feed.Discard
	}
	return &Memory{
		slots:     make(map[string]models.Slot),
		meetings:  make(map[string]models.MeetingRequest),
		calendars: make(map[string][]claim),
		users:     make(map[string]models.Participant),
		pub:       pub,
	}
}

// Stores exposes m through every contract.
func (m *Memory) Stores() Stores {
	return Stores{
		Slots:         m,
		Meetings:      m,
		Calendars:     m,
		Config:        m,
		Users:         m,
		Notifications: m,
	}
}

func (m *Memory) publish(ctx context.Context, evs ...feed.Event) {
	for _, ev := range evs {
		_ = m.pub.Publish(context.WithoutCancel(ctx), ev)
	}
}

func slotEvent(s models.Slot) feed.Event {
	return feed.Event{Topic: feed.TopicAgenda, Kind: feed.KindSlotUpdated, ID: s.ID, Slot: &s, At: s.UpdatedAt}
}

func agendaEvent(kind string, n int) feed.Event {
	return feed.Event{Topic: feed.TopicAgenda, Kind: kind, Count: n, At: time.Now()}
}

// --- slots ---

func (m *Memory) InsertSlots(ctx context.Context, slots []models.Slot) error {
	m.mu.Lock()
	for _, s := range slots {
		if _, dup := m.slots[s.ID]; dup {
			m.mu.Unlock()
			return fmt.Errorf("insert slot %s: duplicate id", s.ID)
		}
	}
	for _, s := range slots {
		m.slots[s.ID] = s
	}
	m.mu.Unlock()

	m.publish(ctx, agendaEvent(feed.KindAgendaChanged, len(slots)))
	return nil
}

func (m *Memory) sortedSlots(keep func(models.Slot) bool) []models.Slot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Slot, 0, len(m.slots))
	for _, s := range m.slots {
		if keep(s) {
			out = append(out, s)
		}
	}
	slices.SortFunc(out, models.CompareSlots)
	return out
}

func (m *Memory) ListSlots(ctx context.Context) ([]models.Slot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.sortedSlots(func(models.Slot) bool { return true }), nil
}

func (m *Memory) ListAvailable(ctx context.Context) iter.Seq2[models.Slot, error] {
	return func(yield func(models.Slot, error) bool) {
		if err := ctx.Err(); err != nil {
			yield(models.Slot{}, err)
			return
		}
		for _, s := range m.sortedSlots(func(s models.Slot) bool { return s.Available }) {
			if !yield(s, nil) {
				return
			}
		}
	}
}

func (m *Memory) GetSlot(ctx context.Context, slotID string) (*models.Slot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.slots[slotID]
	if !ok {
		return nil, fmt.Errorf("slot %s: %w", slotID, ErrNotFound)
	}
	return &s, nil
}

func (m *Memory) Reserve(ctx context.Context, slotID, requestID string) (*models.Slot, error) {
	m.mu.Lock()
	s, ok := m.slots[slotID]
	if !ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("slot %s: %w", slotID, ErrNotFound)
	}
	if !s.Available {
		m.mu.Unlock()
		return nil, fmt.Errorf("slot %s: %w", slotID, ErrSlotConflict)
	}
	s.Available = false
	s.AssignedRequestID = requestID
	s.UpdatedAt = time.Now()
	m.slots[slotID] = s
	m.mu.Unlock()

	m.publish(ctx, slotEvent(s))
	return &s, nil
}

func (m *Memory) Release(ctx context.Context, slotID string) (*models.Slot, error) {
	m.mu.Lock()
	s, ok := m.slots[slotID]
	if !ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("slot %s: %w", slotID, ErrNotFound)
	}
	s.Available = true
	s.AssignedRequestID = ""
	s.UpdatedAt = time.Now()
	m.slots[slotID] = s
	m.mu.Unlock()

	m.publish(ctx, slotEvent(s))
	return &s, nil
}

func (m *Memory) ReleaseAll(ctx context.Context) (int, error) {
	m.mu.Lock()
	n := 0
	now := time.Now()
	for id, s := range m.slots {
		if s.Available && s.AssignedRequestID == "" {
			continue
		}
		s.Available = true
		s.AssignedRequestID = ""
		s.UpdatedAt = now
		m.slots[id] = s
		n++
	}
	m.mu.Unlock()

	m.publish(ctx, agendaEvent(feed.KindAgendaChanged, n))
	return n, nil
}

func (m *Memory) DeleteSlots(ctx context.Context) (int, error) {
	m.mu.Lock()
	n := len(m.slots)
	m.slots = make(map[string]models.Slot)
	m.mu.Unlock()

	m.publish(ctx, agendaEvent(feed.KindAgendaChanged, n))
	return n, nil
}

// --- meetings ---

func (m *Memory) Create(ctx context.Context, id, requesterID, receiverID string) (*models.MeetingRequest, error) {
	m.mu.Lock()
	if _, dup := m.meetings[id]; dup {
		m.mu.Unlock()
		return nil, fmt.Errorf("create request %s: duplicate id", id)
	}
	for _, r := range m.meetings {
		if r.Status == models.StatusPending && r.RequesterID == requesterID && r.ReceiverID == receiverID {
			m.mu.Unlock()
			return nil, fmt.Errorf("%s -> %s: %w", requesterID, receiverID, ErrDuplicatePending)
		}
	}
	req := models.NewMeetingRequest(id, requesterID, receiverID, time.Now())
	m.meetings[id] = req
	m.mu.Unlock()

	m.publish(ctx, feed.MeetingEvents(feed.KindMeetingCreated, req, req.CreatedAt)...)
	out := req.Clone()
	return &out, nil
}

func (m *Memory) Get(ctx context.Context, id string) (*models.MeetingRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.meetings[id]
	if !ok {
		return nil, fmt.Errorf("request %s: %w", id, ErrNotFound)
	}
	out := r.Clone()
	return &out, nil
}

func (m *Memory) Transition(ctx context.Context, id string, from, to models.Status, assign *models.Assignment) (*models.MeetingRequest, error) {
	m.mu.Lock()
	r, ok := m.meetings[id]
	if !ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("request %s: %w", id, ErrNotFound)
	}
	if r.Status != from {
		m.mu.Unlock()
		return nil, fmt.Errorf("request %s is %s: %w", id, r.Status, ErrAlreadyProcessed)
	}
	r = r.Clone()
	r.Status = to
	r.UpdatedAt = time.Now()
	if assign != nil {
		r.Apply(*assign)
	}
	m.meetings[id] = r
	m.mu.Unlock()

	m.publish(ctx, feed.MeetingEvents(feed.KindMeetingUpdated, r, r.UpdatedAt)...)
	out := r.Clone()
	return &out, nil
}

func (m *Memory) listMeetings(keep func(models.MeetingRequest) bool) []models.MeetingRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.MeetingRequest
	for _, r := range m.meetings {
		if keep(r) {
			out = append(out, r.Clone())
		}
	}
	slices.SortFunc(out, func(a, b models.MeetingRequest) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.ID, b.ID))
	})
	return out
}

func (m *Memory) AcceptedFor(ctx context.Context, participantID string) ([]models.MeetingRequest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.listMeetings(func(r models.MeetingRequest) bool {
		return r.Status == models.StatusAccepted && r.Involves(participantID)
	}), nil
}

func (m *Memory) ListFor(ctx context.Context, participantID string, f MeetingFilter) ([]models.MeetingRequest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.listMeetings(func(r models.MeetingRequest) bool {
		if f.Status != "" && r.Status != f.Status {
			return false
		}
		switch f.Role {
		case RoleIncoming:
			return r.ReceiverID == participantID
		case RoleOutgoing:
			return r.RequesterID == participantID
		}
		return r.Involves(participantID)
	}), nil
}

func (m *Memory) InsertAccepted(ctx context.Context, r models.MeetingRequest) error {
	if r.Status != models.StatusAccepted {
		return fmt.Errorf("insert request %s: status %s is not accepted", r.ID, r.Status)
	}
	m.mu.Lock()
	if _, dup := m.meetings[r.ID]; dup {
		m.mu.Unlock()
		return fmt.Errorf("insert request %s: duplicate id", r.ID)
	}
	r = r.Clone()
	m.meetings[r.ID] = r
	m.mu.Unlock()

	m.publish(ctx, feed.MeetingEvents(feed.KindMeetingCreated, r, r.UpdatedAt)...)
	return nil
}

func (m *Memory) DeleteAccepted(ctx context.Context) (int, error) {
	m.mu.Lock()
	n := 0
	for id, r := range m.meetings {
		if r.Status == models.StatusAccepted {
			delete(m.meetings, id)
			n++
		}
	}
	m.mu.Unlock()

	m.publish(ctx, agendaEvent(feed.KindMeetingsCleared, n))
	return n, nil
}

// --- calendars ---

func (m *Memory) Claim(ctx context.Context, participantID, requestID string, tr models.TimeRange, limit int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	claims := m.calendars[participantID]
	for _, c := range claims {
		if c.Range == tr {
			if c.RequestID == requestID {
				return nil
			}
			return fmt.Errorf("%s at %s: %w", participantID, tr, ErrCalendarConflict)
		}
	}
	if len(claims) >= limit {
		return fmt.Errorf("%s holds %d: %w", participantID, len(claims), ErrCalendarFull)
	}
	m.calendars[participantID] = append(claims, claim{RequestID: requestID, Range: tr})
	return nil
}

func (m *Memory) Unclaim(ctx context.Context, participantID, requestID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calendars[participantID] = slices.DeleteFunc(m.calendars[participantID], func(c claim) bool {
		return c.RequestID == requestID
	})
	if len(m.calendars[participantID]) == 0 {
		delete(m.calendars, participantID)
	}
	return nil
}

func (m *Memory) ClearCalendars(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.calendars)
	m.calendars = make(map[string][]claim)
	return n, nil
}

// Claims lists the ranges held for participantID in claim order.
func (m *Memory) Claims(participantID string) []models.TimeRange {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.TimeRange, 0, len(m.calendars[participantID]))
	for _, c := range m.calendars[participantID] {
		out = append(out, c.Range)
	}
	return out
}

// --- config ---

func (m *Memory) GetConfig(ctx context.Context) (*models.AgendaConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.config == nil {
		return nil, ErrConfigMissing
	}
	c := *m.config
	c.TableNames = slices.Clone(m.config.TableNames)
	return &c, nil
}

func (m *Memory) SetConfig(ctx context.Context, cfg models.AgendaConfig) error {
	cfg.TableNames = slices.Clone(cfg.TableNames)
	cfg.UpdatedAt = time.Now()
	m.mu.Lock()
	m.config = &cfg
	m.mu.Unlock()
	return nil
}

// --- users ---

// PutParticipant seeds the directory.
func (m *Memory) PutParticipant(p models.Participant) {
	m.mu.Lock()
	m.users[p.UserID] = p
	m.mu.Unlock()
}

func (m *Memory) GetParticipant(ctx context.Context, participantID string) (*models.Participant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.users[participantID]
	if !ok {
		return nil, fmt.Errorf("participant %s: %w", participantID, ErrNotFound)
	}
	return &p, nil
}

func (m *Memory) SearchParticipants(ctx context.Context, term string, limit int) ([]models.Participant, error) {
	m.mu.RLock()
	var out []models.Participant
	for _, p := range m.users {
		if p.Matches(term) {
			out = append(out, p)
		}
	}
	m.mu.RUnlock()

	slices.SortFunc(out, func(a, b models.Participant) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.UserID, b.UserID))
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// --- notifications ---

func (m *Memory) AddNotification(ctx context.Context, n models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications = append(m.notifications, n)
	return nil
}

func (m *Memory) ListNotifications(ctx context.Context, participantID string, unreadOnly bool) ([]models.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Notification
	for i := len(m.notifications) - 1; i >= 0; i-- {
		n := m.notifications[i]
		if n.UserID != participantID || (unreadOnly && n.Read) {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

func (m *Memory) MarkRead(ctx context.Context, participantID string, ids ...string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	changed := 0
	for i, n := range m.notifications {
		if n.UserID != participantID || n.Read {
			continue
		}
		if len(ids) > 0 && !slices.Contains(ids, n.ID) {
			continue
		}
		m.notifications[i].Read = true
		changed++
	}
	return changed, nil
}
