// Package allocation finalizes meeting requests: accepting one picks the
// earliest free slot that fits both participants, rejecting one just closes
// it. Engines hold no locks; every race is settled by a conditional write in
// the stores.
package allocation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/gommon/log"
	"golang.org/x/sync/errgroup"

	"rueda/models"
	"rueda/notify"
	"rueda/store"
)

const DefaultMaxAttempts = 5

type Engine struct {
	slots     store.SlotStore
	meetings  store.MeetingStore
	calendars store.CalendarStore
	users     store.UserDirectory
	sink      notify.Sink

	cfg         models.AgendaConfig
	maxAttempts int
	retry       store.RetryPolicy
	now         func() time.Time
	newID       func() string
}

type Option func(*Engine)

// WithDirectory sets where participant labels for notices come from.
func WithDirectory(d store.UserDirectory) Option {
	return func(e *Engine) { e.users = d }
}

func WithSink(s notify.Sink) Option {
	return func(e *Engine) { e.sink = s }
}

// WithMaxAttempts bounds how many times Accept rescans after losing a slot
// to a concurrent writer.
func WithMaxAttempts(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxAttempts = n
		}
	}
}

func WithRetryPolicy(p store.RetryPolicy) Option {
	return func(e *Engine) { e.retry = p }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithIDGenerator(f func() string) Option {
	return func(e *Engine) { e.newID = f }
}

// New returns an engine bound to cfg. The config is normalized once here and
// never reread; build a new engine to pick up changes.
func New(stores store.Stores, cfg models.AgendaConfig, opts ...Option) *Engine {
	e := &Engine{
		slots:       stores.Slots,
		meetings:    stores.Meetings,
		calendars:   stores.Calendars,
		users:       stores.Users,
		sink:        notify.Discard,
		cfg:         cfg.Normalized(),
		maxAttempts: DefaultMaxAttempts,
		retry:       store.DefaultRetryPolicy(),
		now:         time.Now,
		newID:       uuid.NewString,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

func (e *Engine) Config() models.AgendaConfig { return e.cfg }

// ledger is one participant's accepted time ranges. Claims held by other
// in-flight accepts never go in busy: they may still roll back.
type ledger struct {
	id       string
	busy     map[models.TimeRange]bool
	accepted int
}

func (e *Engine) ledgers(ctx context.Context, ids ...string) ([]*ledger, error) {
	out := make([]*ledger, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	for i, id := range ids {
		g.Go(func() error {
			acc, err := store.Get(gctx, e.retry, func() ([]models.MeetingRequest, error) {
				return e.meetings.AcceptedFor(gctx, id)
			})
			if err != nil {
				return fmt.Errorf("accepted meetings of %s: %w", id, err)
			}
			l := &ledger{id: id, busy: make(map[models.TimeRange]bool, len(acc)), accepted: len(acc)}
			for _, m := range acc {
				if m.TimeSlot != nil {
					l.busy[*m.TimeSlot] = true
				}
			}
			out[i] = l
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Engine) checkCapacity(ls []*ledger) error {
	limit := e.cfg.MaxAcceptedPerParticipant
	for _, l := range ls {
		if l.accepted >= limit {
			return &CapacityError{ParticipantID: l.id, Limit: limit, Accepted: l.accepted}
		}
	}
	return nil
}

type scan struct {
	slot       *models.Slot
	candidates int
	blocked    map[string]int
}

// blocker names the participant whose own meetings cover every candidate.
func (s scan) blocker(ls []*ledger) string {
	if s.candidates == 0 {
		return ""
	}
	for _, l := range ls {
		if s.blocked[l.id] == s.candidates {
			return l.id
		}
	}
	return ""
}

// firstFit walks the available slots in agenda order and stops at the first
// one whose time range is free for every participant.
func (e *Engine) firstFit(ctx context.Context, ls []*ledger) (scan, error) {
	return store.Get(ctx, e.retry, func() (scan, error) {
		sc := scan{blocked: make(map[string]int, len(ls))}
		for s, err := range e.slots.ListAvailable(ctx) {
			if err != nil {
				return scan{}, err
			}
			sc.candidates++
			tr := s.Range()
			free := true
			for _, l := range ls {
				if l.busy[tr] {
					sc.blocked[l.id]++
					free = false
				}
			}
			if free {
				sc.slot = &s
				return sc, nil
			}
		}
		return sc, nil
	})
}

// hold claims the slot's time range on every calendar, then reserves the
// slot. On failure nothing stays held.
func (e *Engine) hold(ctx context.Context, requestID string, ls []*ledger, slot models.Slot) error {
	tr := slot.Range()
	limit := e.cfg.MaxAcceptedPerParticipant
	var held []string
	for _, l := range ls {
		err := e.retry.Do(ctx, func() error {
			return e.calendars.Claim(ctx, l.id, requestID, tr, limit)
		})
		switch {
		case err == nil:
			held = append(held, l.id)
			continue
		case errors.Is(err, store.ErrCalendarConflict):
			err = &contendedError{participantID: l.id, timeSlot: tr}
		case errors.Is(err, store.ErrCalendarFull):
			err = &CapacityError{ParticipantID: l.id, Limit: limit, Accepted: limit}
		default:
			err = fmt.Errorf("claim %s for %s: %w", tr, l.id, err)
		}
		e.unclaim(ctx, requestID, held...)
		return err
	}

	_, err := store.Get(ctx, e.retry, func() (*models.Slot, error) {
		return e.slots.Reserve(ctx, slot.ID, requestID)
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, store.ErrSlotConflict) {
		// a retried reserve may have landed before its reply was lost
		if cur, gerr := e.slots.GetSlot(ctx, slot.ID); gerr == nil && cur.AssignedRequestID == requestID {
			return nil
		}
		err = errLostRace
	} else if errors.Is(err, store.ErrNotFound) {
		err = errLostRace
	} else {
		err = fmt.Errorf("reserve slot %s: %w", slot.ID, err)
	}
	e.unclaim(ctx, requestID, held...)
	return err
}

func (e *Engine) unclaim(ctx context.Context, requestID string, participantIDs ...string) {
	ctx = context.WithoutCancel(ctx)
	for _, pid := range participantIDs {
		if err := e.retry.Do(ctx, func() error { return e.calendars.Unclaim(ctx, pid, requestID) }); err != nil {
			log.Errorf("[Allocation] unclaim %s for %s: %v", requestID, pid, err)
		}
	}
}

// compensate undoes hold.
func (e *Engine) compensate(ctx context.Context, requestID, slotID string, ls []*ledger) {
	ctx = context.WithoutCancel(ctx)
	if err := e.retry.Do(ctx, func() error {
		_, err := e.slots.Release(ctx, slotID)
		return err
	}); err != nil {
		log.Errorf("[Allocation] release slot %s after failed %s: %v", slotID, requestID, err)
	}
	ids := make([]string, len(ls))
	for i, l := range ls {
		ids[i] = l.id
	}
	e.unclaim(ctx, requestID, ids...)
	log.Warnf("[Allocation] rolled back slot %s for %s", slotID, requestID)
}

// transition moves a pending request to status to. When a retry after a
// transient failure reports the request as processed, the earlier try is
// checked for having landed.
func (e *Engine) transition(ctx context.Context, id string, to models.Status, a *models.Assignment) (*models.MeetingRequest, error) {
	tries := 0
	out, err := store.Get(ctx, e.retry, func() (*models.MeetingRequest, error) {
		tries++
		return e.meetings.Transition(ctx, id, models.StatusPending, to, a)
	})
	if errors.Is(err, store.ErrAlreadyProcessed) && tries > 1 {
		if cur, gerr := e.meetings.Get(ctx, id); gerr == nil && cur.Status == to && (a == nil || cur.SlotID == a.SlotID) {
			return cur, nil
		}
	}
	return out, err
}

func (e *Engine) load(ctx context.Context, requestID string) (*models.MeetingRequest, error) {
	return store.Get(ctx, e.retry, func() (*models.MeetingRequest, error) {
		return e.meetings.Get(ctx, requestID)
	})
}

// Accept finalizes a pending request into the earliest slot whose time range
// is free for both participants.
func (e *Engine) Accept(ctx context.Context, requestID string) (*models.MeetingRequest, error) {
	req, err := e.load(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status != models.StatusPending {
		return nil, fmt.Errorf("request %s is %s: %w", req.ID, req.Status, store.ErrAlreadyProcessed)
	}

	ls, err := e.ledgers(ctx, req.RequesterID, req.ReceiverID)
	if err != nil {
		return nil, err
	}
	if err := e.checkCapacity(ls); err != nil {
		return nil, err
	}

	var last scan
	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		sc, err := e.firstFit(ctx, ls)
		if err != nil {
			return nil, fmt.Errorf("list available slots: %w", err)
		}
		last = sc
		if sc.slot == nil {
			return nil, &NoSlotError{
				RequestID:     req.ID,
				ParticipantID: sc.blocker(ls),
				Candidates:    sc.candidates,
				Attempts:      attempt,
			}
		}

		slot := *sc.slot
		err = e.hold(ctx, req.ID, ls, slot)
		if errors.Is(err, errClaimContended) {
			log.Debugf("[Allocation] %s: calendar claim contended, %v (attempt %d/%d)", req.ID, err, attempt, e.maxAttempts)
			if ls, err = e.ledgers(ctx, req.RequesterID, req.ReceiverID); err != nil {
				return nil, err
			}
			if err := e.checkCapacity(ls); err != nil {
				return nil, err
			}
			continue
		}
		if errors.Is(err, errLostRace) {
			log.Debugf("[Allocation] %s lost slot %s (attempt %d/%d)", req.ID, slot.ID, attempt, e.maxAttempts)
			continue
		}
		if err != nil {
			return nil, err
		}

		accepted, err := e.commit(ctx, req.ID, ls, slot)
		if err != nil {
			return nil, err
		}
		log.Infof("[Allocation] accepted %s: %s & %s at table %s %s",
			accepted.ID, accepted.RequesterID, accepted.ReceiverID, tableLabel(slot), slot.Range())
		e.announce(ctx, *accepted, "Meeting confirmed", "Meeting scheduled")
		return accepted, nil
	}
	return nil, &NoSlotError{RequestID: req.ID, ParticipantID: last.blocker(ls), Candidates: last.candidates, Attempts: e.maxAttempts}
}

func (e *Engine) commit(ctx context.Context, requestID string, ls []*ledger, slot models.Slot) (*models.MeetingRequest, error) {
	a := models.AssignmentFor(slot)
	accepted, err := e.transition(ctx, requestID, models.StatusAccepted, &a)
	if err == nil {
		return accepted, nil
	}
	if errors.Is(err, store.ErrAlreadyProcessed) || errors.Is(err, store.ErrNotFound) {
		e.compensate(ctx, requestID, slot.ID, ls)
		if errors.Is(err, store.ErrNotFound) {
			// a reset removed the request mid-flight
			err = fmt.Errorf("request %s removed while accepting: %w", requestID, store.ErrAlreadyProcessed)
		}
		return nil, err
	}

	// outcome unknown: only roll back once the request is known not to hold the slot
	cur, gerr := e.meetings.Get(context.WithoutCancel(ctx), requestID)
	if gerr != nil {
		log.Errorf("[Allocation] %s: state unknown after %v; slot %s left reserved", requestID, err, slot.ID)
		return nil, fmt.Errorf("accept %s: %w", requestID, err)
	}
	if cur.Status == models.StatusAccepted && cur.SlotID == slot.ID {
		return cur, nil
	}
	e.compensate(ctx, requestID, slot.ID, ls)
	return nil, fmt.Errorf("accept %s: %w", requestID, err)
}

// Reject closes a pending request without touching any slot.
func (e *Engine) Reject(ctx context.Context, requestID string) (*models.MeetingRequest, error) {
	rejected, err := e.transition(ctx, requestID, models.StatusRejected, nil)
	if err != nil {
		return nil, err
	}
	log.Infof("[Allocation] rejected %s", rejected.ID)
	e.notify(ctx, rejected.RequesterID, models.Notice{
		Title:     "Meeting request declined",
		Message:   fmt.Sprintf("%s declined your meeting request.", e.label(ctx, rejected.ReceiverID)),
		Severity:  models.SeverityError,
		MeetingID: rejected.ID,
	})
	return rejected, nil
}

// Request opens a pending request from requester to receiver and tells the
// receiver about it.
func (e *Engine) Request(ctx context.Context, requesterID, receiverID string) (*models.MeetingRequest, error) {
	if requesterID == "" || receiverID == "" {
		return nil, ErrMissingParticipant
	}
	if requesterID == receiverID {
		return nil, ErrSameParticipant
	}

	id := e.newID()
	tries := 0
	req, err := store.Get(ctx, e.retry, func() (*models.MeetingRequest, error) {
		tries++
		return e.meetings.Create(ctx, id, requesterID, receiverID)
	})
	if errors.Is(err, store.ErrDuplicatePending) && tries > 1 {
		if cur, gerr := e.meetings.Get(ctx, id); gerr == nil {
			req, err = cur, nil
		}
	}
	if err != nil {
		return nil, err
	}

	log.Infof("[Allocation] request %s: %s -> %s", req.ID, requesterID, receiverID)
	e.notify(ctx, receiverID, models.Notice{
		Title:     "New meeting request",
		Message:   fmt.Sprintf("%s would like to meet you.", e.label(ctx, requesterID)),
		Severity:  models.SeverityInfo,
		MeetingID: req.ID,
	})
	return req, nil
}

// Assign books two participants into a chosen slot on an operator's behalf.
// The slot must be free and both participants must be under the cap with
// nothing else at that time.
func (e *Engine) Assign(ctx context.Context, participantA, participantB, slotID, assignedBy string) (*models.MeetingRequest, error) {
	if participantA == "" || participantB == "" {
		return nil, ErrMissingParticipant
	}
	if participantA == participantB {
		return nil, ErrSameParticipant
	}

	slot, err := store.Get(ctx, e.retry, func() (*models.Slot, error) {
		return e.slots.GetSlot(ctx, slotID)
	})
	if err != nil {
		return nil, err
	}
	if !slot.Available {
		return nil, fmt.Errorf("slot %s is taken: %w", slotID, store.ErrSlotConflict)
	}

	ls, err := e.ledgers(ctx, participantA, participantB)
	if err != nil {
		return nil, err
	}
	if err := e.checkCapacity(ls); err != nil {
		return nil, err
	}
	tr := slot.Range()
	if err := conflict(ls, tr); err != nil {
		return nil, err
	}

	id := e.newID()
	if err := e.hold(ctx, id, ls, *slot); err != nil {
		var ce *contendedError
		if errors.As(err, &ce) {
			return nil, &ConflictError{ParticipantID: ce.participantID, TimeSlot: tr}
		}
		if errors.Is(err, errLostRace) {
			if cerr := conflict(ls, tr); cerr != nil {
				return nil, cerr
			}
			return nil, fmt.Errorf("slot %s is taken: %w", slotID, store.ErrSlotConflict)
		}
		return nil, err
	}

	now := e.now()
	m := models.NewMeetingRequest(id, participantA, participantB, now)
	m.Status = models.StatusAccepted
	m.AssignedBy = assignedBy
	m.Apply(models.AssignmentFor(*slot))

	if err := e.retry.Do(ctx, func() error { return e.meetings.InsertAccepted(ctx, m) }); err != nil {
		if _, gerr := e.meetings.Get(ctx, id); gerr != nil {
			e.compensate(ctx, id, slot.ID, ls)
			return nil, fmt.Errorf("store assignment: %w", err)
		}
	}

	log.Infof("[Allocation] %s assigned %s & %s to table %s %s", assignedBy, participantA, participantB, tableLabel(*slot), tr)
	e.announce(ctx, m, "Meeting scheduled", "Meeting scheduled")
	return &m, nil
}

func conflict(ls []*ledger, tr models.TimeRange) error {
	for _, l := range ls {
		if l.busy[tr] {
			return &ConflictError{ParticipantID: l.id, TimeSlot: tr}
		}
	}
	return nil
}

// announce tells both participants where and when they meet.
func (e *Engine) announce(ctx context.Context, m models.MeetingRequest, requesterTitle, receiverTitle string) {
	where := "table " + tableName(m)
	if m.TimeSlot != nil {
		where += ", " + m.TimeSlot.String()
	}
	e.notify(ctx, m.RequesterID, models.Notice{
		Title:     requesterTitle,
		Message:   fmt.Sprintf("Your meeting with %s is set: %s.", e.label(ctx, m.ReceiverID), where),
		Severity:  models.SeveritySuccess,
		MeetingID: m.ID,
	})
	e.notify(ctx, m.ReceiverID, models.Notice{
		Title:     receiverTitle,
		Message:   fmt.Sprintf("Your meeting with %s is set: %s.", e.label(ctx, m.RequesterID), where),
		Severity:  models.SeveritySuccess,
		MeetingID: m.ID,
	})
}

// notify never fails the caller; the decision is already committed.
func (e *Engine) notify(ctx context.Context, participantID string, n models.Notice) {
	if err := e.sink.Notify(context.WithoutCancel(ctx), participantID, n); err != nil {
		log.Warnf("[Allocation] notify %s (%s): %v", participantID, n.Title, err)
	}
}

func (e *Engine) label(ctx context.Context, participantID string) string {
	if e.users == nil {
		return participantID
	}
	p, err := e.users.GetParticipant(ctx, participantID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Debugf("[Allocation] lookup %s: %v", participantID, err)
		}
		return participantID
	}
	return p.Label()
}

func tableLabel(s models.Slot) string {
	if s.TableName != "" {
		return s.TableName
	}
	return fmt.Sprint(s.TableNumber)
}

func tableName(m models.MeetingRequest) string {
	if m.TableName != "" {
		return m.TableName
	}
	if m.TableAssigned != nil {
		return fmt.Sprint(*m.TableAssigned)
	}
	return "?"
}
