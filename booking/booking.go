// Package booking serves the participant side of the meeting agenda:
// sending, accepting and rejecting requests, the personal schedule and the
// notification inbox.
package booking

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/labstack/gommon/log"

	"rueda/agenda"
	"rueda/allocation"
	"rueda/apierror"
	"rueda/feed"
	"rueda/models"
	"rueda/store"
	"rueda/tickets"
	"rueda/utils"
)

// Handler holds what the participant endpoints need.
type Handler struct {
	sessions *allocation.Sessions
	stores   store.Stores
	sw       agenda.Switch
	signer   *tickets.Signer
	broker   feed.Broker
	retry    store.RetryPolicy
	now      func() time.Time
}

func NewHandler(sessions *allocation.Sessions, stores store.Stores, sw agenda.Switch, signer *tickets.Signer, broker feed.Broker) *Handler {
	return &Handler{
		sessions: sessions,
		stores:   stores,
		sw:       sw,
		signer:   signer,
		broker:   broker,
		retry:    store.DefaultRetryPolicy(),
		now:      time.Now,
	}
}

type sendRequestBody struct {
	ReceiverID string `json:"receiverId" validate:"required,max=128"`
}

// SendRequest creates a pending request from the caller to receiverId.
//
// POST /api/meetings
func (h *Handler) SendRequest(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var body sendRequestBody
	if err := utils.DecodeAndValidate(r, &body); err != nil {
		apierror.Write(w, r, err)
		return
	}
	e, err := h.sessions.Engine(r.Context())
	if err != nil {
		apierror.Write(w, r, err)
		return
	}
	m, err := e.Request(r.Context(), utils.GetUserIDFromRequest(r), body.ReceiverID)
	if err != nil {
		apierror.Write(w, r, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusCreated, m)
}

// decide runs op on a request the caller received. Only the receiver may
// accept or reject, and neither is allowed during maintenance.
func (h *Handler) decide(w http.ResponseWriter, r *http.Request, id string,
	op func(*allocation.Engine, context.Context, string) (*models.MeetingRequest, error)) {
	ctx := r.Context()
	if err := agenda.Open(ctx, h.sw); err != nil {
		apierror.Write(w, r, err)
		return
	}

	req, err := store.Get(ctx, h.retry, func() (*models.MeetingRequest, error) {
		return h.stores.Meetings.Get(ctx, id)
	})
	if err != nil {
		apierror.Write(w, r, err)
		return
	}
	if me := utils.GetUserIDFromRequest(r); req.ReceiverID != me {
		log.Warnf("[Booking] %s tried to decide request %s addressed to %s", me, id, req.ReceiverID)
		apierror.Write(w, r, fmt.Errorf("request %s: %w", id, apierror.ErrForbidden))
		return
	}

	e, err := h.sessions.Engine(ctx)
	if err != nil {
		apierror.Write(w, r, err)
		return
	}
	m, err := op(e, ctx, id)
	if err != nil {
		apierror.Write(w, r, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, m)
}

// AcceptRequest allocates a slot for the request.
//
// POST /api/meetings/:id/accept
func (h *Handler) AcceptRequest(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	h.decide(w, r, ps.ByName("id"), (*allocation.Engine).Accept)
}

// RejectRequest declines the request.
//
// POST /api/meetings/:id/reject
func (h *Handler) RejectRequest(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	h.decide(w, r, ps.ByName("id"), (*allocation.Engine).Reject)
}

// ListRequests returns the caller's requests, optionally narrowed by
// ?role=incoming|outgoing and ?status=pending|accepted|rejected.
//
// GET /api/meetings
func (h *Handler) ListRequests(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	q := r.URL.Query()
	f := store.MeetingFilter{Role: store.Role(q.Get("role")), Status: models.Status(q.Get("status"))}
	switch f.Role {
	case store.RoleAny, store.RoleIncoming, store.RoleOutgoing:
	default:
		utils.RespondWithError(w, http.StatusBadRequest, "role must be incoming or outgoing")
		return
	}
	if f.Status != "" && !f.Status.Valid() {
		utils.RespondWithError(w, http.StatusBadRequest, "status must be pending, accepted or rejected")
		return
	}

	ctx := r.Context()
	me := utils.GetUserIDFromRequest(r)
	list, err := store.Get(ctx, h.retry, func() ([]models.MeetingRequest, error) {
		return h.stores.Meetings.ListFor(ctx, me, f)
	})
	if err != nil {
		apierror.Write(w, r, err)
		return
	}
	if list == nil {
		list = []models.MeetingRequest{}
	}
	utils.RespondWithJSON(w, http.StatusOK, list)
}

// AvailableSlots lists the free slots in allocation order.
//
// GET /api/slots/available
func (h *Handler) AvailableSlots(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx := r.Context()
	slots, err := store.Get(ctx, h.retry, func() ([]models.Slot, error) {
		return store.Collect(h.stores.Slots.ListAvailable(ctx))
	})
	if err != nil {
		apierror.Write(w, r, err)
		return
	}
	if slots == nil {
		slots = []models.Slot{}
	}
	utils.RespondWithJSON(w, http.StatusOK, slots)
}

// SearchParticipants backs the request picker. The caller is left out.
//
// GET /api/participants?q=&limit=
func (h *Handler) SearchParticipants(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx := r.Context()
	term := r.URL.Query().Get("q")
	limit := utils.QueryInt(r, "limit", 20, 100)
	me := utils.GetUserIDFromRequest(r)

	found, err := store.Get(ctx, h.retry, func() ([]models.Participant, error) {
		return h.stores.Users.SearchParticipants(ctx, term, limit+1)
	})
	if err != nil {
		apierror.Write(w, r, err)
		return
	}
	out := make([]models.Participant, 0, len(found))
	for _, p := range found {
		if p.UserID != me && len(out) < limit {
			out = append(out, p)
		}
	}
	utils.RespondWithJSON(w, http.StatusOK, out)
}

// FeedTopics subscribes a socket to the agenda and the caller's own topic.
func FeedTopics(r *http.Request) ([]string, error) {
	me := utils.GetUserIDFromRequest(r)
	if me == "" {
		return nil, apierror.ErrForbidden
	}
	return []string{feed.TopicAgenda, feed.ParticipantTopic(me)}, nil
}

// Feed streams agenda and personal events over a websocket.
//
// GET /ws/feed
func (h *Handler) Feed() httprouter.Handle {
	return feed.ServeWS(h.broker, FeedTopics)
}
