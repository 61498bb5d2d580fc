package booking

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"slices"
	"strconv"

	"github.com/julienschmidt/httprouter"
	"github.com/labstack/gommon/log"

	"rueda/apierror"
	"rueda/models"
	"rueda/store"
	"rueda/tickets"
	"rueda/utils"
)

// ScheduleEntry is an accepted meeting with the counterpart's profile.
type ScheduleEntry struct {
	models.MeetingRequest
	With models.Participant `json:"with"`
}

func startOf(m models.MeetingRequest) models.Clock {
	if m.TimeSlot == nil {
		return 0
	}
	return m.TimeSlot.Start
}

// schedule loads the accepted meetings of participantID in time order.
func (h *Handler) schedule(ctx context.Context, participantID string) ([]ScheduleEntry, error) {
	accepted, err := store.Get(ctx, h.retry, func() ([]models.MeetingRequest, error) {
		return h.stores.Meetings.AcceptedFor(ctx, participantID)
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(accepted, func(a, b models.MeetingRequest) int {
		return int(startOf(a) - startOf(b))
	})

	out := make([]ScheduleEntry, 0, len(accepted))
	for _, m := range accepted {
		other := m.RequesterID
		if other == participantID {
			other = m.ReceiverID
		}
		out = append(out, ScheduleEntry{MeetingRequest: m, With: h.profile(ctx, other)})
	}
	return out, nil
}

// profile falls back to a bare id when the directory has no entry.
func (h *Handler) profile(ctx context.Context, participantID string) models.Participant {
	p, err := h.stores.Users.GetParticipant(ctx, participantID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Warnf("[Booking] profile of %s: %v", participantID, err)
		}
		return models.Participant{UserID: participantID}
	}
	return *p
}

// MySchedule returns the caller's accepted meetings ordered by start time.
//
// GET /api/agenda/me
func (h *Handler) MySchedule(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	entries, err := h.schedule(r.Context(), utils.GetUserIDFromRequest(r))
	if err != nil {
		apierror.Write(w, r, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, entries)
}

// MySchedulePDF renders the caller's schedule with a signed check-in QR code
// per meeting.
//
// GET /api/agenda/me.pdf
func (h *Handler) MySchedulePDF(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx := r.Context()
	me := utils.GetUserIDFromRequest(r)
	entries, err := h.schedule(ctx, me)
	if err != nil {
		apierror.Write(w, r, err)
		return
	}

	rows := make([]tickets.Entry, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, tickets.Entry{Meeting: e.MeetingRequest, With: e.With.Label()})
	}

	var buf bytes.Buffer
	if err := tickets.Schedule(&buf, h.profile(ctx, me), rows, h.signer, h.now()); err != nil {
		apierror.Write(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="agenda.pdf"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		log.Warnf("[Booking] write schedule pdf for %s: %v", me, err)
	}
}
