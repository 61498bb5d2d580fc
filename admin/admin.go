// Package admin serves the organizer endpoints: agenda configuration, slot
// generation, maintenance mode, manual assignment and check-in.
package admin

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/labstack/gommon/log"

	"rueda/agenda"
	"rueda/allocation"
	"rueda/apierror"
	"rueda/models"
	"rueda/store"
	"rueda/tickets"
	"rueda/utils"
)

type Handler struct {
	sessions  *allocation.Sessions
	stores    store.Stores
	generator *agenda.Generator
	sw        agenda.Switch
	signer    *tickets.Signer
	retry     store.RetryPolicy
}

func NewHandler(sessions *allocation.Sessions, stores store.Stores, generator *agenda.Generator, sw agenda.Switch, signer *tickets.Signer) *Handler {
	return &Handler{
		sessions:  sessions,
		stores:    stores,
		generator: generator,
		sw:        sw,
		signer:    signer,
		retry:     store.DefaultRetryPolicy(),
	}
}

// GET /api/admin/config
func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx := r.Context()
	cfg, err := store.Get(ctx, h.retry, func() (*models.AgendaConfig, error) {
		return h.stores.Config.GetConfig(ctx)
	})
	if err != nil {
		apierror.Write(w, r, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, cfg.Normalized())
}

// PutConfig stores a new agenda config and starts a fresh allocation session
// with it. Slots are not touched until the next generate.
//
// PUT /api/admin/config
func (h *Handler) PutConfig(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var cfg models.AgendaConfig
	if err := utils.DecodeJSON(r, &cfg); err != nil {
		apierror.Write(w, r, err)
		return
	}
	cfg = cfg.Normalized()
	if err := cfg.Validate(); err != nil {
		apierror.Write(w, r, err)
		return
	}

	ctx := r.Context()
	if err := h.retry.Do(ctx, func() error { return h.stores.Config.SetConfig(ctx, cfg) }); err != nil {
		apierror.Write(w, r, err)
		return
	}
	if _, err := h.sessions.Reload(ctx); err != nil {
		apierror.Write(w, r, err)
		return
	}
	log.Infof("[Admin] %s set agenda config: %d tables %s-%s, %d+%d min, cap %d",
		utils.GetUserIDFromRequest(r), cfg.NumTables, cfg.StartTime, cfg.EndTime,
		cfg.MeetingDuration, cfg.BreakTime, cfg.MaxAcceptedPerParticipant)
	utils.RespondWithJSON(w, http.StatusOK, cfg)
}

// Generate rebuilds the slots from the stored config. Maintenance mode must
// be on.
//
// POST /api/admin/agenda/generate
func (h *Handler) Generate(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx := r.Context()
	cfg, err := store.Get(ctx, h.retry, func() (*models.AgendaConfig, error) {
		return h.stores.Config.GetConfig(ctx)
	})
	if err != nil {
		apierror.Write(w, r, err)
		return
	}
	res, err := h.generator.Generate(ctx, *cfg)
	if err != nil {
		apierror.Write(w, r, err)
		return
	}
	if _, err := h.sessions.Reload(ctx); err != nil {
		apierror.Write(w, r, err)
		return
	}
	log.Infof("[Admin] %s generated %d slots", utils.GetUserIDFromRequest(r), res.SlotsCreated)
	utils.RespondWithJSON(w, http.StatusOK, res)
}

// Reset clears accepted meetings and frees every slot. Maintenance mode must
// be on.
//
// POST /api/admin/agenda/reset
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	res, err := h.generator.Reset(r.Context())
	if err != nil {
		apierror.Write(w, r, err)
		return
	}
	log.Infof("[Admin] %s reset the agenda", utils.GetUserIDFromRequest(r))
	utils.RespondWithJSON(w, http.StatusOK, res)
}

type maintenanceBody struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

// GET /api/admin/maintenance
func (h *Handler) GetMaintenance(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	on, err := h.sw.Enabled(r.Context())
	if err != nil {
		apierror.Write(w, r, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, utils.M{"enabled": on})
}

// PUT /api/admin/maintenance
func (h *Handler) PutMaintenance(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var body maintenanceBody
	if err := utils.DecodeAndValidate(r, &body); err != nil {
		apierror.Write(w, r, err)
		return
	}
	if err := h.sw.SetEnabled(r.Context(), *body.Enabled); err != nil {
		apierror.Write(w, r, err)
		return
	}
	log.Infof("[Admin] %s set maintenance mode to %t", utils.GetUserIDFromRequest(r), *body.Enabled)
	utils.RespondWithJSON(w, http.StatusOK, utils.M{"enabled": *body.Enabled})
}

type assignBody struct {
	ParticipantA string `json:"participantA" validate:"required,max=128"`
	ParticipantB string `json:"participantB" validate:"required,max=128,nefield=ParticipantA"`
	SlotID       string `json:"slotId" validate:"required,max=128"`
}

// Assign books two participants into a chosen slot.
//
// POST /api/admin/meetings
func (h *Handler) Assign(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var body assignBody
	if err := utils.DecodeAndValidate(r, &body); err != nil {
		apierror.Write(w, r, err)
		return
	}
	ctx := r.Context()
	if err := agenda.Open(ctx, h.sw); err != nil {
		apierror.Write(w, r, err)
		return
	}
	e, err := h.sessions.Engine(ctx)
	if err != nil {
		apierror.Write(w, r, err)
		return
	}
	m, err := e.Assign(ctx, body.ParticipantA, body.ParticipantB, body.SlotID, utils.GetUserIDFromRequest(r))
	if err != nil {
		apierror.Write(w, r, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusCreated, m)
}

// ListSlots returns every slot with its assignment state.
//
// GET /api/admin/slots
func (h *Handler) ListSlots(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx := r.Context()
	slots, err := store.Get(ctx, h.retry, func() ([]models.Slot, error) {
		return h.stores.Slots.ListSlots(ctx)
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

type verifyBody struct {
	Payload string `json:"payload" validate:"required,max=512"`
}

type checkIn struct {
	Pass    tickets.Pass          `json:"pass"`
	Meeting models.MeetingRequest `json:"meeting"`
}

// VerifyTicket checks a scanned QR payload against the current agenda.
//
// POST /api/admin/tickets/verify
func (h *Handler) VerifyTicket(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var body verifyBody
	if err := utils.DecodeAndValidate(r, &body); err != nil {
		apierror.Write(w, r, err)
		return
	}
	pass, err := h.signer.Verify(body.Payload)
	if err != nil {
		apierror.Write(w, r, err)
		return
	}

	ctx := r.Context()
	m, err := store.Get(ctx, h.retry, func() (*models.MeetingRequest, error) {
		return h.stores.Meetings.Get(ctx, pass.MeetingID)
	})
	if errors.Is(err, store.ErrNotFound) {
		err = fmt.Errorf("meeting %s: %w", pass.MeetingID, tickets.ErrRevoked)
	}
	if err != nil {
		apierror.Write(w, r, err)
		return
	}
	if m.Status != models.StatusAccepted || !m.Involves(pass.ParticipantID) {
		apierror.Write(w, r, fmt.Errorf("meeting %s: %w", m.ID, tickets.ErrRevoked))
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, checkIn{Pass: pass, Meeting: *m})
}
