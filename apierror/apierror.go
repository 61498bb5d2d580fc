// Package apierror turns service errors into JSON error responses.
package apierror

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/gommon/log"

	"rueda/agenda"
	"rueda/allocation"
	"rueda/store"
	"rueda/tickets"
	"rueda/utils"
)

// Error codes carried in the "code" field.
const (
	CodeValidation         = "validation"
	CodeMissingParticipant = "missing_participant"
	CodeSameParticipant    = "same_participant"
	CodeNotFound           = "not_found"
	CodeDuplicatePending   = "duplicate_pending"
	CodeAlreadyProcessed   = "already_processed"
	CodeSlotConflict       = "slot_conflict"
	CodeNoAvailableSlot    = "no_available_slot"
	CodeCapacityExceeded   = "capacity_exceeded"
	CodeTimeConflict       = "time_conflict"
	CodeConfigMissing      = "config_missing"
	CodeMaintenance        = "maintenance"
	CodeUnavailable        = "unavailable"
	CodeForbidden          = "forbidden"
	CodeInvalidTicket      = "invalid_ticket"
	CodeInternal           = "internal"
)

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error         string            `json:"error"`
	Code          string            `json:"code"`
	ParticipantID string            `json:"participantId,omitempty"`
	Limit         int               `json:"limit,omitempty"`
	Fields        map[string]string `json:"fields,omitempty"`
}

// ErrForbidden marks a caller acting on a request that is not theirs to decide.
var ErrForbidden = errors.New("forbidden")

// FromError classifies err into a status code and response body.
func FromError(err error) (int, ErrorResponse) {
	resp := ErrorResponse{Error: err.Error()}

	var verrs validator.ValidationErrors
	var capErr *allocation.CapacityError
	var slotErr *allocation.NoSlotError
	var confErr *allocation.ConflictError

	switch {
	case errors.As(err, &verrs):
		resp.Code = CodeValidation
		resp.Fields = fieldErrors(verrs)
		return http.StatusBadRequest, resp
	case errors.Is(err, utils.ErrBadPayload):
		resp.Code = CodeValidation
		return http.StatusBadRequest, resp
	case errors.Is(err, tickets.ErrMalformed), errors.Is(err, tickets.ErrBadSignature):
		resp.Code = CodeInvalidTicket
		return http.StatusBadRequest, resp
	case errors.Is(err, tickets.ErrRevoked):
		resp.Code = CodeInvalidTicket
		return http.StatusConflict, resp
	case errors.Is(err, allocation.ErrMissingParticipant):
		resp.Code = CodeMissingParticipant
		return http.StatusBadRequest, resp
	case errors.Is(err, allocation.ErrSameParticipant):
		resp.Code = CodeSameParticipant
		return http.StatusBadRequest, resp
	case errors.As(err, &capErr):
		resp.Code = CodeCapacityExceeded
		resp.ParticipantID = capErr.ParticipantID
		resp.Limit = capErr.Limit
		return http.StatusConflict, resp
	case errors.As(err, &slotErr):
		resp.Code = CodeNoAvailableSlot
		resp.ParticipantID = slotErr.ParticipantID
		return http.StatusConflict, resp
	case errors.As(err, &confErr):
		resp.Code = CodeTimeConflict
		resp.ParticipantID = confErr.ParticipantID
		return http.StatusConflict, resp
	case errors.Is(err, store.ErrDuplicatePending):
		resp.Code = CodeDuplicatePending
		return http.StatusConflict, resp
	case errors.Is(err, store.ErrAlreadyProcessed):
		resp.Code = CodeAlreadyProcessed
		return http.StatusConflict, resp
	case errors.Is(err, store.ErrSlotConflict):
		resp.Code = CodeSlotConflict
		return http.StatusConflict, resp
	case errors.Is(err, store.ErrNotFound):
		resp.Code = CodeNotFound
		return http.StatusNotFound, resp
	case errors.Is(err, store.ErrConfigMissing):
		resp.Code = CodeConfigMissing
		return http.StatusPreconditionFailed, resp
	case errors.Is(err, agenda.ErrMaintenanceActive), errors.Is(err, agenda.ErrMaintenanceRequired):
		resp.Code = CodeMaintenance
		return http.StatusLocked, resp
	case errors.Is(err, ErrForbidden):
		resp.Code = CodeForbidden
		return http.StatusForbidden, resp
	case errors.Is(err, store.ErrUnavailable), errors.Is(err, context.DeadlineExceeded):
		resp.Code = CodeUnavailable
		resp.Error = "service temporarily unavailable"
		return http.StatusServiceUnavailable, resp
	}
	resp.Code = CodeInternal
	resp.Error = "internal error"
	return http.StatusInternalServerError, resp
}

// Write logs server-side failures and sends the mapped response.
func Write(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := FromError(err)
	if status >= http.StatusInternalServerError {
		log.Errorf("[API] %s %s: %v", r.Method, r.URL.Path, err)
	} else {
		log.Debugf("[API] %s %s: %v", r.Method, r.URL.Path, err)
	}
	utils.RespondWithJSON(w, status, resp)
}

func fieldErrors(verrs validator.ValidationErrors) map[string]string {
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		msg := fe.Tag()
		if fe.Param() != "" {
			msg += "=" + fe.Param()
		}
		out[fe.Field()] = msg
	}
	return out
}
