package apierror

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rueda/agenda"
	"rueda/allocation"
	"rueda/models"
	"rueda/store"
	"rueda/tickets"
	"rueda/utils"
)

func TestFromError(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("%w: unexpected EOF", utils.ErrBadPayload), http.StatusBadRequest, CodeValidation},
		{tickets.ErrBadSignature, http.StatusBadRequest, CodeInvalidTicket},
		{fmt.Errorf("meeting r1: %w", tickets.ErrRevoked), http.StatusConflict, CodeInvalidTicket},
		{allocation.ErrSameParticipant, http.StatusBadRequest, CodeSameParticipant},
		{allocation.ErrMissingParticipant, http.StatusBadRequest, CodeMissingParticipant},
		{fmt.Errorf("create: %w", store.ErrDuplicatePending), http.StatusConflict, CodeDuplicatePending},
		{fmt.Errorf("request r1 is accepted: %w", store.ErrAlreadyProcessed), http.StatusConflict, CodeAlreadyProcessed},
		{fmt.Errorf("slot s1 is taken: %w", store.ErrSlotConflict), http.StatusConflict, CodeSlotConflict},
		{&allocation.NoSlotError{RequestID: "r1"}, http.StatusConflict, CodeNoAvailableSlot},
		{&allocation.ConflictError{ParticipantID: "p"}, http.StatusConflict, CodeTimeConflict},
		{fmt.Errorf("request r9: %w", store.ErrNotFound), http.StatusNotFound, CodeNotFound},
		{fmt.Errorf("load agenda config: %w", store.ErrConfigMissing), http.StatusPreconditionFailed, CodeConfigMissing},
		{agenda.ErrMaintenanceRequired, http.StatusLocked, CodeMaintenance},
		{agenda.ErrMaintenanceActive, http.StatusLocked, CodeMaintenance},
		{ErrForbidden, http.StatusForbidden, CodeForbidden},
		{fmt.Errorf("%w: connection reset", store.ErrUnavailable), http.StatusServiceUnavailable, CodeUnavailable},
		{errors.New("boom"), http.StatusInternalServerError, CodeInternal},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			status, resp := FromError(tc.err)
			assert.Equal(t, tc.status, status)
			assert.Equal(t, tc.code, resp.Code)
		})
	}
}

func TestCapacityCarriesContext(t *testing.T) {
	err := fmt.Errorf("accept r1: %w", &allocation.CapacityError{ParticipantID: "p", Limit: 4, Accepted: 4})
	status, resp := FromError(err)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "p", resp.ParticipantID)
	assert.Equal(t, 4, resp.Limit)
}

func TestValidationFields(t *testing.T) {
	err := models.AgendaConfig{NumTables: 0, MeetingDuration: 10}.Validate()
	require.Error(t, err)

	status, resp := FromError(err)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, CodeValidation, resp.Code)
	assert.Contains(t, resp.Fields, "numTables")
}

func TestWriteHidesInternalErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	Write(rec, httptest.NewRequest(http.MethodGet, "/x", nil), errors.New("mongo password leaked"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "internal error", body.Error)
}
