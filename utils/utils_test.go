package utils

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rueda/globals"
)

type body struct {
	ReceiverID string `json:"receiverId" validate:"required"`
}

func TestDecodeAndValidate(t *testing.T) {
	var b body
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"receiverId":"q"}`))
	require.NoError(t, DecodeAndValidate(req, &b))
	assert.Equal(t, "q", b.ReceiverID)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
	var verrs validator.ValidationErrors
	assert.ErrorAs(t, DecodeAndValidate(req, &b), &verrs)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"receiverId":"q","extra":1}`))
	assert.ErrorIs(t, DecodeAndValidate(req, &b), ErrBadPayload)
}

func TestRequestHelpers(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=500&unread=true&page=x", nil)
	assert.Equal(t, 100, QueryInt(req, "limit", 20, 100))
	assert.Equal(t, 1, QueryInt(req, "page", 1, 10))
	assert.True(t, QueryBool(req, "unread"))
	assert.False(t, QueryBool(req, "missing"))

	assert.Empty(t, GetUserIDFromRequest(req))
	ctx := context.WithValue(req.Context(), globals.UserIDKey, "u1")
	ctx = context.WithValue(ctx, globals.RoleKey, []string{"admin"})
	req = req.WithContext(ctx)
	assert.Equal(t, "u1", GetUserIDFromRequest(req))
	assert.Equal(t, []string{"admin"}, GetRolesFromRequest(req))
}

func TestRespondWithError(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondWithError(rec, http.StatusTeapot, "nope")
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error":"nope"}`, rec.Body.String())
}
