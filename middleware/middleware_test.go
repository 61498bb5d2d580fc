package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rueda/globals"
	"rueda/utils"
)

func echoUser(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	utils.RespondWithJSON(w, http.StatusOK, utils.M{"user": utils.GetUserIDFromRequest(r)})
}

func TestAuthenticate(t *testing.T) {
	auth := NewAuthenticator("s3cret")
	token, err := auth.Issue("u1", "ana", []string{"participant"}, time.Hour)
	require.NoError(t, err)
	h := auth.Authenticate(echoUser)

	cases := []struct {
		name   string
		header string
		status int
	}{
		{"valid", "Bearer " + token, http.StatusOK},
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Token " + token, http.StatusUnauthorized},
		{"garbage", "Bearer abc.def.ghi", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h(rec, req, nil)
			assert.Equal(t, tc.status, rec.Code)
			if tc.status == http.StatusOK {
				assert.JSONEq(t, `{"user":"u1"}`, rec.Body.String())
			}
		})
	}
}

func TestAuthenticateRejectsOtherSecretAndExpiry(t *testing.T) {
	auth := NewAuthenticator("s3cret")
	forged, err := NewAuthenticator("other").Issue("u1", "ana", nil, time.Hour)
	require.NoError(t, err)
	_, err = auth.Parse(forged)
	assert.Error(t, err)

	expired, err := auth.Issue("u1", "ana", nil, -time.Minute)
	require.NoError(t, err)
	_, err = auth.Parse(expired)
	assert.Error(t, err)
}

func TestWebsocketTokenFromQuery(t *testing.T) {
	auth := NewAuthenticator("s3cret")
	token, err := auth.Issue("u2", "luis", nil, time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/ws?token="+token, nil)
	req.Header.Set("Connection", "upgrade")
	req.Header.Set("Upgrade", "websocket")
	rec := httptest.NewRecorder()
	auth.Authenticate(echoUser)(rec, req, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	plain := httptest.NewRequest(http.MethodGet, "/x?token="+token, nil)
	rec = httptest.NewRecorder()
	auth.Authenticate(echoUser)(rec, plain, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "query tokens only count on upgrades")
}

func TestRequireRole(t *testing.T) {
	auth := NewAuthenticator("s3cret")
	admin, err := auth.Issue("a", "root", []string{globals.RoleAdmin}, time.Hour)
	require.NoError(t, err)
	user, err := auth.Issue("u", "ana", []string{"participant"}, time.Hour)
	require.NoError(t, err)
	h := auth.Authenticate(RequireRole(globals.RoleAdmin, echoUser))

	for token, want := range map[string]int{admin: http.StatusOK, user: http.StatusForbidden} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		h(rec, req, nil)
		assert.Equal(t, want, rec.Code)
	}
}
