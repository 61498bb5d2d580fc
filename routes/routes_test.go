package routes

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rueda/admin"
	"rueda/agenda"
	"rueda/allocation"
	"rueda/apierror"
	"rueda/booking"
	"rueda/feed"
	"rueda/globals"
	"rueda/middleware"
	"rueda/models"
	"rueda/notify"
	"rueda/ratelim"
	"rueda/store"
	"rueda/tickets"
)

const testSecret = "route-test-secret-0123456789"

type server struct {
	router *httprouter.Router
	mem    *store.Memory
	hub    *feed.Hub
	auth   *middleware.Authenticator
	signer *tickets.Signer
}

func newServer(t *testing.T) *server {
	t.Helper()
	hub := feed.NewHub(0)
	go hub.Run()
	t.Cleanup(hub.Stop)

	mem := store.NewMemory(hub)
	stores := mem.Stores()
	for _, p := range []models.Participant{
		{UserID: "p", Name: "Paula", Organization: "Acme"},
		{UserID: "q", Name: "Quim", Organization: "Beta"},
		{UserID: "s", Name: "Sara"},
	} {
		mem.PutParticipant(p)
	}

	sw := &agenda.Flag{}
	inbox := notify.NewInbox(stores.Notifications, hub)
	sessions := allocation.NewSessions(stores.Config, func(cfg models.AgendaConfig) *allocation.Engine {
		return allocation.New(stores, cfg, allocation.WithSink(inbox))
	})
	signer, err := tickets.NewSigner(testSecret)
	require.NoError(t, err)

	auth := middleware.NewAuthenticator(testSecret)
	router := httprouter.New()
	RoutesWrapper(router, ratelim.NewRateLimiter(1000, 1000), auth,
		booking.NewHandler(sessions, stores, sw, signer, hub),
		admin.NewHandler(sessions, stores, agenda.NewGenerator(stores, agenda.WithSwitch(sw)), sw, signer))

	return &server{router: router, mem: mem, hub: hub, auth: auth, signer: signer}
}

func (s *server) token(t *testing.T, userID string, roles ...string) string {
	t.Helper()
	tok, err := s.auth.Issue(userID, userID, roles, time.Hour)
	require.NoError(t, err)
	return tok
}

func (s *server) do(t *testing.T, method, path, userID string, body any, roles ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+s.token(t, userID, roles...))
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *server) admin(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	return s.do(t, method, path, "org", body, globals.RoleAdmin)
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func code(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[apierror.ErrorResponse](t, rec).Code
}

// prepare configures two tables from 09:00 to 09:30 and generates the slots.
func (s *server) prepare(t *testing.T) {
	t.Helper()
	rec := s.admin(t, http.MethodPut, "/api/admin/config", map[string]any{
		"numTables": 2, "startTime": "09:00", "endTime": "09:30", "meetingDuration": 10,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, http.StatusOK, s.admin(t, http.MethodPut, "/api/admin/maintenance", map[string]bool{"enabled": true}).Code)
	rec = s.admin(t, http.MethodPost, "/api/admin/agenda/generate", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, 6, decode[agenda.GenerateResult](t, rec).SlotsCreated)
	require.Equal(t, http.StatusOK, s.admin(t, http.MethodPut, "/api/admin/maintenance", map[string]bool{"enabled": false}).Code)
}

func (s *server) request(t *testing.T, from, to string) models.MeetingRequest {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/meetings", from, map[string]string{"receiverId": to})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[models.MeetingRequest](t, rec)
}

func TestAuthIsRequired(t *testing.T) {
	s := newServer(t)
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/api/meetings", "", nil).Code)
	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodGet, "/api/admin/slots", "p", nil).Code)
}

func TestConfigMissingBeforeSetup(t *testing.T) {
	s := newServer(t)
	rec := s.admin(t, http.MethodGet, "/api/admin/config", nil)
	assert.Equal(t, http.StatusPreconditionFailed, rec.Code)
	assert.Equal(t, apierror.CodeConfigMissing, code(t, rec))

	rec = s.admin(t, http.MethodPut, "/api/admin/config", map[string]any{
		"numTables": 2, "startTime": "10:00", "endTime": "09:00", "meetingDuration": 10,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[apierror.ErrorResponse](t, rec).Fields, "endTime")
}

func TestGenerateNeedsMaintenanceMode(t *testing.T) {
	s := newServer(t)
	rec := s.admin(t, http.MethodPut, "/api/admin/config", map[string]any{
		"tableNames": []string{"Norte", "Sur"}, "startTime": "09:00", "endTime": "09:30", "meetingDuration": 10,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cfg := decode[models.AgendaConfig](t, rec)
	assert.Equal(t, 2, cfg.NumTables, "table names decide the table count")
	assert.Equal(t, models.DefaultMaxAcceptedPerParticipant, cfg.MaxAcceptedPerParticipant)

	rec = s.admin(t, http.MethodPost, "/api/admin/agenda/generate", nil)
	assert.Equal(t, http.StatusLocked, rec.Code)
	assert.Equal(t, apierror.CodeMaintenance, code(t, rec))
}

func TestRequestAcceptFlow(t *testing.T) {
	s := newServer(t)
	s.prepare(t)

	req := s.request(t, "p", "q")
	assert.Equal(t, models.StatusPending, req.Status)

	rec := s.do(t, http.MethodPost, "/api/meetings", "p", map[string]string{"receiverId": "q"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, apierror.CodeDuplicatePending, code(t, rec))

	rec = s.do(t, http.MethodPost, "/api/meetings", "p", map[string]string{"receiverId": "p"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	incoming := decode[[]models.MeetingRequest](t, s.do(t, http.MethodGet, "/api/meetings?role=incoming", "q", nil))
	require.Len(t, incoming, 1)
	assert.Equal(t, req.ID, incoming[0].ID)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/meetings?role=sideways", "q", nil).Code)

	rec = s.do(t, http.MethodPost, "/api/meetings/"+req.ID+"/accept", "p", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code, "only the receiver decides")

	rec = s.do(t, http.MethodPost, "/api/meetings/"+req.ID+"/accept", "q", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	acc := decode[models.MeetingRequest](t, rec)
	assert.Equal(t, models.StatusAccepted, acc.Status)
	require.NotNil(t, acc.TimeSlot)
	assert.Equal(t, "09:00-09:10", acc.TimeSlot.String())
	require.NotNil(t, acc.TableAssigned)
	assert.Equal(t, 1, *acc.TableAssigned)

	rec = s.do(t, http.MethodPost, "/api/meetings/"+req.ID+"/reject", "q", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, apierror.CodeAlreadyProcessed, code(t, rec))

	free := decode[[]models.Slot](t, s.do(t, http.MethodGet, "/api/slots/available", "p", nil))
	assert.Len(t, free, 5)

	mine := decode[[]booking.ScheduleEntry](t, s.do(t, http.MethodGet, "/api/agenda/me", "p", nil))
	require.Len(t, mine, 1)
	assert.Equal(t, "q", mine[0].With.UserID)
	assert.Equal(t, "Quim", mine[0].With.Name)

	rec = s.do(t, http.MethodGet, "/api/agenda/me.pdf", "p", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")))

	notes := decode[[]models.Notification](t, s.do(t, http.MethodGet, "/api/notifications?unread=true", "p", nil))
	require.NotEmpty(t, notes)
	assert.Equal(t, models.SeveritySuccess, notes[0].Type)
	rec = s.do(t, http.MethodPost, "/api/notifications/read", "p", map[string][]string{"ids": {}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]models.Notification](t, s.do(t, http.MethodGet, "/api/notifications?unread=true", "p", nil)))
}

func TestMaintenanceLocksDecisions(t *testing.T) {
	s := newServer(t)
	s.prepare(t)
	req := s.request(t, "p", "q")

	require.Equal(t, http.StatusOK, s.admin(t, http.MethodPut, "/api/admin/maintenance", map[string]bool{"enabled": true}).Code)
	assert.True(t, decode[map[string]bool](t, s.admin(t, http.MethodGet, "/api/admin/maintenance", nil))["enabled"])

	rec := s.do(t, http.MethodPost, "/api/meetings/"+req.ID+"/accept", "q", nil)
	assert.Equal(t, http.StatusLocked, rec.Code)
	rec = s.admin(t, http.MethodPost, "/api/admin/meetings", map[string]string{"participantA": "p", "participantB": "s", "slotId": "any"})
	assert.Equal(t, http.StatusLocked, rec.Code)

	require.Equal(t, http.StatusOK, s.admin(t, http.MethodPut, "/api/admin/maintenance", map[string]bool{"enabled": false}).Code)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/meetings/"+req.ID+"/accept", "q", nil).Code)
}

func TestAssignAndCheckIn(t *testing.T) {
	s := newServer(t)
	s.prepare(t)

	slots := decode[[]models.Slot](t, s.admin(t, http.MethodGet, "/api/admin/slots", nil))
	require.Len(t, slots, 6)
	target := slots[3]

	rec := s.admin(t, http.MethodPost, "/api/admin/meetings", map[string]string{"participantA": "p", "participantB": "s", "slotId": target.ID})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	m := decode[models.MeetingRequest](t, rec)
	assert.Equal(t, "org", m.AssignedBy)
	assert.Equal(t, target.Range().String(), m.TimeSlot.String())

	rec = s.admin(t, http.MethodPost, "/api/admin/meetings", map[string]string{"participantA": "q", "participantB": "s", "slotId": target.ID})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, apierror.CodeSlotConflict, code(t, rec))

	payload := s.signer.Payload(m.ID, "s", time.Now())
	rec = s.admin(t, http.MethodPost, "/api/admin/tickets/verify", map[string]string{"payload": payload})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.admin(t, http.MethodPost, "/api/admin/tickets/verify", map[string]string{"payload": s.signer.Payload(m.ID, "q", time.Now())})
	assert.Equal(t, http.StatusConflict, rec.Code, "q is not in that meeting")

	rec = s.admin(t, http.MethodPost, "/api/admin/tickets/verify", map[string]string{"payload": payload + "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	require.Equal(t, http.StatusOK, s.admin(t, http.MethodPut, "/api/admin/maintenance", map[string]bool{"enabled": true}).Code)
	rec = s.admin(t, http.MethodPost, "/api/admin/agenda/reset", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[agenda.ResetResult](t, rec).MeetingsCleared)

	rec = s.admin(t, http.MethodPost, "/api/admin/tickets/verify", map[string]string{"payload": payload})
	assert.Equal(t, http.StatusConflict, rec.Code, "reset revokes the ticket")
}

func TestParticipantSearchSkipsCaller(t *testing.T) {
	s := newServer(t)
	found := decode[[]models.Participant](t, s.do(t, http.MethodGet, "/api/participants?q=a", "p", nil))
	for _, p := range found {
		assert.NotEqual(t, "p", p.UserID)
	}
	assert.NotEmpty(t, found)
}

func TestFeedDeliversOwnEvents(t *testing.T) {
	s := newServer(t)
	s.prepare(t)
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/feed?token=" + s.token(t, "q")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	// the subscription is registered asynchronously after the upgrade
	require.Eventually(t, func() bool {
		return s.hub.Subscribers(feed.ParticipantTopic("q")) == 1
	}, time.Second, 5*time.Millisecond)

	req := s.request(t, "p", "q")

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var ev feed.Event
		require.NoError(t, conn.ReadJSON(&ev))
		if ev.Topic == feed.ParticipantTopic("q") && ev.Kind == feed.KindMeetingCreated {
			require.NotNil(t, ev.Meeting)
			assert.Equal(t, req.ID, ev.Meeting.ID)
			return
		}
	}
}
