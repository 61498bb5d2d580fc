package tickets

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rueda/models"
)

func TestSignerRoundTrip(t *testing.T) {
	s, err := NewSigner("secret")
	require.NoError(t, err)
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	pass, err := s.Verify(s.Payload("r1", "p", at))
	require.NoError(t, err)
	assert.Equal(t, Pass{MeetingID: "r1", ParticipantID: "p", IssuedAt: at}, pass)
}

func TestSignerRejectsTampering(t *testing.T) {
	s, err := NewSigner("secret")
	require.NoError(t, err)
	payload := s.Payload("r1", "p", time.Now())

	_, err = s.Verify(strings.Replace(payload, "r1|", "r2|", 1))
	assert.ErrorIs(t, err, ErrBadSignature)

	other, err := NewSigner("another")
	require.NoError(t, err)
	_, err = other.Verify(payload)
	assert.ErrorIs(t, err, ErrBadSignature)

	_, err = s.Verify("r1|p")
	assert.ErrorIs(t, err, ErrMalformed)
	_, err = s.Verify("r1|p|soon|sig")
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = NewSigner("")
	assert.Error(t, err)
}

func TestScheduleRendersPDF(t *testing.T) {
	s, err := NewSigner("secret")
	require.NoError(t, err)

	m := models.NewMeetingRequest("r1", "p", "q", time.Now())
	m.Status = models.StatusAccepted
	m.Apply(models.Assignment{SlotID: "s1", TimeSlot: models.NewTimeRange(models.MustClock("09:10"), 10), Table: 2, TableName: "Sur"})
	early := models.NewMeetingRequest("r2", "s", "p", time.Now())
	early.Apply(models.Assignment{SlotID: "s2", TimeSlot: models.NewTimeRange(models.MustClock("09:00"), 10), Table: 1})

	var buf bytes.Buffer
	err = Schedule(&buf, models.Participant{UserID: "p", Name: "Ana"}, []Entry{{Meeting: m, With: "Luis"}, {Meeting: early, With: "Sol"}}, s, time.Now())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF")))
}

func TestScheduleWithoutMeetings(t *testing.T) {
	s, err := NewSigner("secret")
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, Schedule(&buf, models.Participant{UserID: "p"}, nil, s, time.Now()))
	assert.NotZero(t, buf.Len())
}
