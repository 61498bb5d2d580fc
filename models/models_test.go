package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClock(t *testing.T) {
	tests := []struct {
		in      string
		want    Clock
		wantErr bool
	}{
		{in: "09:00", want: 540},
		{in: "9:05", want: 545},
		{in: "23:59", want: 1439},
		{in: "00:00", want: 0},
		{in: "24:00", wantErr: true},
		{in: "09:60", wantErr: true},
		{in: "0900", wantErr: true},
		{in: "09:0", wantErr: true},
		{in: "ab:cd", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseClock(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTimeRangeEqualityAndLabel(t *testing.T) {
	a := NewTimeRange(MustClock("09:00"), 10)
	b := TimeRange{Start: 540, End: 550}
	assert.Equal(t, "09:00-09:10", a.String())
	assert.True(t, a == b)

	occupied := map[TimeRange]bool{a: true}
	assert.True(t, occupied[b])
	assert.False(t, occupied[NewTimeRange(MustClock("09:10"), 10)])

	parsed, err := ParseTimeRange("09:00-09:10")
	require.NoError(t, err)
	assert.Equal(t, a, parsed)

	_, err = ParseTimeRange("09:10-09:00")
	assert.Error(t, err)
}

func TestTimeRangeOverlaps(t *testing.T) {
	a := NewTimeRange(MustClock("09:00"), 10)
	assert.True(t, a.Overlaps(NewTimeRange(MustClock("09:05"), 10)))
	assert.False(t, a.Overlaps(NewTimeRange(MustClock("09:10"), 10)))
}

func TestClockJSON(t *testing.T) {
	data, err := json.Marshal(TimeRange{Start: 540, End: 550})
	require.NoError(t, err)
	assert.JSONEq(t, `{"start":"09:00","end":"09:10"}`, string(data))

	var tr TimeRange
	require.NoError(t, json.Unmarshal([]byte(`{"start":"10:30","end":"10:45"}`), &tr))
	assert.Equal(t, MustClock("10:30"), tr.Start)
	assert.Equal(t, 15, tr.Minutes())

	assert.Error(t, json.Unmarshal([]byte(`{"start":630}`), &tr))
}

func TestAgendaConfigNormalized(t *testing.T) {
	cfg := AgendaConfig{NumTables: 5, TableNames: []string{"Norte", "Sur"}}.Normalized()
	assert.Equal(t, 2, cfg.NumTables)
	assert.Equal(t, "Sur", cfg.TableName(2))
	assert.Equal(t, DefaultMaxAcceptedPerParticipant, cfg.MaxAcceptedPerParticipant)

	plain := AgendaConfig{NumTables: 3, MaxAcceptedPerParticipant: 2}.Normalized()
	assert.Equal(t, 3, plain.NumTables)
	assert.Equal(t, "3", plain.TableName(3))
	assert.Equal(t, 2, plain.MaxAcceptedPerParticipant)
}

func TestAgendaConfigRounds(t *testing.T) {
	cfg := AgendaConfig{StartTime: MustClock("09:00"), EndTime: MustClock("09:30"), MeetingDuration: 10}
	assert.Equal(t, 3, cfg.Rounds())

	cfg.BreakTime = 5
	assert.Equal(t, 2, cfg.Rounds())

	cfg.EndTime = cfg.StartTime
	assert.Equal(t, 0, cfg.Rounds())
}

func TestAgendaConfigValidate(t *testing.T) {
	valid := AgendaConfig{
		NumTables:       2,
		MeetingDuration: 10,
		StartTime:       MustClock("09:00"),
		EndTime:         MustClock("09:30"),
	}
	require.NoError(t, valid.Validate())

	inverted := valid
	inverted.StartTime, inverted.EndTime = valid.EndTime, valid.StartTime
	assert.Error(t, inverted.Validate())

	tooShort := valid
	tooShort.MeetingDuration = 45
	assert.Error(t, tooShort.Validate())

	noTables := valid
	noTables.NumTables = 0
	assert.Error(t, noTables.Validate())

	blankName := valid
	blankName.TableNames = []string{"A", ""}
	assert.Error(t, blankName.Validate())
}

func TestMeetingRequestHelpers(t *testing.T) {
	m := NewMeetingRequest("r1", "p", "q", time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC))
	assert.Equal(t, StatusPending, m.Status)
	assert.True(t, m.Involves("q"))
	assert.False(t, m.Involves("s"))
	assert.Equal(t, "q", m.Counterpart("p"))
	assert.Equal(t, "p", m.Counterpart("q"))

	m.Apply(Assignment{SlotID: "s1", TimeSlot: NewTimeRange(540, 10), Table: 2, TableName: "B"})
	c := m.Clone()
	*c.TableAssigned = 9
	c.Participants[0] = "x"
	assert.Equal(t, 2, *m.TableAssigned)
	assert.Equal(t, "p", m.Participants[0])
}

func TestParticipantMatches(t *testing.T) {
	p := Participant{UserID: "u1", Name: "Ana Ruiz", Organization: "Acme"}
	assert.True(t, p.Matches("acme"))
	assert.True(t, p.Matches(" ruiz "))
	assert.False(t, p.Matches("globex"))
	assert.Equal(t, "Ana Ruiz (Acme)", p.Label())
	assert.Equal(t, "u2", Participant{UserID: "u2"}.Label())
}
