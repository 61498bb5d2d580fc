package models

import (
	"strconv"
	"time"
)

// DefaultMaxAcceptedPerParticipant applies when a stored config leaves the cap unset.
const DefaultMaxAcceptedPerParticipant = 4

// AgendaConfig holds the operator-set parameters of the event agenda.
// Durations are in minutes.
type AgendaConfig struct {
	NumTables                 int       `json:"numTables" bson:"numTables" validate:"min=1,max=1000"`
	TableNames                []string  `json:"tableNames,omitempty" bson:"tableNames,omitempty" validate:"omitempty,max=1000,dive,required,max=64"`
	MeetingDuration           int       `json:"meetingDuration" bson:"meetingDuration" validate:"min=1,max=720"`
	BreakTime                 int       `json:"breakTime" bson:"breakTime" validate:"min=0,max=720"`
	StartTime                 Clock     `json:"startTime" bson:"startTime" validate:"gte=0,lt=1440"`
	EndTime                   Clock     `json:"endTime" bson:"endTime" validate:"gt=0,lte=1440"`
	MaxPersons                int       `json:"maxPersons" bson:"maxPersons" validate:"min=0"`
	MaxAcceptedPerParticipant int       `json:"maxAcceptedPerParticipant" bson:"maxAcceptedPerParticipant" validate:"min=0,max=1000"`
	UpdatedAt                 time.Time `json:"updatedAt,omitempty" bson:"updatedAt,omitempty"`
}

// Normalized resolves the table-name quirk (a supplied name list wins over
// NumTables) and fills the capacity default.
func (c AgendaConfig) Normalized() AgendaConfig {
	if len(c.TableNames) > 0 && len(c.TableNames) != c.NumTables {
		c.NumTables = len(c.TableNames)
	}
	if c.MaxAcceptedPerParticipant == 0 {
		c.MaxAcceptedPerParticipant = DefaultMaxAcceptedPerParticipant
	}
	return c
}

// TableName returns the display name of table n (1-based).
func (c AgendaConfig) TableName(n int) string {
	if n >= 1 && n <= len(c.TableNames) {
		return c.TableNames[n-1]
	}
	return strconv.Itoa(n)
}

// Step is the distance in minutes between two consecutive slot starts.
func (c AgendaConfig) Step() int {
	return c.MeetingDuration + c.BreakTime
}

// Rounds is the number of time ranges that fit in the agenda window.
func (c AgendaConfig) Rounds() int {
	step := c.Step()
	if step <= 0 || c.EndTime <= c.StartTime {
		return 0
	}
	return int(c.EndTime-c.StartTime) / step
}

// Validate checks field bounds and that the window fits at least one meeting.
func (c AgendaConfig) Validate() error {
	return Validator().Struct(c)
}
