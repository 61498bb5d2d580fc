package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Clock is a wall-clock time of day with minute granularity, counted in
// minutes since midnight. It encodes as "HH:MM" in JSON and as an integer in
// BSON so stored slots sort numerically.
type Clock int

// ParseClock parses "HH:MM" (24h).
func ParseClock(s string) (Clock, error) {
	h, m, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || len(m) != 2 || len(h) == 0 || len(h) > 2 {
		return 0, fmt.Errorf("invalid clock %q: want HH:MM", s)
	}
	hh, err := strconv.Atoi(h)
	if err != nil {
		return 0, fmt.Errorf("invalid clock %q: %w", s, err)
	}
	mm, err := strconv.Atoi(m)
	if err != nil {
		return 0, fmt.Errorf("invalid clock %q: %w", s, err)
	}
	if hh < 0 || hh > 23 || mm < 0 || mm > 59 {
		return 0, fmt.Errorf("invalid clock %q: out of range", s)
	}
	return Clock(hh*60 + mm), nil
}

// MustClock is ParseClock for literals; it panics on malformed input.
func MustClock(s string) Clock {
	c, err := ParseClock(s)
	if err != nil {
		panic(err)
	}
	return c
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// Add returns c shifted by the given number of minutes.
func (c Clock) Add(minutes int) Clock {
	return c + Clock(minutes)
}

func (c Clock) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *Clock) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("clock must be a \"HH:MM\" string: %w", err)
	}
	parsed, err := ParseClock(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// TimeRange is a half-open [Start, End) interval of the agenda day. Two
// ranges are the same meeting time iff they compare equal with ==.
type TimeRange struct {
	Start Clock `json:"start" bson:"start"`
	End   Clock `json:"end" bson:"end"`
}

// NewTimeRange returns the range starting at start and lasting minutes.
func NewTimeRange(start Clock, minutes int) TimeRange {
	return TimeRange{Start: start, End: start.Add(minutes)}
}

// ParseTimeRange parses the "HH:MM-HH:MM" label form.
func ParseTimeRange(s string) (TimeRange, error) {
	a, b, ok := strings.Cut(s, "-")
	if !ok {
		return TimeRange{}, fmt.Errorf("invalid time range %q: want HH:MM-HH:MM", s)
	}
	start, err := ParseClock(a)
	if err != nil {
		return TimeRange{}, err
	}
	end, err := ParseClock(b)
	if err != nil {
		return TimeRange{}, err
	}
	r := TimeRange{Start: start, End: end}
	if !r.Valid() {
		return TimeRange{}, fmt.Errorf("invalid time range %q: end before start", s)
	}
	return r, nil
}

func (r TimeRange) String() string {
	return r.Start.String() + "-" + r.End.String()
}

func (r TimeRange) Minutes() int {
	return int(r.End - r.Start)
}

func (r TimeRange) Valid() bool {
	return r.End > r.Start
}

// Overlaps reports whether r and o share any minute.
func (r TimeRange) Overlaps(o TimeRange) bool {
	return r.Start < o.End && o.Start < r.End
}
