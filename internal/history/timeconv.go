package history

import (
	"fmt"
	"math"
	"time"

	"github.com/hpungsan/browsediary/internal/errors"
)

// CoreDataEpochOffset is the number of seconds between the Unix epoch and
// 2001-01-01T00:00:00Z, the reference date Safari stores visit times against.
const CoreDataEpochOffset = 978307200

// Layouts used for dates and clock times throughout the pipeline.
const (
	DateLayout  = "2006-01-02"
	ClockLayout = "15:04"
)

// Converter maps store timestamps to wall-clock values in a fixed location.
// The location is bound at construction so results never depend on process state.
type Converter struct {
	loc *time.Location
}

// NewConverter creates a Converter for loc. A nil loc means UTC.
func NewConverter(loc *time.Location) Converter {
	if loc == nil {
		loc = time.UTC
	}
	return Converter{loc: loc}
}

// Location returns the converter's location.
func (c Converter) Location() *time.Location {
	if c.loc == nil {
		return time.UTC
	}
	return c.loc
}

// Time converts a native store timestamp to a time in the converter's location.
func (c Converter) Time(native float64) time.Time {
	sec := math.Floor(native)
	nsec := int64(math.Round((native - sec) * 1e9))
	return time.Unix(int64(sec)+CoreDataEpochOffset, nsec).In(c.Location())
}

// ToLocal converts a native store timestamp to a (YYYY-MM-DD, HH:MM) pair.
func (c Converter) ToLocal(native float64) (date, clock string) {
	t := c.Time(native)
	return t.Format(DateLayout), t.Format(ClockLayout)
}

// Native converts t to the store's timestamp representation.
func (c Converter) Native(t time.Time) float64 {
	return float64(t.Unix()-CoreDataEpochOffset) + float64(t.Nanosecond())/1e9
}

// Bounds returns the half-open native range [start, end) covering the
// calendar day of day, interpreted in the converter's location.
// DST days are 23 or 25 hours long; the bounds follow the wall clock.
func (c Converter) Bounds(day time.Time) (start, end float64) {
	y, m, d := day.Date()
	from := time.Date(y, m, d, 0, 0, 0, 0, c.Location())
	to := time.Date(y, m, d+1, 0, 0, 0, 0, c.Location())
	return c.Native(from), c.Native(to)
}

// ParseDate parses a YYYY-MM-DD string as midnight in the converter's location.
func (c Converter) ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, s, c.Location())
	if err != nil {
		return time.Time{}, errors.NewInvalidRequest(fmt.Sprintf("invalid date %q: want YYYY-MM-DD", s))
	}
	return t, nil
}

// Yesterday returns midnight of the day before now, in the converter's location.
func (c Converter) Yesterday(now time.Time) time.Time {
	y, m, d := now.In(c.Location()).Date()
	return time.Date(y, m, d-1, 0, 0, 0, 0, c.Location())
}
