// Package solar tracks time relative to a daily-recurring sunset.
//
// A Tracker holds a single reference instant (the most recently resolved
// sunset) and, given a wall-clock sample, derives how long ago the reference
// time-of-day last occurred and how long until it occurs again. Only the
// time-of-day of the reference matters: it is projected onto the calendar day
// of every sample.
//
// A Tracker is not safe for concurrent use. Callers that share one across
// goroutines must serialize access themselves.
package solar

import (
	"errors"
	"time"
)

// Day is the length of one recurrence cycle.
const Day = 24 * time.Hour

// ErrNotReady is returned by Sample until a reference has been set. It is a
// normal pending state, not a failure.
var ErrNotReady = errors.New("solar: no reference instant yet")

// Reading is the result of sampling a Tracker at one instant.
type Reading struct {
	At        time.Time
	Reference time.Time

	// LastOccurrence is the most recent projection of the reference
	// time-of-day at or before At.
	LastOccurrence time.Time
	// NextOccurrence is the first projection strictly after At.
	NextOccurrence time.Time

	Elapsed time.Duration
	Until   time.Duration
}

type Tracker struct {
	reference time.Time
	set       bool
}

func NewTracker() *Tracker {
	return &Tracker{}
}

// SetReference replaces the reference instant. Past and future instants are
// equally valid.
func (t *Tracker) SetReference(instant time.Time) {
	t.reference = instant
	t.set = true
}

// Reference returns the current reference and whether one is set.
func (t *Tracker) Reference() (time.Time, bool) {
	return t.reference, t.set
}

func (t *Tracker) Ready() bool {
	return t.set
}

// Dispose drops the reference. Subsequent samples report ErrNotReady.
func (t *Tracker) Dispose() {
	t.reference = time.Time{}
	t.set = false
}

// Sample derives the elapsed and remaining durations for now.
//
// When now falls exactly on the reference time-of-day the occurrence counts
// as having just happened: Elapsed is zero and Until is a full Day.
func (t *Tracker) Sample(now time.Time) (Reading, error) {
	if !t.set {
		return Reading{}, ErrNotReady
	}

	todays := project(t.reference, now)

	last := todays
	if now.Before(todays) {
		last = todays.Add(-Day)
	}
	next := last.Add(Day)

	return Reading{
		At:             now,
		Reference:      t.reference,
		LastOccurrence: last,
		NextOccurrence: next,
		Elapsed:        now.Sub(last),
		Until:          next.Sub(now),
	}, nil
}

// project places ref's time-of-day, read in now's location, on now's
// calendar day.
func project(ref, now time.Time) time.Time {
	loc := now.Location()
	r := ref.In(loc)
	return time.Date(now.Year(), now.Month(), now.Day(),
		r.Hour(), r.Minute(), r.Second(), r.Nanosecond(), loc)
}
