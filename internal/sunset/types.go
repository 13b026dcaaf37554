package sunset

import (
	"context"
	"errors"
	"time"
)

// ErrFetchFailed wraps every provider failure surfaced to callers.
var ErrFetchFailed = errors.New("failed to load sunset time")

type Provider interface {
	Name() string
	SunTimes(ctx context.Context, lat, lon float64, date time.Time) (*Times, error)
}

type Times struct {
	Provider  string        `json:"provider"`
	Latitude  float64       `json:"latitude"`
	Longitude float64       `json:"longitude"`
	Date      string        `json:"date"`
	Sunrise   time.Time     `json:"sunrise"`
	Sunset    time.Time     `json:"sunset"`
	SolarNoon time.Time     `json:"solar_noon,omitempty"`
	DayLength time.Duration `json:"day_length"`
}

// IsDaylight reports whether the time-of-day of at falls between sunrise and
// sunset, projected onto at's calendar day.
func (t *Times) IsDaylight(at time.Time) bool {
	if t == nil || t.Sunrise.IsZero() || t.Sunset.IsZero() {
		return false
	}
	rise := onDay(t.Sunrise, at)
	set := onDay(t.Sunset, at)
	if !set.After(rise) {
		// Sunset crosses midnight in at's zone.
		return !at.Before(rise) || at.Before(set)
	}
	return !at.Before(rise) && at.Before(set)
}

func onDay(ref, day time.Time) time.Time {
	loc := day.Location()
	r := ref.In(loc)
	return time.Date(day.Year(), day.Month(), day.Day(), r.Hour(), r.Minute(), r.Second(), 0, loc)
}

const dateLayout = "2006-01-02"

func dateKey(date time.Time) string {
	return date.Format(dateLayout)
}
