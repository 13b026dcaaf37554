package sunset

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"
)

// Store persists resolved sun times keyed by provider, date and rounded
// coordinates.
type Store interface {
	LookupSunTimes(provider, date string, lat, lon float64) (*Times, bool, error)
	SaveSunTimes(times *Times) error
}

type cached struct {
	next  Provider
	store Store
	log   *zap.SugaredLogger
}

// Cached answers from store when a matching entry exists and records every
// fresh result from next. Store failures never fail a lookup.
func Cached(next Provider, store Store, log *zap.SugaredLogger) Provider {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &cached{next: next, store: store, log: log}
}

func (c *cached) Name() string {
	return c.next.Name()
}

func (c *cached) SunTimes(ctx context.Context, lat, lon float64, date time.Time) (*Times, error) {
	lat, lon = RoundCoordinate(lat), RoundCoordinate(lon)
	day := dateKey(date)

	if times, ok, err := c.store.LookupSunTimes(c.Name(), day, lat, lon); err != nil {
		c.log.Warnf("Sun times cache lookup failed: %v", err)
	} else if ok {
		return times, nil
	}

	times, err := c.next.SunTimes(ctx, lat, lon, date)
	if err != nil {
		return nil, err
	}
	if err := c.store.SaveSunTimes(times); err != nil {
		c.log.Warnf("Sun times cache save failed: %v", err)
	}
	return times, nil
}

// RoundCoordinate rounds to four decimal places (about 11 m).
func RoundCoordinate(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
