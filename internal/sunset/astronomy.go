package sunset

import (
	"context"
	"fmt"
	"time"

	"github.com/nathan-osman/go-sunrise"
)

// AstronomyProvider computes sun times locally and never touches the
// network.
type AstronomyProvider struct{}

func NewAstronomyProvider() *AstronomyProvider {
	return &AstronomyProvider{}
}

func (p *AstronomyProvider) Name() string {
	return "astronomy"
}

func (p *AstronomyProvider) SunTimes(ctx context.Context, lat, lon float64, date time.Time) (*Times, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rise, set := sunrise.SunriseSunset(lat, lon, date.Year(), date.Month(), date.Day())
	if rise.IsZero() || set.IsZero() {
		return nil, fmt.Errorf("astronomy: no sunset at %.4f,%.4f on %s (polar day or night)", lat, lon, dateKey(date))
	}

	return &Times{
		Provider:  p.Name(),
		Latitude:  lat,
		Longitude: lon,
		Date:      dateKey(date),
		Sunrise:   rise,
		Sunset:    set,
		SolarNoon: rise.Add(set.Sub(rise) / 2),
		DayLength: set.Sub(rise),
	}, nil
}
