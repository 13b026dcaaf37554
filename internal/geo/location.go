// Package geo resolves where the clock is: coordinates reported by a device
// and a cosmetic place label from an IP lookup. The two are independent; a
// failed label lookup never blocks the coordinates.
package geo

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrLocationDenied      = errors.New("location access denied")
	ErrLocationUnavailable = errors.New("location unavailable")
	ErrLookupFailed        = errors.New("location lookup failed")
)

// UnknownLocation is the label shown when the IP lookup fails.
const UnknownLocation = "Unknown Location"

type Coordinates struct {
	Latitude  float64 `json:"latitude" mapstructure:"latitude"`
	Longitude float64 `json:"longitude" mapstructure:"longitude"`
}

func (c Coordinates) Validate() error {
	if c.Latitude < -90 || c.Latitude > 90 {
		return fmt.Errorf("latitude %.6f out of range [-90, 90]", c.Latitude)
	}
	if c.Longitude < -180 || c.Longitude > 180 {
		return fmt.Errorf("longitude %.6f out of range [-180, 180]", c.Longitude)
	}
	return nil
}

// IsZero reports whether no coordinates were configured.
func (c Coordinates) IsZero() bool {
	return c.Latitude == 0 && c.Longitude == 0
}

func (c Coordinates) String() string {
	return fmt.Sprintf("%.4f,%.4f", c.Latitude, c.Longitude)
}

// ParseErrorCode maps a device geolocation error code to ErrLocationDenied or
// ErrLocationUnavailable. Codes follow the browser PositionError values.
func ParseErrorCode(code string) error {
	switch strings.ToLower(strings.TrimSpace(code)) {
	case "denied", "permission_denied", "1":
		return ErrLocationDenied
	default:
		return ErrLocationUnavailable
	}
}
