package sunset

import (
	"fmt"
	"strings"
	"time"
)

// NewProvider builds the named provider. baseURL overrides the public
// endpoint for HTTP providers and is ignored otherwise.
func NewProvider(name, baseURL string, timeout time.Duration) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "sunrise-sunset", "sunrisesunset", "sunrise_sunset":
		return NewSunriseSunsetClient(baseURL, timeout), nil
	case "openmeteo", "open-meteo", "open_meteo":
		return NewOpenMeteoClient(baseURL, timeout), nil
	case "astronomy", "local", "offline":
		return NewAstronomyProvider(), nil
	default:
		return nil, fmt.Errorf("sunset provider not supported: %s", name)
	}
}
