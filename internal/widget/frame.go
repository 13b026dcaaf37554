package widget

import (
	"strings"
	"time"
)

// Display strings shown before data arrives or when a lookup fails.
const (
	StatusLocating     = "Getting your location..."
	StatusFetchFailed  = "⚠️ Failed to load sunset time."
	StatusDenied       = "🚫 Location access denied."
	StatusUnavailable  = "📡 Location unavailable."
	StatusSunsetPrefix = "Sunset Time:"
	ClockLoading       = "Loading..."
	CountdownPending   = "Calculating time left..."
	CountdownPrefix    = "Sunset in: "
	LocationDetecting  = "Detecting..."
)

// Frame is everything the page renders for one tick.
type Frame struct {
	At time.Time `json:"at"`

	// Clock is the main face: the solar clock or the wall clock depending
	// on ClockMode.
	Clock      string `json:"clock"`
	SolarClock string `json:"solar_clock"`
	RealClock  string `json:"real_clock"`
	Countdown  string `json:"countdown"`
	Status     string `json:"status"`
	Location   string `json:"location"`

	Theme      Theme     `json:"theme"`
	Appearance Theme     `json:"appearance"`
	ClockMode  ClockMode `json:"clock_mode"`

	Ready          bool       `json:"ready"`
	Sunset         *time.Time `json:"sunset,omitempty"`
	ElapsedSeconds int64      `json:"elapsed_seconds"`
	UntilSeconds   int64      `json:"until_seconds"`
}

// IsNight reports whether the frame renders with the night appearance.
func (f Frame) IsNight() bool {
	return f.Appearance != ThemeDay
}

// SunsetStatus splits a "Sunset Time: ..." status into its label and value
// so the page can highlight the label. ok is false for any other status.
func (f Frame) SunsetStatus() (label, value string, ok bool) {
	if !strings.HasPrefix(f.Status, StatusSunsetPrefix) {
		return "", "", false
	}
	return StatusSunsetPrefix, strings.TrimPrefix(f.Status, StatusSunsetPrefix), true
}
