package widget

import (
	"fmt"
	"strings"
)

type Theme string

const (
	ThemeDay   Theme = "day"
	ThemeNight Theme = "night"
	ThemeAuto  Theme = "auto"
)

func ParseTheme(s string) (Theme, error) {
	switch t := Theme(strings.ToLower(strings.TrimSpace(s))); t {
	case ThemeDay, ThemeNight, ThemeAuto:
		return t, nil
	default:
		return "", fmt.Errorf("unknown theme %q (want day, night or auto)", s)
	}
}

// ClockMode selects what the main clock face shows.
type ClockMode string

const (
	// ClockSolar shows the time elapsed since the last sunset.
	ClockSolar ClockMode = "solar"
	// ClockReal shows the wall clock.
	ClockReal ClockMode = "real"
)

func ParseClockMode(s string) (ClockMode, error) {
	switch m := ClockMode(strings.ToLower(strings.TrimSpace(s))); m {
	case ClockSolar, ClockReal:
		return m, nil
	default:
		return "", fmt.Errorf("unknown clock mode %q (want solar or real)", s)
	}
}
