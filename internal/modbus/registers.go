package modbus

import (
	"fmt"
	"time"

	"solar-clock/internal/solar"
	"solar-clock/internal/widget"
)

// Input registers (function 04). U32 values are little-endian: low word
// first, high word second.
const (
	RegReady          = 0  // U16, 1 once a sunset is resolved
	RegElapsedHours   = 1  // U16
	RegElapsedMinutes = 2  // U16
	RegElapsedSeconds = 3  // U16
	RegElapsedTotal   = 4  // 4-5, U32, seconds since last sunset
	RegUntilHours     = 6  // U16
	RegUntilMinutes   = 7  // U16
	RegUntilSeconds   = 8  // U16
	RegUntilTotal     = 9  // 9-10, U32, seconds to next sunset
	RegSunsetUnix     = 11 // 11-12, U32, reference sunset
	RegAppearance     = 13 // U16, see Theme codes

	InputRegisterCount = 14
)

// Holding registers (functions 03/06/16).
const (
	RegTheme     = 0 // U16, Theme code
	RegClockMode = 1 // U16, ClockMode code

	HoldingRegisterCount = 2
)

// Discrete inputs (function 02).
const (
	InputReady = 0
	InputNight = 1

	DiscreteInputCount = 2
)

// Theme codes
const (
	ThemeNight = 0
	ThemeDay   = 1
	ThemeAuto  = 2
)

// Clock mode codes
const (
	ModeSolar = 0
	ModeReal  = 1
)

func ThemeCode(t widget.Theme) uint16 {
	switch t {
	case widget.ThemeDay:
		return ThemeDay
	case widget.ThemeAuto:
		return ThemeAuto
	default:
		return ThemeNight
	}
}

func ThemeFromCode(code uint16) (widget.Theme, error) {
	switch code {
	case ThemeNight:
		return widget.ThemeNight, nil
	case ThemeDay:
		return widget.ThemeDay, nil
	case ThemeAuto:
		return widget.ThemeAuto, nil
	default:
		return "", fmt.Errorf("unknown theme code %d", code)
	}
}

func ModeCode(m widget.ClockMode) uint16 {
	if m == widget.ClockReal {
		return ModeReal
	}
	return ModeSolar
}

func ModeFromCode(code uint16) (widget.ClockMode, error) {
	switch code {
	case ModeSolar:
		return widget.ClockSolar, nil
	case ModeReal:
		return widget.ClockReal, nil
	default:
		return "", fmt.Errorf("unknown clock mode code %d", code)
	}
}

func putUint32(regs []uint16, addr int, v uint32) {
	regs[addr] = uint16(v)
	regs[addr+1] = uint16(v >> 16)
}

func getUint32(regs []uint16, addr int) uint32 {
	return uint32(regs[addr]) | uint32(regs[addr+1])<<16
}

func boolReg(b bool) uint16 {
	if b {
		return 1
	}
	return 0
}

// EncodeFrame lays f out as the input register block.
func EncodeFrame(f widget.Frame) []uint16 {
	regs := make([]uint16, InputRegisterCount)
	regs[RegReady] = boolReg(f.Ready)
	regs[RegAppearance] = ThemeCode(f.Appearance)
	if !f.Ready {
		return regs
	}

	elapsed := solar.Decompose(time.Duration(f.ElapsedSeconds) * time.Second)
	regs[RegElapsedHours] = uint16(elapsed.Hours)
	regs[RegElapsedMinutes] = uint16(elapsed.Minutes)
	regs[RegElapsedSeconds] = uint16(elapsed.Seconds)
	putUint32(regs, RegElapsedTotal, uint32(f.ElapsedSeconds))

	until := time.Duration(f.UntilSeconds) * time.Second
	regs[RegUntilHours] = uint16(until / time.Hour)
	regs[RegUntilMinutes] = uint16(until % time.Hour / time.Minute)
	regs[RegUntilSeconds] = uint16(until % time.Minute / time.Second)
	putUint32(regs, RegUntilTotal, uint32(f.UntilSeconds))

	if f.Sunset != nil {
		putUint32(regs, RegSunsetUnix, uint32(f.Sunset.Unix()))
	}
	return regs
}

// Snapshot is the decoded register map as a probe sees it.
type Snapshot struct {
	Ready      bool             `json:"ready"`
	Elapsed    time.Duration    `json:"elapsed"`
	Until      time.Duration    `json:"until"`
	Sunset     time.Time        `json:"sunset"`
	Appearance widget.Theme     `json:"appearance"`
	Theme      widget.Theme     `json:"theme"`
	ClockMode  widget.ClockMode `json:"clock_mode"`
}

// DecodeSnapshot reads an input register block and a holding register block
// back into a Snapshot.
func DecodeSnapshot(input, holding []uint16) (*Snapshot, error) {
	if len(input) < InputRegisterCount {
		return nil, fmt.Errorf("short input register block: %d < %d", len(input), InputRegisterCount)
	}
	if len(holding) < HoldingRegisterCount {
		return nil, fmt.Errorf("short holding register block: %d < %d", len(holding), HoldingRegisterCount)
	}

	s := &Snapshot{
		Ready:   input[RegReady] == 1,
		Elapsed: time.Duration(getUint32(input, RegElapsedTotal)) * time.Second,
		Until:   time.Duration(getUint32(input, RegUntilTotal)) * time.Second,
	}
	if unix := getUint32(input, RegSunsetUnix); unix != 0 {
		s.Sunset = time.Unix(int64(unix), 0)
	}

	var err error
	if s.Appearance, err = ThemeFromCode(input[RegAppearance]); err != nil {
		return nil, err
	}
	if s.Theme, err = ThemeFromCode(holding[RegTheme]); err != nil {
		return nil, err
	}
	if s.ClockMode, err = ModeFromCode(holding[RegClockMode]); err != nil {
		return nil, err
	}
	return s, nil
}
