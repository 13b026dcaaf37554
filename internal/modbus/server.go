package modbus

import (
	"fmt"
	"sync"
	"time"

	"solar-clock/internal/widget"

	"github.com/simonvetter/modbus"
	"go.uber.org/zap"
)

// Controller applies writes to the holding registers.
type Controller interface {
	SetTheme(widget.Theme) error
	SetClockMode(widget.ClockMode) error
}

type ServerConfig struct {
	URL        string
	UnitID     uint8
	Timeout    time.Duration
	MaxClients uint
	Controller Controller
	Logger     *zap.SugaredLogger
}

// Server exposes the latest frame as a Modbus TCP register map. It is a
// frame publisher: every PublishFrame refreshes the registers.
type Server struct {
	cfg    ServerConfig
	log    *zap.SugaredLogger
	server *modbus.ModbusServer

	mu       sync.RWMutex
	input    []uint16
	holding  []uint16
	discrete []bool
}

func NewServer(cfg ServerConfig) *Server {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxClients == 0 {
		cfg.MaxClients = 5
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	return &Server{
		cfg:      cfg,
		log:      cfg.Logger,
		input:    make([]uint16, InputRegisterCount),
		holding:  make([]uint16, HoldingRegisterCount),
		discrete: make([]bool, DiscreteInputCount),
	}
}

func (s *Server) Start() error {
	server, err := modbus.NewServer(&modbus.ServerConfiguration{
		URL:        s.cfg.URL,
		Timeout:    s.cfg.Timeout,
		MaxClients: s.cfg.MaxClients,
	}, s)
	if err != nil {
		return fmt.Errorf("failed to create modbus server: %w", err)
	}
	if err := server.Start(); err != nil {
		return fmt.Errorf("failed to start modbus server on %s: %w", s.cfg.URL, err)
	}
	s.server = server
	s.log.Infof("Modbus server listening on %s (unit %d)", s.cfg.URL, s.cfg.UnitID)
	return nil
}

func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}
	if err := s.server.Stop(); err != nil {
		return fmt.Errorf("failed to stop modbus server: %w", err)
	}
	s.server = nil
	return nil
}

func (s *Server) Name() string { return "modbus" }

func (s *Server) PublishFrame(f widget.Frame) error {
	input := EncodeFrame(f)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.input = input
	s.holding[RegTheme] = ThemeCode(f.Theme)
	s.holding[RegClockMode] = ModeCode(f.ClockMode)
	s.discrete[InputReady] = f.Ready
	s.discrete[InputNight] = f.IsNight()
	return nil
}

// checkUnit accepts the configured unit id and 0, the broadcast/any id
// most TCP masters send.
func (s *Server) checkUnit(unitID uint8) error {
	if unitID != 0 && unitID != s.cfg.UnitID {
		return modbus.ErrIllegalFunction
	}
	return nil
}

func inRange(addr, quantity uint16, size int) bool {
	return quantity > 0 && int(addr)+int(quantity) <= size
}

func (s *Server) HandleCoils(req *modbus.CoilsRequest) ([]bool, error) {
	return nil, modbus.ErrIllegalFunction
}

func (s *Server) HandleDiscreteInputs(req *modbus.DiscreteInputsRequest) ([]bool, error) {
	if err := s.checkUnit(req.UnitId); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !inRange(req.Addr, req.Quantity, len(s.discrete)) {
		return nil, modbus.ErrIllegalDataAddress
	}
	res := make([]bool, req.Quantity)
	copy(res, s.discrete[req.Addr:])
	return res, nil
}

func (s *Server) HandleInputRegisters(req *modbus.InputRegistersRequest) ([]uint16, error) {
	if err := s.checkUnit(req.UnitId); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !inRange(req.Addr, req.Quantity, len(s.input)) {
		return nil, modbus.ErrIllegalDataAddress
	}
	res := make([]uint16, req.Quantity)
	copy(res, s.input[req.Addr:])
	return res, nil
}

func (s *Server) HandleHoldingRegisters(req *modbus.HoldingRegistersRequest) ([]uint16, error) {
	if err := s.checkUnit(req.UnitId); err != nil {
		return nil, err
	}
	if !inRange(req.Addr, req.Quantity, HoldingRegisterCount) {
		return nil, modbus.ErrIllegalDataAddress
	}

	if req.IsWrite {
		if err := s.applyWrites(req.Addr, req.Args); err != nil {
			return nil, err
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]uint16, req.Quantity)
	copy(res, s.holding[req.Addr:])
	return res, nil
}

// applyWrites validates every value before touching the controller so a
// bad multi-register write changes nothing.
func (s *Server) applyWrites(addr uint16, args []uint16) error {
	var (
		theme    widget.Theme
		mode     widget.ClockMode
		setTheme bool
		setMode  bool
	)
	for i, v := range args {
		var err error
		switch int(addr) + i {
		case RegTheme:
			theme, err = ThemeFromCode(v)
			setTheme = true
		case RegClockMode:
			mode, err = ModeFromCode(v)
			setMode = true
		}
		if err != nil {
			s.log.Debugf("Rejecting modbus write at %d: %v", int(addr)+i, err)
			return modbus.ErrIllegalDataValue
		}
	}

	if s.cfg.Controller == nil {
		return modbus.ErrIllegalFunction
	}
	if setTheme {
		if err := s.cfg.Controller.SetTheme(theme); err != nil {
			return modbus.ErrServerDeviceFailure
		}
	}
	if setMode {
		if err := s.cfg.Controller.SetClockMode(mode); err != nil {
			return modbus.ErrServerDeviceFailure
		}
	}

	s.mu.Lock()
	if setTheme {
		s.holding[RegTheme] = ThemeCode(theme)
	}
	if setMode {
		s.holding[RegClockMode] = ModeCode(mode)
	}
	s.mu.Unlock()
	return nil
}
