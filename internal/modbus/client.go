package modbus

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"solar-clock/internal/widget"

	"github.com/simonvetter/modbus"
)

var errNotConnected = errors.New("client not connected")

// Client reads and drives a solar clock served by Server.
type Client struct {
	mu      sync.Mutex
	conn    *modbus.ModbusClient
	url     string
	unitID  uint8
	timeout time.Duration
}

func NewClient(url string, unitID uint8, timeout time.Duration) *Client {
	return &Client{url: url, unitID: unitID, timeout: timeout}
}

func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return nil
	}

	conn, err := modbus.NewClient(&modbus.ClientConfiguration{URL: c.url, Timeout: c.timeout})
	if err != nil {
		return fmt.Errorf("failed to create modbus client: %w", err)
	}
	if err := conn.Open(); err != nil {
		return fmt.Errorf("failed to connect to %s: %w", c.url, err)
	}
	conn.SetUnitId(c.unitID)
	c.conn = conn
	return nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// ReadSnapshot reads the input and holding register blocks and decodes them.
func (c *Client) ReadSnapshot() (*Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil, errNotConnected
	}

	input, err := c.conn.ReadRegisters(0, InputRegisterCount, modbus.INPUT_REGISTER)
	if err != nil {
		return nil, fmt.Errorf("failed to read clock registers: %w", err)
	}
	holding, err := c.conn.ReadRegisters(0, HoldingRegisterCount, modbus.HOLDING_REGISTER)
	if err != nil {
		return nil, fmt.Errorf("failed to read mode registers: %w", err)
	}
	return DecodeSnapshot(input, holding)
}

func (c *Client) SetTheme(t widget.Theme) error {
	parsed, err := widget.ParseTheme(string(t))
	if err != nil {
		return err
	}
	return c.write(RegTheme, ThemeCode(parsed))
}

func (c *Client) SetClockMode(m widget.ClockMode) error {
	parsed, err := widget.ParseClockMode(string(m))
	if err != nil {
		return err
	}
	return c.write(RegClockMode, ModeCode(parsed))
}

func (c *Client) write(addr, value uint16) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return errNotConnected
	}
	if err := c.conn.WriteRegister(addr, value); err != nil {
		return fmt.Errorf("failed to write register %d: %w", addr, err)
	}
	return nil
}
