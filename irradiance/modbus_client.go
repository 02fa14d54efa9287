package irradiance

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/goburrow/modbus"
)

// Modbus client configuration
const (
	DefaultSlaveAddress = 1
	MinSlaveAddress     = 1
	MaxSlaveAddress     = 246
)

// Sensor input register map (big endian)
const (
	regIrradiance = 0 // u32, mW/m2
	regPanelTemp  = 2 // s16, 0.1 degC
	regStatus     = 3 // u16, 0: ok, 1: degraded, 2: fault
	regUptime     = 4 // u32, seconds
)

// SensorClient represents a Modbus client for a pyranometer-style
// irradiance sensor.
type SensorClient struct {
	client     modbus.Client
	handler    *modbus.RTUClientHandler
	tcpHandler *modbus.TCPClientHandler
}

// NewRTUClient connects to a sensor over a serial line
func NewRTUClient(device string, baudRate int, slaveID byte) (*SensorClient, error) {
	handler := modbus.NewRTUClientHandler(device)
	handler.BaudRate = baudRate
	handler.DataBits = 8
	handler.Parity = "N"
	handler.StopBits = 1
	handler.SlaveId = slaveID
	handler.Timeout = 1 * time.Second

	err := handler.Connect()
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %v", err)
	}

	return &SensorClient{
		client:  modbus.NewClient(handler),
		handler: handler,
	}, nil
}

// NewTCPClient connects to a sensor over Modbus TCP
func NewTCPClient(address string, slaveID byte) (*SensorClient, error) {
	handler := modbus.NewTCPClientHandler(address)
	handler.SlaveId = slaveID
	handler.Timeout = 1 * time.Second

	err := handler.Connect()
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %v", err)
	}

	return &SensorClient{
		client:     modbus.NewClient(handler),
		tcpHandler: handler,
	}, nil
}

// Close closes the Modbus connection
func (c *SensorClient) Close() error {
	if c.handler != nil {
		return c.handler.Close()
	}
	if c.tcpHandler != nil {
		return c.tcpHandler.Close()
	}
	return nil
}

// SetSlaveID changes the slave ID for subsequent operations
func (c *SensorClient) SetSlaveID(slaveID byte) {
	if c.handler != nil {
		c.handler.SlaveId = slaveID
	}
	if c.tcpHandler != nil {
		c.tcpHandler.SlaveId = slaveID
	}
}

// Helper functions for data conversion
func bytesToU16(data []byte) uint16 {
	return binary.BigEndian.Uint16(data)
}

func bytesToS16(data []byte) int16 {
	return int16(binary.BigEndian.Uint16(data))
}

func bytesToU32(data []byte) uint32 {
	return binary.BigEndian.Uint32(data)
}

// Reading is one snapshot of the sensor registers
type Reading struct {
	Irradiance   float64   // W/m2
	PanelTemp    float64   // degC
	Status       uint16    // 0: ok, 1: degraded, 2: fault
	SensorUptime uint32    // seconds
	Timestamp    time.Time // local read time
}

// Read fetches the full register block from the sensor
func (c *SensorClient) Read() (*Reading, error) {
	data, err := c.client.ReadInputRegisters(regIrradiance, 6)
	if err != nil {
		return nil, fmt.Errorf("failed to read sensor registers: %v", err)
	}

	return &Reading{
		Irradiance:   float64(bytesToU32(data[0:4])) / 1000.0,
		PanelTemp:    float64(bytesToS16(data[4:6])) / 10.0,
		Status:       bytesToU16(data[6:8]),
		SensorUptime: bytesToU32(data[8:12]),
		Timestamp:    time.Now(),
	}, nil
}

// ReadIrradiance fetches only the irradiance value in W/m2
func (c *SensorClient) ReadIrradiance() (float64, error) {
	data, err := c.client.ReadInputRegisters(regIrradiance, 2)
	if err != nil {
		return 0, fmt.Errorf("failed to read irradiance: %v", err)
	}
	return float64(bytesToU32(data[0:4])) / 1000.0, nil
}

// Daylight reports whether the reading indicates daylight at the given
// irradiance threshold in W/m2.
func (r *Reading) Daylight(threshold float64) bool {
	return r.Irradiance >= threshold
}

func statusString(status uint16) string {
	switch status {
	case 0:
		return "OK"
	case 1:
		return "Degraded"
	case 2:
		return "Fault"
	default:
		return fmt.Sprintf("Unknown (%d)", status)
	}
}
