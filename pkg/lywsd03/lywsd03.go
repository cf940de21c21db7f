// Package lywsd03 is the client of the Xiaomi LYWSD03MMC temperature and
// humidity sensor. It reads live measurements, the device configuration
// (display unit, onboard clock) and the hourly min/max history records the
// device stores, all over the GATT attributes of an established BLE
// connection (see pkg/gatt).
package lywsd03

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"mijiadl/pkg/gatt"

	"github.com/womat/debug"
)

// characteristic UUIDs of the LYWSD03MMC
const (
	uuidUnits       = "ebe0ccbe-7a0a-4b0c-8a1a-6ff2997da3a6" // 1 byte: 0x00 °C, 0x01 °F    READ WRITE
	uuidHistory     = "ebe0ccbc-7a0a-4b0c-8a1a-6ff2997da3a6" // history records             READ NOTIFY
	uuidClock       = "ebe0ccb7-7a0a-4b0c-8a1a-6ff2997da3a6" // 5 or 4 bytes                READ WRITE
	uuidData        = "ebe0ccc1-7a0a-4b0c-8a1a-6ff2997da3a6" // 5 bytes                     READ NOTIFY
	uuidBattery     = "ebe0ccc4-7a0a-4b0c-8a1a-6ff2997da3a6" // 1 byte                      READ
	uuidRecordCount = "ebe0ccb9-7a0a-4b0c-8a1a-6ff2997da3a6" // 8 bytes                     READ
	uuidRecordIdx   = "ebe0ccba-7a0a-4b0c-8a1a-6ff2997da3a6" // 4 bytes                     READ WRITE
)

var (
	ErrDeviceNotFound = errors.New("device not found")
	ErrFrameSize      = errors.New("invalid frame size")
	ErrInvalidUnits   = errors.New("units value must be C or F")
	ErrHarvestTimeout = errors.New("history stream did not complete in time")
)

// SensorData is a live reading of the sensor.
type SensorData struct {
	Time        time.Time
	Temperature float64 // °C
	Humidity    int     // percent
	Battery     int     // percent, estimated from the cell voltage
}

// Client is the sensor client. All operations block until the device has
// answered; a Client is meant to be used from one goroutine at a time.
type Client struct {
	bridge gatt.Bridge

	// Retries is the number of connection attempts before Connect
	// gives up with ErrDeviceNotFound.
	Retries int
	// ConnectTimeout bounds a single connection attempt.
	ConnectTimeout time.Duration
	// HarvestTimeout bounds a whole history harvest.
	HarvestTimeout time.Duration
	// PollInterval is the interval the harvester checks the stream
	// position at.
	PollInterval time.Duration

	connected bool

	// cached device state, see Time and StoredEntries
	deviceTime    time.Time
	timeRead      bool
	tzOffset      int
	tzSet         bool
	totalRecords  uint32
	unsyncedCount uint32
	entriesRead   bool
}

// New generates a new client on the given transport.
func New(bridge gatt.Bridge) *Client {
	return &Client{
		bridge:         bridge,
		Retries:        5,
		ConnectTimeout: 20 * time.Second,
		HarvestTimeout: 2 * time.Minute,
		PollInterval:   time.Second,
	}
}

// Connect establishes the connection to the sensor. Each attempt dials a
// fresh transport connection; attempt failures are counted, and after
// Retries failed attempts Connect returns ErrDeviceNotFound.
func (c *Client) Connect() error {
	for attempt := 1; attempt <= c.Retries; attempt++ {
		if c.connected && c.bridge.Connected() {
			return nil
		}

		debug.InfoLog.Printf("connecting to sensor, attempt %d", attempt)

		ctx, cancel := context.WithTimeout(context.Background(), c.ConnectTimeout)
		err := c.bridge.Connect(ctx)
		cancel()

		if err == nil {
			debug.InfoLog.Print("connected to sensor")
			c.connected = true
			return nil
		}

		debug.DebugLog.Printf("attempt %d failed: %v", attempt, err)
	}

	return ErrDeviceNotFound
}

// Disconnect tears the connection down. It always clears the connected
// flag, even if the transport teardown fails, and may be called repeatedly.
func (c *Client) Disconnect() error {
	c.connected = false
	return c.bridge.Disconnect()
}

// Connected reports whether the client considers itself connected.
func (c *Client) Connected() bool {
	return c.connected && c.bridge.Connected()
}

// Data reads and decodes a live reading.
func (c *Client) Data() (SensorData, error) {
	b, err := c.bridge.Read(uuidData)
	if err != nil {
		return SensorData{}, err
	}
	return parseSensorData(b)
}

// Temperature reads a live reading and returns its temperature in °C.
func (c *Client) Temperature() (float64, error) {
	d, err := c.Data()
	return d.Temperature, err
}

// Humidity reads a live reading and returns its humidity in percent.
func (c *Client) Humidity() (int, error) {
	d, err := c.Data()
	return d.Humidity, err
}

// Battery reads the battery level characteristic in percent.
func (c *Client) Battery() (int, error) {
	b, err := c.bridge.Read(uuidBattery)
	if err != nil {
		return 0, err
	}
	if len(b) < 1 {
		return 0, fmt.Errorf("%w: battery payload of %d bytes", ErrFrameSize, len(b))
	}
	return int(b[0]), nil
}

// Units reads the display unit of the sensor, "°C" or "°F".
func (c *Client) Units() (string, error) {
	b, err := c.bridge.Read(uuidUnits)
	if err != nil {
		return "", err
	}
	if len(b) < 1 {
		return "", fmt.Errorf("%w: units payload of %d bytes", ErrFrameSize, len(b))
	}

	switch b[0] {
	case 0x00:
		return "°C", nil
	case 0x01:
		return "°F", nil
	}
	return "", fmt.Errorf("unexpected units value 0x%02x", b[0])
}

// SetUnits sets the display unit of the sensor, "C" or "F".
// An invalid value is rejected before anything is written.
func (c *Client) SetUnits(units string) error {
	var b byte

	switch strings.ToUpper(units) {
	case "C":
		b = 0x00
	case "F":
		b = 0x01
	default:
		return ErrInvalidUnits
	}

	return c.bridge.Write(uuidUnits, []byte{b})
}

// parseSensorData decodes a live reading: int16 temperature in 1/100 °C,
// uint8 humidity in percent, int16 cell voltage in mV, little endian.
func parseSensorData(b []byte) (SensorData, error) {
	if len(b) < 5 {
		return SensorData{}, fmt.Errorf("%w: sensor payload of %d bytes", ErrFrameSize, len(b))
	}

	temperature := float64(int16(binary.LittleEndian.Uint16(b[0:2]))) / 100
	humidity := int(b[2])
	voltage := float64(int16(binary.LittleEndian.Uint16(b[3:5]))) / 1000

	return SensorData{
		Time:        time.Now(),
		Temperature: temperature,
		Humidity:    humidity,
		Battery:     batteryEstimate(voltage),
	}, nil
}

// batteryEstimate approximates the remaining battery percentage linearly
// between 2.1 V (0 %) and 3.1 V (100 %).
func batteryEstimate(voltage float64) int {
	p := int(math.Round((voltage - 2.1) * 100))
	if p > 100 {
		return 100
	}
	if p < 0 {
		return 0
	}
	return p
}
