package lywsd03

import (
	"encoding/binary"
	"fmt"
	"time"
)

// Time returns the onboard clock of the device. The first call reads it
// from the device; later calls return the cached value until RefreshTime
// or SetTime is used. The cache trades strict freshness for fewer round
// trips and assumes the device clock does not drift within a session.
func (c *Client) Time() (time.Time, error) {
	if c.timeRead {
		return c.deviceTime, nil
	}
	return c.RefreshTime()
}

// RefreshTime reads the onboard clock from the device and updates the
// cached device time and timezone offset.
func (c *Client) RefreshTime() (time.Time, error) {
	b, err := c.bridge.Read(uuidClock)
	if err != nil {
		return time.Time{}, err
	}

	t, offset, err := parseClock(b)
	if err != nil {
		return time.Time{}, err
	}

	c.deviceTime = t
	c.timeRead = true
	c.SetTzOffset(offset)

	return t, nil
}

// SetTime writes t and the current timezone offset to the onboard clock
// and updates the cache to the written value.
func (c *Client) SetTime(t time.Time) error {
	if err := c.bridge.Write(uuidClock, packClock(t, c.TzOffset())); err != nil {
		return err
	}

	c.deviceTime = t
	c.timeRead = true
	return nil
}

// TzOffset returns the timezone offset in whole hours. If it was never
// read from the device or set explicitly, the host's local offset is used,
// so reconstructed history timestamps come out in local time by default.
func (c *Client) TzOffset() int {
	if c.tzSet {
		return c.tzOffset
	}

	_, offset := time.Now().Zone()
	return offset / 3600
}

// SetTzOffset sets the timezone offset in whole hours.
func (c *Client) SetTzOffset(hours int) {
	c.tzOffset = hours
	c.tzSet = true
}

// parseClock decodes a clock payload: 4 little endian bytes epoch seconds,
// optionally followed by one signed byte timezone offset in hours.
func parseClock(b []byte) (time.Time, int, error) {
	switch len(b) {
	case 5:
		ts := binary.LittleEndian.Uint32(b[0:4])
		return time.Unix(int64(ts), 0), int(int8(b[4])), nil
	case 4:
		ts := binary.LittleEndian.Uint32(b[0:4])
		return time.Unix(int64(ts), 0), 0, nil
	}
	return time.Time{}, 0, fmt.Errorf("%w: clock payload of %d bytes", ErrFrameSize, len(b))
}

// packClock encodes a clock payload, the 5 byte variant of parseClock.
func packClock(t time.Time, tzOffset int) []byte {
	b := make([]byte, 5)
	binary.LittleEndian.PutUint32(b[0:4], uint32(t.Unix()))
	b[4] = byte(int8(tzOffset))
	return b
}
