package lywsd03

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/womat/debug"
)

// layout of a history notification: uint32 record index, uint32 reserved,
// int16 max temperature in 1/10 °C, uint8 max humidity, int16 min
// temperature in 1/10 °C, uint8 min humidity, little endian
const historyFrameSize = 14

// StoredEntries returns the total and the not yet synced record count of
// the device. The counts are read once and cached for the session.
func (c *Client) StoredEntries() (total, unsynced uint32, err error) {
	if c.entriesRead {
		return c.totalRecords, c.unsyncedCount, nil
	}

	b, err := c.bridge.Read(uuidRecordCount)
	if err != nil {
		return 0, 0, err
	}
	if len(b) < 8 {
		return 0, 0, fmt.Errorf("%w: record count payload of %d bytes", ErrFrameSize, len(b))
	}

	c.totalRecords = binary.LittleEndian.Uint32(b[0:4])
	c.unsyncedCount = binary.LittleEndian.Uint32(b[4:8])
	c.entriesRead = true

	return c.totalRecords, c.unsyncedCount, nil
}

// HistoryIndex reads the record index cursor of the device.
func (c *Client) HistoryIndex() (uint32, error) {
	b, err := c.bridge.Read(uuidRecordIdx)
	if err != nil {
		return 0, err
	}
	if len(b) == 0 {
		return 0, nil
	}
	if len(b) < 4 {
		return 0, fmt.Errorf("%w: record index payload of %d bytes", ErrFrameSize, len(b))
	}
	return binary.LittleEndian.Uint32(b[0:4]), nil
}

// SetHistoryIndex writes the record index cursor, telling the device
// which stored record to begin streaming from.
func (c *Client) SetHistoryIndex(idx uint32) error {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, idx)
	return c.bridge.Write(uuidRecordIdx, b)
}

// History harvests the stored min/max records of the requested range.
//
// The record index cursor is set to the range size back from the latest
// stored record (clamped to the first record), the history stream is
// subscribed, and every notification is decoded and inserted into the
// returned History. The stream is done once a record timestamped at least
// one hour before the device time has been inserted; records above that
// threshold received earlier stay in the result. If the device reports no
// unsynced records, an empty History is returned without subscribing.
//
// A harvest that does not reach the threshold within HarvestTimeout is
// aborted with ErrHarvestTimeout; accumulated records are discarded, as
// they are after a decode or subscription error.
func (c *Client) History(timeRange TimeRange) (*History, error) {
	total, unsynced, err := c.StoredEntries()
	if err != nil {
		return nil, err
	}

	if unsynced == 0 {
		debug.DebugLog.Print("no unsynced records, history is empty")
		return NewHistory(), nil
	}

	start := int64(total) - int64(timeRange.Hours())
	if start < 0 {
		start = 0
	}
	if err := c.SetHistoryIndex(uint32(start)); err != nil {
		return nil, err
	}

	deviceTime, err := c.Time()
	if err != nil {
		return nil, err
	}

	// the subscription handle carries the target History and everything
	// the notification callback needs, nothing lives on the Client
	hv := &harvest{
		history:    NewHistory(),
		total:      total,
		deviceTime: deviceTime,
	}

	if err := c.bridge.Subscribe(uuidHistory, hv.handle); err != nil {
		return nil, fmt.Errorf("starting history stream: %w", err)
	}

	debug.DebugLog.Printf("harvesting history from index %d of %d records", start, total)

	threshold := deviceTime.Add(-time.Hour)
	timeout := time.NewTimer(c.HarvestTimeout)
	defer timeout.Stop()
	tick := time.NewTicker(c.PollInterval)
	defer tick.Stop()

	for {
		select {
		case <-tick.C:
			latest, err := hv.state()
			if err != nil {
				_ = c.bridge.Unsubscribe(uuidHistory)
				return nil, err
			}
			if !latest.IsZero() && !latest.After(threshold) {
				if err := c.bridge.Unsubscribe(uuidHistory); err != nil {
					debug.ErrorLog.Printf("stopping history stream: %v", err)
				}
				debug.DebugLog.Printf("history complete, %d records", hv.history.Len())
				return hv.history, nil
			}
		case <-timeout.C:
			_ = c.bridge.Unsubscribe(uuidHistory)
			return nil, ErrHarvestTimeout
		}
	}
}

// harvest is the state of one history stream: the History being filled,
// the reconstruction inputs and the timestamp of the most recently
// decoded record. handle runs on the transport's receive goroutine.
type harvest struct {
	history    *History
	total      uint32
	deviceTime time.Time

	mu     sync.Mutex
	latest time.Time
	err    error
}

// handle decodes one history notification and inserts the record.
func (h *harvest) handle(b []byte) {
	rec, idx, err := parseHistoryRecord(b)

	h.mu.Lock()
	defer h.mu.Unlock()

	if err != nil {
		if h.err == nil {
			h.err = err
		}
		return
	}

	rec.Time = recordTime(h.deviceTime, h.total, idx)
	h.history.Add(rec)
	h.latest = rec.Time
}

// state returns the latest decoded timestamp and the first decode error.
func (h *harvest) state() (time.Time, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.latest, h.err
}

// parseHistoryRecord decodes one history notification.
func parseHistoryRecord(b []byte) (HistoryRecord, uint32, error) {
	if len(b) < historyFrameSize {
		return HistoryRecord{}, 0, fmt.Errorf("%w: history payload of %d bytes", ErrFrameSize, len(b))
	}

	idx := binary.LittleEndian.Uint32(b[0:4])
	// b[4:8] is reserved

	rec := HistoryRecord{
		TempMax: float64(int16(binary.LittleEndian.Uint16(b[8:10]))) / 10,
		HumMax:  int(b[10]),
		TempMin: float64(int16(binary.LittleEndian.Uint16(b[11:13]))) / 10,
		HumMin:  int(b[13]),
	}
	return rec, idx, nil
}

// recordTime reconstructs the absolute timestamp of record idx. The device
// captures one record per hour; record idx was captured total-idx hours
// before the device time, so its timestamp is the device time floored to
// the hour minus that many hours. Assumes a monotonic device clock and no
// lost records.
func recordTime(deviceTime time.Time, total, idx uint32) time.Time {
	hour := time.Date(deviceTime.Year(), deviceTime.Month(), deviceTime.Day(), deviceTime.Hour(),
		0, 0, 0, deviceTime.Location())
	return hour.Add(-time.Duration(int64(total)-int64(idx)) * time.Hour)
}
