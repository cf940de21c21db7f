package lywsd03

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// TimeRange is the size of a history request in hours back from the
// latest stored record.
type TimeRange int

const (
	Day   TimeRange = 24
	Week  TimeRange = 27 * 7
	Month TimeRange = 31 * 24
)

// Hours returns the range size in hours.
func (tr TimeRange) Hours() int {
	return int(tr)
}

func (tr TimeRange) String() string {
	switch tr {
	case Day:
		return "day"
	case Week:
		return "week"
	case Month:
		return "month"
	}
	return fmt.Sprintf("%dh", int(tr))
}

// ParseTimeRange converts "day", "week" or "month" to a TimeRange.
func ParseTimeRange(s string) (TimeRange, error) {
	switch strings.ToLower(s) {
	case "day":
		return Day, nil
	case "week":
		return Week, nil
	case "month":
		return Month, nil
	}
	return 0, fmt.Errorf("unknown time range %q", s)
}

// HistoryRecord is one hourly min/max record of the device.
// The device does not guarantee TempMin <= TempMax.
type HistoryRecord struct {
	Time    time.Time
	TempMin float64 // °C
	TempMax float64 // °C
	HumMin  int     // percent
	HumMax  int     // percent
}

// History is an insertion ordered collection of records, one per
// timestamp. Adding a record with a timestamp already present overwrites
// the earlier record in place; repeated notifications of the same record
// are a known device quirk, not an error.
type History struct {
	mu      sync.RWMutex
	keys    []time.Time
	records map[time.Time]HistoryRecord
}

// NewHistory generates an empty History.
func NewHistory() *History {
	return &History{records: map[time.Time]HistoryRecord{}}
}

// Add inserts rec keyed by its timestamp, overwriting an existing record
// with the same timestamp.
func (h *History) Add(rec HistoryRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.records[rec.Time]; !ok {
		h.keys = append(h.keys, rec.Time)
	}
	h.records[rec.Time] = rec
}

// Len returns the number of records.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.keys)
}

// Keys returns the record timestamps in insertion order.
func (h *History) Keys() []time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()

	keys := make([]time.Time, len(h.keys))
	copy(keys, h.keys)
	return keys
}

// Records returns the records in insertion order.
func (h *History) Records() []HistoryRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()

	records := make([]HistoryRecord, 0, len(h.keys))
	for _, k := range h.keys {
		records = append(records, h.records[k])
	}
	return records
}

// At returns the record with the given timestamp.
func (h *History) At(t time.Time) (HistoryRecord, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	rec, ok := h.records[t]
	return rec, ok
}

// String renders the records for humans, one block per record with time,
// min, max, delta and humidity range.
func (h *History) String() string {
	records := h.Records()
	if len(records) == 0 {
		return "No History data.\n"
	}

	var sb strings.Builder
	for _, rec := range records {
		hum := fmt.Sprintf("%d", rec.HumMin)
		if rec.HumMin != rec.HumMax {
			hum = fmt.Sprintf("%d-%d", rec.HumMin, rec.HumMax)
		}

		fmt.Fprintf(&sb, "%s:\n", rec.Time.Format("02/01/2006, 15:04:05"))
		fmt.Fprintf(&sb, "\tmin:\t%v°C\n", rec.TempMin)
		fmt.Fprintf(&sb, "\tmax:\t%v°C\n", rec.TempMax)
		fmt.Fprintf(&sb, "\t\u0394:\t%.1f°C\n", rec.TempMax-rec.TempMin)
		fmt.Fprintf(&sb, "\thum:\t%s%%\n", hum)
	}
	return sb.String()
}
