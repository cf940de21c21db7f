package lywsd03

import (
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// harvestFixture wires a fake with a device reporting total/unsynced
// records and a clock reading of half past the hour, so the newest
// record's timestamp still lies above the termination threshold.
func harvestFixture(total, unsynced uint32) (*fakeBridge, *Client, time.Time) {
	f := newFakeBridge()
	deviceTime := time.Date(2026, 8, 26, 10, 30, 0, 0, time.Local)
	f.reads[uuidClock] = packClock(deviceTime, 2)
	f.reads[uuidRecordCount] = recordCountPayload(total, unsynced)
	return f, newTestClient(f), deviceTime
}

func TestHistory_StartIndexPerTimeRange(t *testing.T) {
	tests := []struct {
		timeRange TimeRange
		total     uint32
		start     uint32
	}{
		{Day, 200, 176},
		{Week, 200, 11},
		{Month, 200, 0}, // clamped, 744 > 200
		{Day, 10, 0},    // clamped, 24 > 10
	}

	for _, tt := range tests {
		f, c, _ := harvestFixture(tt.total, 50)
		f.feed = [][]byte{historyFrame(0, 21, 45, 20, 40)} // oldest record, below threshold

		_, err := c.History(tt.timeRange)
		require.NoError(t, err)

		writes := f.written(uuidRecordIdx)
		require.Len(t, writes, 1, "range %s", tt.timeRange)
		require.Equal(t, tt.start, binary.LittleEndian.Uint32(writes[0]), "range %s", tt.timeRange)
	}
}

func TestHistory_HarvestScenario(t *testing.T) {
	f, c, deviceTime := harvestFixture(200, 50)

	// the in-progress hour arrives first (timestamp above the threshold),
	// then a repeat of it with corrected values, then the record that
	// crosses the threshold and ends the stream
	f.feed = [][]byte{
		historyFrame(200, 22.1, 45, 21.0, 40),
		historyFrame(200, 22.3, 46, 21.2, 41),
		historyFrame(199, 21.8, 44, 20.9, 39),
	}

	h, err := c.History(Day)
	require.NoError(t, err)
	require.True(t, f.subscribed)
	require.True(t, f.unsubscribed)

	// cursor: 200 total - 24 hours
	writes := f.written(uuidRecordIdx)
	require.Len(t, writes, 1)
	require.Equal(t, uint32(176), binary.LittleEndian.Uint32(writes[0]))

	// the duplicate overwrote, the threshold record is included
	require.Equal(t, 2, h.Len())

	hour := time.Date(2026, 8, 26, 10, 0, 0, 0, deviceTime.Location())
	rec, ok := h.At(hour)
	require.True(t, ok)
	require.Equal(t, 22.3, rec.TempMax)
	require.Equal(t, 41, rec.HumMin)

	rec, ok = h.At(hour.Add(-time.Hour))
	require.True(t, ok)
	require.Equal(t, 21.8, rec.TempMax)
	require.Equal(t, 20.9, rec.TempMin)
}

func TestHistory_NoUnsyncedRecordsShortCircuits(t *testing.T) {
	f, c, _ := harvestFixture(200, 0)

	h, err := c.History(Day)
	require.NoError(t, err)
	require.Equal(t, 0, h.Len())
	require.False(t, f.subscribed, "must not subscribe")
	require.Empty(t, f.written(uuidRecordIdx), "must not move the cursor")
}

func TestHistory_SubscriptionFailure(t *testing.T) {
	f, c, _ := harvestFixture(200, 50)
	f.subscribeErr = errors.New("att request failed")

	_, err := c.History(Day)
	require.Error(t, err)
	require.ErrorContains(t, err, "history stream")
}

func TestHistory_TimesOutWithoutThresholdRecord(t *testing.T) {
	f, c, _ := harvestFixture(200, 50)
	c.HarvestTimeout = 50 * time.Millisecond

	// only the in-progress hour arrives, the stream then stalls
	f.feed = [][]byte{historyFrame(200, 22.1, 45, 21.0, 40)}

	_, err := c.History(Day)
	require.ErrorIs(t, err, ErrHarvestTimeout)
	require.True(t, f.unsubscribed)
}

func TestHistory_SurfacesDecodeError(t *testing.T) {
	f, c, _ := harvestFixture(200, 50)
	f.feed = [][]byte{{0x01, 0x02, 0x03}}

	_, err := c.History(Day)
	require.ErrorIs(t, err, ErrFrameSize)
	require.True(t, f.unsubscribed)
}

func TestStoredEntries_CachedPerSession(t *testing.T) {
	f, c, _ := harvestFixture(200, 50)

	total, unsynced, err := c.StoredEntries()
	require.NoError(t, err)
	require.Equal(t, uint32(200), total)
	require.Equal(t, uint32(50), unsynced)

	_, _, err = c.StoredEntries()
	require.NoError(t, err)
	require.Equal(t, 1, f.readCount(uuidRecordCount))
}

func TestHistoryIndex_ReadEmptyPayloadIsZero(t *testing.T) {
	f := newFakeBridge()
	f.reads[uuidRecordIdx] = []byte{}

	idx, err := newTestClient(f).HistoryIndex()
	require.NoError(t, err)
	require.Equal(t, uint32(0), idx)
}

func TestParseHistoryRecord(t *testing.T) {
	rec, idx, err := parseHistoryRecord(historyFrame(42, 22.3, 46, -1.5, 41))
	require.NoError(t, err)
	require.Equal(t, uint32(42), idx)
	require.Equal(t, 22.3, rec.TempMax)
	require.Equal(t, 46, rec.HumMax)
	require.Equal(t, -1.5, rec.TempMin)
	require.Equal(t, 41, rec.HumMin)

	_, _, err = parseHistoryRecord(make([]byte, historyFrameSize-1))
	require.ErrorIs(t, err, ErrFrameSize)
}
