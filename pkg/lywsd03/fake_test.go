package lywsd03

import (
	"context"
	"encoding/binary"
	"math"
	"sync"
	"time"

	"mijiadl/pkg/gatt"
)

// fakeBridge is an in-memory gatt.Bridge. Reads are served from canned
// payloads, writes are recorded, and Subscribe delivers the configured
// notification feed to the handler.
type fakeBridge struct {
	mu sync.Mutex

	reads        map[string][]byte
	readCounts   map[string]int
	writes       map[string][][]byte
	connectErrs  []error // consumed one per Connect call
	connectCalls int
	connected    bool

	subscribeErr error
	feed         [][]byte // delivered on Subscribe
	subscribed   bool
	unsubscribed bool
}

func newFakeBridge() *fakeBridge {
	return &fakeBridge{
		reads:      map[string][]byte{},
		readCounts: map[string]int{},
		writes:     map[string][][]byte{},
	}
}

func (f *fakeBridge) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.connectCalls++
	if len(f.connectErrs) > 0 {
		err := f.connectErrs[0]
		f.connectErrs = f.connectErrs[1:]
		if err != nil {
			return err
		}
	}
	f.connected = true
	return nil
}

func (f *fakeBridge) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	return nil
}

func (f *fakeBridge) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeBridge) Read(uuid string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	b, ok := f.reads[uuid]
	if !ok {
		return nil, gatt.ErrUnknownAttribute
	}
	f.readCounts[uuid]++
	return b, nil
}

// readCount returns how often uuid was read.
func (f *fakeBridge) readCount(uuid string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.readCounts[uuid]
}

func (f *fakeBridge) Write(uuid string, b []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.writes[uuid] = append(f.writes[uuid], append([]byte(nil), b...))
	return nil
}

// written returns the payloads written to uuid.
func (f *fakeBridge) written(uuid string) [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes[uuid]
}

func (f *fakeBridge) Subscribe(uuid string, fn gatt.NotificationFunc) error {
	f.mu.Lock()
	if f.subscribeErr != nil {
		err := f.subscribeErr
		f.mu.Unlock()
		return err
	}
	f.subscribed = true
	feed := f.feed
	f.mu.Unlock()

	for _, b := range feed {
		fn(b)
	}
	return nil
}

func (f *fakeBridge) Unsubscribe(uuid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubscribed = true
	return nil
}

// newTestClient returns a client on the fake with short harvest timings.
func newTestClient(f *fakeBridge) *Client {
	c := New(f)
	c.PollInterval = time.Millisecond
	c.HarvestTimeout = 250 * time.Millisecond
	return c
}

// historyFrame builds a history notification payload.
func historyFrame(idx uint32, maxTemp float64, maxHum int, minTemp float64, minHum int) []byte {
	b := make([]byte, historyFrameSize)
	binary.LittleEndian.PutUint32(b[0:4], idx)
	binary.LittleEndian.PutUint16(b[8:10], uint16(int16(math.Round(maxTemp*10))))
	b[10] = byte(maxHum)
	binary.LittleEndian.PutUint16(b[11:13], uint16(int16(math.Round(minTemp*10))))
	b[13] = byte(minHum)
	return b
}

// recordCountPayload builds a record count payload.
func recordCountPayload(total, unsynced uint32) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint32(b[0:4], total)
	binary.LittleEndian.PutUint32(b[4:8], unsynced)
	return b
}
