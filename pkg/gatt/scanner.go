package gatt

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/womat/debug"
)

// Scan listens to advertisements for the given duration and returns the
// addresses of all peripherals advertising the local name.
// It is a discovery helper only; connections are made by address.
func Scan(ctx context.Context, name string, duration time.Duration) ([]string, error) {
	if err := openDevice(); err != nil {
		return nil, err
	}

	var (
		mu    sync.Mutex
		seen  = map[string]struct{}{}
		addrs []string
	)

	ctx, cancel := context.WithTimeout(ctx, duration)
	defer cancel()

	handler := func(a ble.Advertisement) {
		if a.LocalName() != name {
			return
		}

		mu.Lock()
		defer mu.Unlock()

		addr := a.Addr().String()
		if _, ok := seen[addr]; ok {
			return
		}
		seen[addr] = struct{}{}
		addrs = append(addrs, addr)
		debug.InfoLog.Printf("found %s at %s (rssi %d)", name, addr, a.RSSI())
	}

	err := ble.Scan(ctx, false, handler, nil)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
		return nil, err
	}

	return addrs, nil
}
