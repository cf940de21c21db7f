// Package gatt is the BLE transport of the sensor client.
// It exposes an established GATT connection as flat read/write/subscribe
// operations keyed by characteristic UUID.
package gatt

import (
	"context"
	"errors"
)

var (
	ErrNotConnected     = errors.New("not connected")
	ErrUnknownAttribute = errors.New("unknown characteristic uuid")
)

// NotificationFunc handles one notification payload of a subscribed
// characteristic. It is called from the transport's receive loop and must
// not block.
type NotificationFunc func(b []byte)

// Bridge is the interface implemented by an attribute transport.
// All operations work on an established connection; Connect must have
// succeeded before any of them is used.
type Bridge interface {
	// Connect establishes a fresh transport level connection.
	// The context bounds the attempt.
	Connect(ctx context.Context) error
	// Disconnect tears the connection down. Best effort and idempotent.
	Disconnect() error
	// Connected reports whether a connection is established.
	Connected() bool
	// Read reads the value of the characteristic uuid.
	Read(uuid string) ([]byte, error)
	// Write writes b to the characteristic uuid.
	Write(uuid string, b []byte) error
	// Subscribe starts notifications of the characteristic uuid.
	Subscribe(uuid string, fn NotificationFunc) error
	// Unsubscribe stops notifications of the characteristic uuid.
	Unsubscribe(uuid string) error
}
