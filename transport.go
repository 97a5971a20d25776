package btj7c

import (
	"context"
	"errors"
	"time"
)

// TelemetryCharacteristic is the UART-style notify characteristic the tester
// emits its frames on
const TelemetryCharacteristic = "ffe1"

// ErrAdapterUnavailable is returned by a transport whose local bluetooth
// adapter is powered off or otherwise not usable
var ErrAdapterUnavailable = errors.New("bluetooth adapter unavailable")

// Advertisement denotes a device seen during a scan
type Advertisement struct {
	Name    string
	Address string
}

// Matcher decides whether an advertised device is the one we are looking for
type Matcher func(adv Advertisement) bool

// Link denotes an established connection to the instrument
type Link interface {

	// Subscribe registers a notification callback on the given characteristic
	Subscribe(characteristic string, fn func(data []byte)) error

	// Unsubscribe removes the notification callback again
	Unsubscribe(characteristic string) error

	// Alive reports whether the link is still up
	Alive() bool

	// Close releases the link
	Close() error
}

// Transport abstracts the wireless central used to reach the instrument. The
// production implementation is backed by gatt (see NewGATTTransport); tests
// inject their own via WithTransport
type Transport interface {

	// Scan searches for a device accepted by match, stopping early on the
	// first hit. It returns nil (and no error) if the timeout elapses without
	// a match
	Scan(ctx context.Context, timeout time.Duration, match Matcher) (*Advertisement, error)

	// Connect establishes a link to a previously scanned device
	Connect(ctx context.Context, addr string) (Link, error)

	// Close releases the transport and all its resources
	Close() error
}
