package btj7c

import (
	"time"

	"github.com/fako1024/gatt"
)

// WithDeviceID sets the Bluetooth device ID (matching by address instead of
// advertised name)
func WithDeviceID(deviceID string) func(*Tester) {
	return func(t *Tester) {
		t.deviceID = deviceID
	}
}

// WithDeviceNames sets the advertised name fragments to match during a scan
func WithDeviceNames(names ...string) func(*Tester) {
	return func(t *Tester) {
		t.deviceNames = names
	}
}

// WithDevice sets the Bluetooth device
func WithDevice(btDevice gatt.Device) func(*Tester) {
	return func(t *Tester) {
		t.btDevice = btDevice
	}
}

// WithTransport sets the transport used to reach the instrument (replacing
// the default GATT-backed one)
func WithTransport(transport Transport) func(*Tester) {
	return func(t *Tester) {
		t.transport = transport
	}
}

// WithLogger sets a logger
func WithLogger(logger Logger) func(*Tester) {
	return func(t *Tester) {
		t.logger = logger
	}
}

// WithLayout sets the frame layout version used for decoding
func WithLayout(layout FrameLayout) func(*Tester) {
	return func(t *Tester) {
		t.decoder.Layout = layout
	}
}

// WithChecksum enables frame checksum validation using the given verifier
func WithChecksum(verify ChecksumFunc) func(*Tester) {
	return func(t *Tester) {
		t.decoder.Verify = verify
	}
}

// WithHistorySize sets the capacity of the measurement history ring
func WithHistorySize(n int) func(*Tester) {
	return func(t *Tester) {
		t.historySize = n
	}
}

// WithQueueSize sets the per-subscriber event queue size
func WithQueueSize(n int) func(*Tester) {
	return func(t *Tester) {
		t.queueSize = n
	}
}

// WithScanTimeout sets the duration of a single device scan
func WithScanTimeout(d time.Duration) func(*Tester) {
	return func(t *Tester) {
		t.scanTimeout = d
	}
}

// WithPollInterval sets the link liveness poll interval
func WithPollInterval(d time.Duration) func(*Tester) {
	return func(t *Tester) {
		t.pollInterval = d
	}
}

// WithBackoff sets the retry delays after a fruitless scan (notFound) and
// after a failed or lost connection (reconnect)
func WithBackoff(notFound, reconnect time.Duration) func(*Tester) {
	return func(t *Tester) {
		t.notFoundDelay = notFound
		t.reconnectDelay = reconnect
	}
}
