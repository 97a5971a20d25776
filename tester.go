package btj7c

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fako1024/gatt"
)

const (
	defaultScanTimeout    = 5 * time.Second
	defaultPollInterval   = time.Second
	defaultNotFoundDelay  = 5 * time.Second
	defaultReconnectDelay = 2 * time.Second
)

// defaultDeviceNames are the known advertised name fragments of the tester
var defaultDeviceNames = []string{"J7-C", "UC96", "UD18"}

// Tester denotes a J7-C / UC96 USB test instrument reached over bluetooth. It
// owns the connection lifecycle (scan / connect / stream / recover) and fans
// every decoded measurement out to its subscribers. Multiple independent
// instances can coexist; each manages exactly one physical link
type Tester struct {
	deviceNames []string
	deviceID    string

	scanTimeout    time.Duration
	pollInterval   time.Duration
	notFoundDelay  time.Duration
	reconnectDelay time.Duration
	historySize    int
	queueSize      int

	decoder   FrameDecoder
	transport Transport
	btDevice  gatt.Device
	dist      *Distributor

	latest        atomic.Pointer[Measurement]
	framesDecoded uint64
	framesDropped uint64

	ctx     context.Context
	cancel  context.CancelFunc
	started atomic.Bool
	done    chan struct{}

	logger Logger
}

// New instantiates a new Tester, executing functional options, if any. The
// instance is idle until Start() is called
func New(options ...func(*Tester)) (*Tester, error) {

	// Initialize a new instance of a Tester
	t := &Tester{
		deviceNames:    defaultDeviceNames,
		scanTimeout:    defaultScanTimeout,
		pollInterval:   defaultPollInterval,
		notFoundDelay:  defaultNotFoundDelay,
		reconnectDelay: defaultReconnectDelay,
		historySize:    defaultHistorySize,
		queueSize:      defaultQueueSize,
		decoder:        FrameDecoder{Layout: LayoutV1},
		done:           make(chan struct{}),
		logger:         &NullLogger{},
	}
	t.ctx, t.cancel = context.WithCancel(context.Background())

	// Execute functional options (if any), see options.go for implementation
	for _, option := range options {
		option(t)
	}

	// Initialize a GATT-backed transport (if not provided as option)
	if t.transport == nil {
		if t.btDevice == nil {
			btDevice, err := gatt.NewDevice(defaultBTClientOptions...)
			if err != nil {
				return nil, err
			}
			t.btDevice = btDevice
		}
		transport, err := NewGATTTransport(t.btDevice, t.logger)
		if err != nil {
			return nil, err
		}
		t.transport = transport
	}

	t.dist = NewDistributor(t.historySize, t.queueSize, t.logger)

	return t, nil
}

// Start launches the connection supervisor. Calling it more than once is a
// no-op
func (t *Tester) Start() {
	if !t.started.CompareAndSwap(false, true) {
		return
	}
	go t.run()
}

// Close stops the supervisor (releasing the device link, if any), detaches
// all subscribers and shuts down the transport. The stop request is observed
// within at most one poll interval
func (t *Tester) Close() error {
	t.cancel()
	if t.started.Load() {
		<-t.done
	} else {
		t.dist.PublishStatus(ConnectionStatus{State: StateStopped})
	}

	t.dist.Close()
	return t.transport.Close()
}

// Subscribe attaches a new observer to the live data stream. The returned
// snapshot carries the current connection status and the recent measurement
// history; the subscription carries all subsequent events
func (t *Tester) Subscribe() (*Subscription, Snapshot) {
	return t.dist.Subscribe()
}

// Unsubscribe detaches an observer again (idempotent)
func (t *Tester) Unsubscribe(sub *Subscription) {
	t.dist.Unsubscribe(sub)
}

// ConnectionStatus returns the current status of the bluetooth device
func (t *Tester) ConnectionStatus() ConnectionStatus {
	return t.dist.Status()
}

// Latest returns the most recent measurement, if any
func (t *Tester) Latest() (Measurement, bool) {
	m := t.latest.Load()
	if m == nil {
		return Measurement{}, false
	}
	return *m, true
}

// FrameStats returns the number of frames decoded and dropped so far
func (t *Tester) FrameStats() (decoded, dropped uint64) {
	return atomic.LoadUint64(&t.framesDecoded), atomic.LoadUint64(&t.framesDropped)
}

////////////////////////////////////////////////////////////////////////////////

// run drives the scan / connect / stream / recover loop until stopped.
// Retries are unbounded: an unattended logger must ride out any number of
// link failures
func (t *Tester) run() {
	defer close(t.done)

	for !t.stopping() {
		t.setStatus(ConnectionStatus{State: StateScanning})

		adv, err := t.transport.Scan(t.ctx, t.scanTimeout, t.matchDevice)
		if err != nil {
			if t.stopping() {
				break
			}
			reason := ReasonNotFound
			if errors.Is(err, ErrAdapterUnavailable) {
				reason = ReasonAdapterUnavailable
			}
			t.setStatus(ConnectionStatus{State: StateDisconnected, Reason: reason, Err: err})
			if !t.sleep(t.notFoundDelay) {
				break
			}
			continue
		}
		if adv == nil {
			t.setStatus(ConnectionStatus{State: StateDisconnected, Reason: ReasonNotFound})
			if !t.sleep(t.notFoundDelay) {
				break
			}
			continue
		}

		t.logger.Debugf("connecting device `%s/%s`", adv.Name, adv.Address)
		t.setStatus(ConnectionStatus{State: StateConnecting})

		link, err := t.transport.Connect(t.ctx, adv.Address)
		if err != nil {
			if t.stopping() {
				break
			}
			t.logger.Errorf("failed to connect device `%s/%s`: %s", adv.Name, adv.Address, err)
			t.setStatus(ConnectionStatus{State: StateDisconnected, Reason: ReasonConnectFailed, Err: err})
			if !t.sleep(t.reconnectDelay) {
				break
			}
			continue
		}

		if err := link.Subscribe(TelemetryCharacteristic, t.handleNotification); err != nil {
			_ = link.Close()
			t.logger.Errorf("failed to subscribe to telemetry characteristic: %s", err)
			t.setStatus(ConnectionStatus{State: StateDisconnected, Reason: ReasonConnectFailed, Err: err})
			if !t.sleep(t.reconnectDelay) {
				break
			}
			continue
		}

		t.logger.Infof("connected device `%s/%s`", adv.Name, adv.Address)
		t.setStatus(ConnectionStatus{State: StateConnected})

		t.watch(link)

		if err := link.Unsubscribe(TelemetryCharacteristic); err != nil {
			t.logger.Debugf("failed to unsubscribe from telemetry characteristic: %s", err)
		}
		_ = link.Close()

		if t.stopping() {
			break
		}

		t.logger.Infof("lost device `%s/%s`, reconnecting", adv.Name, adv.Address)
		t.setStatus(ConnectionStatus{State: StateDisconnected, Reason: ReasonLinkLost})
		if !t.sleep(t.reconnectDelay) {
			break
		}
	}

	t.setStatus(ConnectionStatus{State: StateStopped})
}

// watch blocks while the link is healthy, polling liveness once per interval
// so a silent link death is detected without a notification
func (t *Tester) watch(link Link) {
	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.ctx.Done():
			return
		case <-ticker.C:
			if !link.Alive() {
				return
			}
		}
	}
}

// handleNotification decodes one notification payload and forwards the result
// to history and subscribers. Malformed frames are dropped; the stream keeps
// running either way
func (t *Tester) handleNotification(data []byte) {
	m, err := t.decoder.Decode(data, time.Now())
	if err != nil {
		atomic.AddUint64(&t.framesDropped, 1)
		t.logger.Debugf("dropping frame (%d bytes): %s", len(data), err)
		return
	}

	atomic.AddUint64(&t.framesDecoded, 1)
	t.latest.Store(m)
	t.dist.Publish(*m)
}

func (t *Tester) matchDevice(adv Advertisement) bool {

	// Check if the device ID has been overridden
	if t.deviceID != "" {
		return strings.EqualFold(adv.Address, t.deviceID)
	}

	for _, name := range t.deviceNames {
		if name != "" && strings.Contains(adv.Name, name) {
			return true
		}
	}
	return false
}

func (t *Tester) setStatus(status ConnectionStatus) {
	t.logger.Debugf("state change: %s", status)
	t.dist.PublishStatus(status)
}

func (t *Tester) stopping() bool {
	select {
	case <-t.ctx.Done():
		return true
	default:
		return false
	}
}

// sleep waits for the given delay, returning early (false) on stop
func (t *Tester) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-t.ctx.Done():
		return false
	}
}
