package btj7c

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fako1024/gatt"
)

const (
	uartService = "ffe0"

	connectTimeout = 10 * time.Second
)

type scanSession struct {
	match  Matcher
	result chan Advertisement
}

// gattTransport implements the Transport capability on top of a gatt central
// device, adapting its callback-driven API to the synchronous scan / connect
// operations the supervisor consumes
type gattTransport struct {
	device gatt.Device
	logger Logger

	ready     chan struct{}
	readyOnce sync.Once
	powered   atomic.Bool

	mu      sync.Mutex
	scan    *scanSession
	periphs map[string]gatt.Peripheral
	links   map[string]*gattLink
}

// NewGATTTransport wraps an initialized gatt device into a Transport
func NewGATTTransport(device gatt.Device, logger Logger) (Transport, error) {
	if logger == nil {
		logger = &NullLogger{}
	}

	t := &gattTransport{
		device:  device,
		logger:  logger,
		ready:   make(chan struct{}),
		periphs: make(map[string]gatt.Peripheral),
		links:   make(map[string]*gattLink),
	}

	// Register handlers
	device.Handle(
		gatt.AddPeripheralDiscovered(t.onPeriphDiscovered),
		gatt.AddPeripheralConnected(t.onPeriphConnected),
		gatt.AddPeripheralDisconnected(t.onPeriphDisconnected),
	)

	// Initialize the device
	if err := device.Init(t.onStateChanged); err != nil {
		return nil, err
	}

	return t, nil
}

// Scan enables discovery until a matching device is seen or the timeout
// elapses, whichever comes first
func (t *gattTransport) Scan(ctx context.Context, timeout time.Duration, match Matcher) (*Advertisement, error) {

	// Wait for the adapter to power up (relevant on the very first scan only)
	select {
	case <-t.ready:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(timeout):
		return nil, ErrAdapterUnavailable
	}
	if !t.powered.Load() {
		return nil, ErrAdapterUnavailable
	}

	sess := &scanSession{
		match:  match,
		result: make(chan Advertisement, 1),
	}
	t.mu.Lock()
	t.scan = sess
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		t.scan = nil
		t.mu.Unlock()
		if err := t.device.StopScanning(); err != nil {
			t.logger.Warnf("failed to stop scanning: %s", err)
		}
	}()

	if err := t.device.Scan([]gatt.UUID{}, false); err != nil {
		return nil, fmt.Errorf("failed to enable scanning: %w", err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case adv := <-sess.result:
		return &adv, nil
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Connect establishes a connection to a peripheral seen during a prior scan
// and discovers the telemetry service / characteristic on it
func (t *gattTransport) Connect(ctx context.Context, addr string) (Link, error) {
	t.mu.Lock()
	p, ok := t.periphs[addr]
	t.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("peripheral `%s` not seen in any scan", addr)
	}

	lnk := newGATTLink(p)
	t.mu.Lock()
	t.links[addr] = lnk
	t.mu.Unlock()

	if err := t.device.Connect(p); err != nil {
		t.dropLink(addr)
		return nil, fmt.Errorf("failed to connect peripheral `%s`: %w", addr, err)
	}

	select {
	case err := <-lnk.connected:
		if err != nil {
			t.dropLink(addr)
			return nil, err
		}
		return lnk, nil
	case <-time.After(connectTimeout):
		t.device.CancelConnection(p)
		t.dropLink(addr)
		return nil, fmt.Errorf("timeout connecting peripheral `%s`", addr)
	case <-ctx.Done():
		t.device.CancelConnection(p)
		t.dropLink(addr)
		return nil, ctx.Err()
	}
}

// Close terminates all activity on the underlying gatt device
func (t *gattTransport) Close() error {
	if err := t.device.StopScanning(); err != nil {
		t.logger.Warnf("failed to stop scanning: %s", err)
	}
	return t.device.RemoveAllServices()
}

////////////////////////////////////////////////////////////////////////////////

func (t *gattTransport) onStateChanged(d gatt.Device, s gatt.State) {
	switch s {
	case gatt.StatePoweredOn:
		t.powered.Store(true)
		t.readyOnce.Do(func() { close(t.ready) })
	case gatt.StatePoweredOff:
		t.powered.Store(false)
	default:
		if err := d.StopScanning(); err != nil {
			t.logger.Warnf("failed to stop scanning: %s", err)
		}
	}
}

func (t *gattTransport) onPeriphDiscovered(p gatt.Peripheral, a *gatt.Advertisement, rssi int) {
	name := p.Name()
	if name == "" && a != nil {
		name = a.LocalName
	}
	adv := Advertisement{
		Name:    name,
		Address: p.ID(),
	}

	t.mu.Lock()
	t.periphs[adv.Address] = p
	sess := t.scan
	t.mu.Unlock()

	t.logger.Debugf("discovered device `%s/%s`", adv.Name, adv.Address)

	if sess == nil || !sess.match(adv) {
		return
	}

	// Stop scanning once we've got the peripheral we're looking for
	if err := p.Device().StopScanning(); err != nil {
		t.logger.Warnf("failed to stop scanning: %s", err)
	}
	select {
	case sess.result <- adv:
	default:
	}
}

func (t *gattTransport) onPeriphConnected(p gatt.Peripheral, err error) {
	t.mu.Lock()
	lnk := t.links[p.ID()]
	t.mu.Unlock()
	if lnk == nil {
		return
	}

	if err != nil {
		lnk.signal(fmt.Errorf("failed to connect peripheral `%s/%s`: %w", p.Name(), p.ID(), err))
		return
	}

	if err := lnk.discover(); err != nil {
		p.Device().CancelConnection(p)
		lnk.signal(err)
		return
	}

	lnk.alive.Store(true)
	lnk.signal(nil)

	t.logger.Debugf("waiting to release peripheral `%s/%s`", p.Name(), p.ID())
	<-lnk.done
	p.Device().CancelConnection(p)
	t.logger.Debugf("released peripheral `%s/%s`", p.Name(), p.ID())
}

func (t *gattTransport) onPeriphDisconnected(p gatt.Peripheral, err error) {
	t.mu.Lock()
	lnk := t.links[p.ID()]
	delete(t.links, p.ID())
	t.mu.Unlock()
	if lnk == nil {
		return
	}

	lnk.alive.Store(false)
	lnk.release()
	t.logger.Debugf("disconnected peripheral `%s/%s`", p.Name(), p.ID())
}

func (t *gattTransport) dropLink(addr string) {
	t.mu.Lock()
	lnk := t.links[addr]
	delete(t.links, addr)
	t.mu.Unlock()
	if lnk != nil {
		lnk.release()
	}
}

////////////////////////////////////////////////////////////////////////////////

type gattLink struct {
	periph gatt.Peripheral

	connected chan error
	alive     atomic.Bool

	done     chan struct{}
	doneOnce sync.Once

	mu    sync.Mutex
	chars map[string]*gatt.Characteristic
}

func newGATTLink(p gatt.Peripheral) *gattLink {
	return &gattLink{
		periph:    p,
		connected: make(chan error, 1),
		done:      make(chan struct{}),
		chars:     make(map[string]*gatt.Characteristic),
	}
}

// Subscribe registers fn for notifications on the given characteristic
func (l *gattLink) Subscribe(characteristic string, fn func(data []byte)) error {
	c, err := l.characteristic(characteristic)
	if err != nil {
		return err
	}
	return l.periph.SetNotifyValue(c, func(_ *gatt.Characteristic, data []byte, err error) {
		if err != nil || fn == nil {
			return
		}
		fn(data)
	})
}

// Unsubscribe removes the notification callback from the characteristic
func (l *gattLink) Unsubscribe(characteristic string) error {
	c, err := l.characteristic(characteristic)
	if err != nil {
		return err
	}
	return l.periph.SetNotifyValue(c, nil)
}

// Alive reports whether the peripheral is still connected
func (l *gattLink) Alive() bool {
	return l.alive.Load()
}

// Close releases the peripheral
func (l *gattLink) Close() error {
	l.alive.Store(false)
	l.release()
	return nil
}

func (l *gattLink) release() {
	l.doneOnce.Do(func() { close(l.done) })
}

func (l *gattLink) signal(err error) {
	select {
	case l.connected <- err:
	default:
	}
}

func (l *gattLink) characteristic(id string) (*gatt.Characteristic, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.chars[id]
	if !ok {
		return nil, fmt.Errorf("characteristic `%s` not available on peripheral `%s`", id, l.periph.ID())
	}
	return c, nil
}

func (l *gattLink) discover() error {

	// Discover services
	ss, err := l.periph.DiscoverServices([]gatt.UUID{
		gatt.MustParseUUID(uartService),
	})
	if err != nil {
		return fmt.Errorf("failed to discover services: %w", err)
	}

	for _, s := range ss {
		if s.UUID().String() != uartService {
			continue
		}

		// Discover characteristics
		cs, err := l.periph.DiscoverCharacteristics([]gatt.UUID{
			gatt.MustParseUUID(TelemetryCharacteristic),
		}, s)
		if err != nil {
			return fmt.Errorf("failed to discover telemetry characteristic: %w", err)
		}
		for _, c := range cs {

			// Discover descriptors
			if _, err := l.periph.DiscoverDescriptors(nil, c); err != nil {
				return fmt.Errorf("failed to discover telemetry descriptors: %w", err)
			}

			l.mu.Lock()
			l.chars[c.UUID().String()] = c
			l.mu.Unlock()
		}
	}

	if _, err := l.characteristic(TelemetryCharacteristic); err != nil {
		return err
	}
	return nil
}
