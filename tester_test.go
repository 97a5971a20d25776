package btj7c

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLink struct {
	alive atomic.Bool

	mu           sync.Mutex
	notify       func(data []byte)
	unsubscribed bool
	closed       bool
}

func (l *fakeLink) Subscribe(characteristic string, fn func(data []byte)) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.notify = fn
	return nil
}

func (l *fakeLink) Unsubscribe(characteristic string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.notify = nil
	l.unsubscribed = true
	return nil
}

func (l *fakeLink) Alive() bool {
	return l.alive.Load()
}

func (l *fakeLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.alive.Store(false)
	l.closed = true
	return nil
}

// inject delivers a raw notification payload, as the BLE stack would
func (l *fakeLink) inject(data []byte) {
	l.mu.Lock()
	fn := l.notify
	l.mu.Unlock()
	if fn != nil {
		fn(data)
	}
}

type fakeTransport struct {
	mu         sync.Mutex
	devices    []Advertisement
	connectErr error
	scans      int
	links      []*fakeLink
	closed     bool
}

func (ft *fakeTransport) Scan(ctx context.Context, timeout time.Duration, match Matcher) (*Advertisement, error) {
	ft.mu.Lock()
	defer ft.mu.Unlock()

	ft.scans++
	for i := range ft.devices {
		if match(ft.devices[i]) {
			adv := ft.devices[i]
			return &adv, nil
		}
	}
	return nil, nil
}

func (ft *fakeTransport) Connect(ctx context.Context, addr string) (Link, error) {
	ft.mu.Lock()
	defer ft.mu.Unlock()

	if ft.connectErr != nil {
		return nil, ft.connectErr
	}
	lnk := &fakeLink{}
	lnk.alive.Store(true)
	ft.links = append(ft.links, lnk)
	return lnk, nil
}

func (ft *fakeTransport) Close() error {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	ft.closed = true
	return nil
}

func (ft *fakeTransport) scanCount() int {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	return ft.scans
}

func (ft *fakeTransport) link(i int) *fakeLink {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	if i >= len(ft.links) {
		return nil
	}
	return ft.links[i]
}

func (ft *fakeTransport) linkCount() int {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	return len(ft.links)
}

func newTestTester(t *testing.T, ft *fakeTransport, options ...func(*Tester)) *Tester {
	t.Helper()

	options = append([]func(*Tester){
		WithTransport(ft),
		WithScanTimeout(10 * time.Millisecond),
		WithPollInterval(5 * time.Millisecond),
		WithBackoff(5*time.Millisecond, 5*time.Millisecond),
		WithHistorySize(16),
	}, options...)

	tester, err := New(options...)
	require.NoError(t, err)
	return tester
}

// nextState consumes events until the next status event and returns it
func nextState(t *testing.T, sub *Subscription) ConnectionStatus {
	t.Helper()

	timeout := time.After(time.Second)
	for {
		select {
		case ev, ok := <-sub.Events():
			require.True(t, ok, "event stream closed while waiting for status")
			if ev.Status != nil {
				return *ev.Status
			}
		case <-timeout:
			t.Fatal("timed out waiting for status event")
		}
	}
}

// nextMeasurement consumes events until the next measurement event
func nextMeasurement(t *testing.T, sub *Subscription) Measurement {
	t.Helper()

	timeout := time.After(time.Second)
	for {
		select {
		case ev, ok := <-sub.Events():
			require.True(t, ok, "event stream closed while waiting for measurement")
			if ev.Measurement != nil {
				return *ev.Measurement
			}
		case <-timeout:
			t.Fatal("timed out waiting for measurement event")
		}
	}
}

func TestTesterEndToEnd(t *testing.T) {
	ft := &fakeTransport{
		devices: []Advertisement{
			{Name: "SomeHeadphones", Address: "AA:00"},
			{Name: "J7-C-1234", Address: "AA:01"},
		},
	}
	tester := newTestTester(t, ft, WithDeviceNames("UC96", "J7-C"))

	sub, snap := tester.Subscribe()
	assert.Equal(t, StateIdle, snap.Status.State)
	assert.Empty(t, snap.History)

	tester.Start()

	assert.Equal(t, StateScanning, nextState(t, sub).State)
	assert.Equal(t, StateConnecting, nextState(t, sub).State)
	assert.Equal(t, StateConnected, nextState(t, sub).State)

	// 5.00 V / 10.00 A on the wire
	lnk := ft.link(0)
	require.NotNil(t, lnk)
	lnk.inject(makeFrame(LayoutV1, frameFields{voltage: 500, current: 1000, temperature: 25}))

	m := nextMeasurement(t, sub)
	assert.InDelta(t, 5.0, m.Voltage, 0.01)
	assert.InDelta(t, 10.0, m.Current, 0.01)
	assert.InDelta(t, 50.0, m.Power, 0.01)
	assert.InDelta(t, 0.5, m.Resistance, 0.01)
	assert.Equal(t, 25, m.Temperature)

	// Appended to history: a late joiner sees it in its snapshot
	_, snap = tester.Subscribe()
	require.Len(t, snap.History, 1)
	assert.InDelta(t, 5.0, snap.History[0].Voltage, 0.01)
	assert.Equal(t, StateConnected, snap.Status.State)

	latest, ok := tester.Latest()
	require.True(t, ok)
	assert.InDelta(t, 5.0, latest.Voltage, 0.01)

	decoded, dropped := tester.FrameStats()
	assert.EqualValues(t, 1, decoded)
	assert.Zero(t, dropped)

	require.NoError(t, tester.Close())
}

func TestTesterDeviceNotFound(t *testing.T) {
	ft := &fakeTransport{} // nothing advertised
	tester := newTestTester(t, ft)

	sub, _ := tester.Subscribe()
	tester.Start()

	// The supervisor cycles scan -> not found -> scan indefinitely
	for i := 0; i < 3; i++ {
		assert.Equal(t, StateScanning, nextState(t, sub).State)
		status := nextState(t, sub)
		assert.Equal(t, StateDisconnected, status.State)
		assert.Equal(t, ReasonNotFound, status.Reason)
	}
	assert.GreaterOrEqual(t, ft.scanCount(), 3)

	require.NoError(t, tester.Close())
	assert.Equal(t, StateStopped, tester.ConnectionStatus().State)
	assert.True(t, ft.closed)
}

func TestTesterConnectFailure(t *testing.T) {
	ft := &fakeTransport{
		devices:    []Advertisement{{Name: "UC96", Address: "AA:02"}},
		connectErr: assert.AnError,
	}
	tester := newTestTester(t, ft)

	sub, _ := tester.Subscribe()
	tester.Start()

	assert.Equal(t, StateScanning, nextState(t, sub).State)
	assert.Equal(t, StateConnecting, nextState(t, sub).State)

	status := nextState(t, sub)
	assert.Equal(t, StateDisconnected, status.State)
	assert.Equal(t, ReasonConnectFailed, status.Reason)
	assert.ErrorIs(t, status.Err, assert.AnError)

	// Retry is unbounded: the supervisor goes right back to scanning
	assert.Equal(t, StateScanning, nextState(t, sub).State)

	require.NoError(t, tester.Close())
}

func TestTesterLinkLostReconnects(t *testing.T) {
	ft := &fakeTransport{
		devices: []Advertisement{{Name: "UD18", Address: "AA:03"}},
	}
	tester := newTestTester(t, ft)

	sub, _ := tester.Subscribe()
	tester.Start()

	assert.Equal(t, StateScanning, nextState(t, sub).State)
	assert.Equal(t, StateConnecting, nextState(t, sub).State)
	assert.Equal(t, StateConnected, nextState(t, sub).State)

	// Silent link death is picked up by the liveness poll
	ft.link(0).alive.Store(false)

	status := nextState(t, sub)
	assert.Equal(t, StateDisconnected, status.State)
	assert.Equal(t, ReasonLinkLost, status.Reason)

	assert.Equal(t, StateScanning, nextState(t, sub).State)
	assert.Equal(t, StateConnecting, nextState(t, sub).State)
	assert.Equal(t, StateConnected, nextState(t, sub).State)
	assert.Equal(t, 2, ft.linkCount())

	require.NoError(t, tester.Close())
}

func TestTesterStopWhileConnected(t *testing.T) {
	ft := &fakeTransport{
		devices: []Advertisement{{Name: "J7-C", Address: "AA:04"}},
	}
	tester := newTestTester(t, ft)

	sub, _ := tester.Subscribe()
	tester.Start()

	assert.Equal(t, StateScanning, nextState(t, sub).State)
	assert.Equal(t, StateConnecting, nextState(t, sub).State)
	assert.Equal(t, StateConnected, nextState(t, sub).State)

	require.NoError(t, tester.Close())

	lnk := ft.link(0)
	lnk.mu.Lock()
	defer lnk.mu.Unlock()
	assert.True(t, lnk.unsubscribed)
	assert.True(t, lnk.closed)
	assert.Equal(t, StateStopped, tester.ConnectionStatus().State)
}

func TestTesterDecodeFailureKeepsStreaming(t *testing.T) {
	ft := &fakeTransport{
		devices: []Advertisement{{Name: "UC96", Address: "AA:05"}},
	}
	tester := newTestTester(t, ft)

	sub, _ := tester.Subscribe()
	tester.Start()

	assert.Equal(t, StateScanning, nextState(t, sub).State)
	assert.Equal(t, StateConnecting, nextState(t, sub).State)
	assert.Equal(t, StateConnected, nextState(t, sub).State)

	lnk := ft.link(0)
	lnk.inject([]byte{0x01, 0x02, 0x03})  // wrong length
	lnk.inject(make([]byte, frameLength)) // bad magic
	lnk.inject(makeFrame(LayoutV1, frameFields{voltage: 123}))

	m := nextMeasurement(t, sub)
	assert.InDelta(t, 1.23, m.Voltage, 0.01)

	decoded, dropped := tester.FrameStats()
	assert.EqualValues(t, 1, decoded)
	assert.EqualValues(t, 2, dropped)
	assert.Equal(t, StateConnected, tester.ConnectionStatus().State)

	require.NoError(t, tester.Close())
}

func TestTesterMatchDevice(t *testing.T) {
	tester := &Tester{deviceNames: []string{"UC96", "J7-C"}}

	assert.True(t, tester.matchDevice(Advertisement{Name: "J7-C-1234"}))
	assert.True(t, tester.matchDevice(Advertisement{Name: "UC96_BLE"}))
	assert.False(t, tester.matchDevice(Advertisement{Name: "UD18"}))
	assert.False(t, tester.matchDevice(Advertisement{Name: ""}))

	tester.deviceID = "aa:bb:cc"
	assert.True(t, tester.matchDevice(Advertisement{Name: "other", Address: "AA:BB:CC"}))
	assert.False(t, tester.matchDevice(Advertisement{Name: "J7-C-1234", Address: "AA:00"}))
}

func TestTesterCloseWithoutStart(t *testing.T) {
	tester := newTestTester(t, &fakeTransport{})
	require.NoError(t, tester.Close())
	assert.Equal(t, StateStopped, tester.ConnectionStatus().State)
}
