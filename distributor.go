package btj7c

import (
	"sync"
	"sync/atomic"
)

// defaultQueueSize bounds the per-subscriber event queue
const defaultQueueSize = 64

// Subscription is the handle of a single attached observer. Events are
// received via Events(); the channel is closed on unsubscribe or eviction
type Subscription struct {
	events chan Event

	sent    uint64
	dropped uint64
}

// Events returns the subscriber's event stream
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Stats returns the number of events delivered to and dropped from this
// subscription's queue
func (s *Subscription) Stats() (sent, dropped uint64) {
	return atomic.LoadUint64(&s.sent), atomic.LoadUint64(&s.dropped)
}

// send enqueues without ever blocking. A full queue drops its oldest entry
// first, keeping the most recent reading visible to a slow consumer
func (s *Subscription) send(ev Event) bool {
	select {
	case s.events <- ev:
		atomic.AddUint64(&s.sent, 1)
		return true
	default:
	}

	select {
	case <-s.events:
		atomic.AddUint64(&s.dropped, 1)
	default:
	}

	select {
	case s.events <- ev:
		atomic.AddUint64(&s.sent, 1)
		return true
	default:
		return false
	}
}

// Distributor replicates one producer stream to any number of independent
// subscribers. It owns the history ring and the last published status so that
// attach and replay are atomic with respect to publishes
type Distributor struct {
	mu        sync.Mutex
	subs      map[*Subscription]struct{}
	history   *HistoryRing
	status    ConnectionStatus
	queueSize int

	logger Logger
}

// NewDistributor instantiates a distributor with the given history capacity
// and per-subscriber queue size (values < 1 fall back to defaults)
func NewDistributor(historySize, queueSize int, logger Logger) *Distributor {
	if queueSize < 1 {
		queueSize = defaultQueueSize
	}
	if logger == nil {
		logger = &NullLogger{}
	}
	return &Distributor{
		subs:      make(map[*Subscription]struct{}),
		history:   NewHistoryRing(historySize),
		status:    ConnectionStatus{State: StateIdle},
		queueSize: queueSize,
		logger:    logger,
	}
}

// Subscribe attaches a new observer and returns its handle together with a
// snapshot of the current status and the full history backlog. Registration
// and snapshot are atomic, so the event stream continues seamlessly where the
// snapshot ends
func (d *Distributor) Subscribe() (*Subscription, Snapshot) {
	d.mu.Lock()
	defer d.mu.Unlock()

	sub := &Subscription{
		events: make(chan Event, d.queueSize),
	}
	d.subs[sub] = struct{}{}

	return sub, Snapshot{
		Status:  d.status,
		History: d.history.Snapshot(),
	}
}

// Unsubscribe detaches an observer and closes its event channel. Calling it
// again (or with a handle that was evicted) is a no-op
func (d *Distributor) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.subs[sub]; !ok {
		return
	}
	delete(d.subs, sub)
	close(sub.events)
}

// Publish appends a measurement to the history and fans it out to all live
// subscribers. Delivery is best-effort and never blocks on a slow consumer
func (d *Distributor) Publish(m Measurement) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.history.Append(m)
	d.fanout(Event{Measurement: &m})
}

// PublishStatus records a connection status change and fans it out with the
// same best-effort semantics as Publish
func (d *Distributor) PublishStatus(status ConnectionStatus) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.status = status
	d.fanout(Event{Status: &status})
}

// Status returns the last published connection status
func (d *Distributor) Status() ConnectionStatus {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.status
}

// Close evicts all remaining subscribers and closes their event channels
func (d *Distributor) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for sub := range d.subs {
		delete(d.subs, sub)
		close(sub.events)
	}
}

func (d *Distributor) fanout(ev Event) {
	for sub := range d.subs {
		if sub.send(ev) {
			continue
		}

		// A queue that cannot accept even after dropping its oldest entry is
		// beyond saving: evict the subscriber instead of stalling the producer
		delete(d.subs, sub)
		close(sub.events)
		d.logger.Warnf("evicted unresponsive subscriber (queue size %d)", d.queueSize)
	}
}
