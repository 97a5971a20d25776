package btj7c

// defaultHistorySize covers roughly one hour of telemetry at 1 Hz
const defaultHistorySize = 3600

// HistoryRing is a bounded, time-ordered buffer of recent measurements. When
// full, appending evicts the oldest entry. It is not safe for concurrent use
// by itself; the Distributor guards all access with its own lock
type HistoryRing struct {
	buf   []Measurement
	head  int
	count int
}

// NewHistoryRing instantiates a ring with the given capacity (values < 1
// fall back to the default of 3600 entries)
func NewHistoryRing(capacity int) *HistoryRing {
	if capacity < 1 {
		capacity = defaultHistorySize
	}
	return &HistoryRing{
		buf: make([]Measurement, capacity),
	}
}

// Append adds a measurement, evicting the oldest entry if the ring is full
func (r *HistoryRing) Append(m Measurement) {
	r.buf[(r.head+r.count)%len(r.buf)] = m
	if r.count < len(r.buf) {
		r.count++
		return
	}
	r.head = (r.head + 1) % len(r.buf)
}

// Snapshot returns an oldest-to-newest copy of the ring contents. The copy
// does not alias the live buffer and is safe to hand out
func (r *HistoryRing) Snapshot() Measurements {
	out := make(Measurements, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.buf[(r.head+i)%len(r.buf)]
	}
	return out
}

// Len returns the number of buffered measurements
func (r *HistoryRing) Len() int {
	return r.count
}

// Cap returns the ring capacity
func (r *HistoryRing) Cap() int {
	return len(r.buf)
}
