package btj7c

import (
	"encoding/binary"
	"errors"
	"time"
)

const (
	frameLength = 36

	magicByte0 = 0xFF
	magicByte1 = 0x55
)

var (

	// ErrWrongLength is returned if a frame is not exactly 36 bytes long
	ErrWrongLength = errors.New("invalid frame length")

	// ErrBadMagic is returned if a frame does not start with the magic marker
	ErrBadMagic = errors.New("invalid frame magic marker")

	// ErrChecksum is returned if an enabled checksum verifier rejected a frame
	ErrChecksum = errors.New("frame checksum mismatch")
)

// ChecksumFunc verifies the integrity of a complete frame. It receives the
// full 36 bytes (including magic marker) and reports pass / fail
type ChecksumFunc func(frame []byte) bool

// AdditiveChecksum validates the trailing frame byte against the sum of all
// payload bytes modulo 256. Some firmware revisions emit this scheme, others
// leave the byte unused, hence verification is opt-in
func AdditiveChecksum(frame []byte) bool {
	if len(frame) != frameLength {
		return false
	}
	var sum byte
	for _, b := range frame[2 : frameLength-1] {
		sum += b
	}
	return sum == frame[frameLength-1]
}

// FrameLayout maps the telemetry fields to their byte offsets within a frame.
// The field widths are fixed by the protocol (3-byte counters for voltage /
// current / charge, 4 bytes for energy and duration, 2 bytes for the rest);
// only the offsets vary between firmware revisions
type FrameLayout struct {
	Voltage     int // 3 bytes, 1/100 V
	Current     int // 3 bytes, 1/100 A
	Charge      int // 3 bytes, mAh
	Energy      int // 4 bytes, 1/100 Wh
	DPlus       int // 2 bytes, 1/100 V
	DMinus      int // 2 bytes, 1/100 V
	Temperature int // 2 bytes, °C
	Duration    int // 4 bytes, days / hours / minutes / seconds
	LVP         int // 2 bytes, 1/100 V
	OCP         int // 2 bytes, 1/100 A
}

var (

	// LayoutV1 denotes the field offsets observed on J7-C / UC96 units
	LayoutV1 = FrameLayout{
		Voltage:     4,
		Current:     7,
		Charge:      10,
		Energy:      13,
		DPlus:       17,
		DMinus:      19,
		Temperature: 21,
		Duration:    23,
		LVP:         30,
		OCP:         32,
	}

	// LayoutV2 denotes the field offsets observed on later firmware revisions,
	// shifted by one byte starting at the cumulative counters
	LayoutV2 = FrameLayout{
		Voltage:     4,
		Current:     7,
		Charge:      11,
		Energy:      14,
		DPlus:       18,
		DMinus:      20,
		Temperature: 22,
		Duration:    24,
		LVP:         31,
		OCP:         33,
	}
)

// FrameDecoder converts raw notification payloads into measurements. The zero
// value decodes nothing useful; populate Layout (and optionally Verify) first
type FrameDecoder struct {
	Layout FrameLayout

	// Verify is an optional checksum verifier, disabled if nil
	Verify ChecksumFunc
}

// Decode parses a single 36-byte frame into a Measurement. The capture time
// is supplied by the caller so that decoding stays deterministic. Decode has
// no side effects and never panics on malformed input
func (d FrameDecoder) Decode(data []byte, at time.Time) (*Measurement, error) {
	if len(data) != frameLength {
		return nil, ErrWrongLength
	}
	if data[0] != magicByte0 || data[1] != magicByte1 {
		return nil, ErrBadMagic
	}
	if d.Verify != nil && !d.Verify(data) {
		return nil, ErrChecksum
	}

	l := d.Layout
	v := float64(uint24(data, l.Voltage)) / 100
	i := float64(uint24(data, l.Current)) / 100

	m := &Measurement{
		TimeStamp:   at,
		Voltage:     v,
		Current:     i,
		Power:       v * i,
		Charge:      float64(uint24(data, l.Charge)),
		Energy:      float64(binary.BigEndian.Uint32(data[l.Energy : l.Energy+4])) / 100,
		DPlus:       float64(binary.BigEndian.Uint16(data[l.DPlus : l.DPlus+2])) / 100,
		DMinus:      float64(binary.BigEndian.Uint16(data[l.DMinus : l.DMinus+2])) / 100,
		Temperature: int(binary.BigEndian.Uint16(data[l.Temperature : l.Temperature+2])),
		Duration:    sessionDuration(data[l.Duration : l.Duration+4]),
		LVP:         float64(binary.BigEndian.Uint16(data[l.LVP : l.LVP+2])) / 100,
		OCP:         float64(binary.BigEndian.Uint16(data[l.OCP : l.OCP+2])) / 100,
		Raw:         append([]byte(nil), data...),
	}

	// Resistance is reported as zero at zero current (not an error, not Inf)
	if i > 0 {
		m.Resistance = v / i
	}

	return m, nil
}

func uint24(data []byte, offset int) uint32 {
	return uint32(data[offset])<<16 | uint32(data[offset+1])<<8 | uint32(data[offset+2])
}

func sessionDuration(b []byte) time.Duration {
	return time.Duration(b[0])*24*time.Hour +
		time.Duration(b[1])*time.Hour +
		time.Duration(b[2])*time.Minute +
		time.Duration(b[3])*time.Second
}
