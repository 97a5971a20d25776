//go:generate stringer -type=State -trimprefix=State
//go:generate stringer -type=Reason -trimprefix=Reason
package btj7c

import (
	"encoding/hex"
	"fmt"
	"time"
)

// State denotes a connection state
type State int

const (

	// StateIdle is active after instantiation, before the tester has been started
	StateIdle State = iota

	// StateScanning is active while scanning for a bluetooth device
	StateScanning

	// StateConnecting is active while establishing a connection to the tester
	StateConnecting

	// StateConnected is active while being connected to the tester
	StateConnected

	// StateDisconnected is active after being disconnected from the tester
	StateDisconnected

	// StateStopped is active after the tester has been stopped for good
	StateStopped
)

// Reason denotes why a connection was lost or could not be established
type Reason int

const (

	// ReasonNone denotes the absence of a failure
	ReasonNone Reason = iota

	// ReasonNotFound is set after a scan ended without a matching device
	ReasonNotFound

	// ReasonConnectFailed is set after a connection attempt failed
	ReasonConnectFailed

	// ReasonLinkLost is set after an established connection dropped
	ReasonLinkLost

	// ReasonAdapterUnavailable is set if the local bluetooth adapter is not usable
	ReasonAdapterUnavailable
)

// ConnectionStatus denotes the current status of the bluetooth device
type ConnectionStatus struct {
	Reason Reason
	Err    error
	State
}

// String fulfils the Stringer interface
func (s ConnectionStatus) String() string {
	if s.Reason == ReasonNone {
		return s.State.String()
	}
	if s.Err != nil {
		return fmt.Sprintf("%s (%s: %s)", s.State, s.Reason, s.Err)
	}
	return fmt.Sprintf("%s (%s)", s.State, s.Reason)
}

// Measurement denotes a single decoded telemetry frame at a certain point in time
type Measurement struct {
	TimeStamp time.Time

	Voltage    float64 // V
	Current    float64 // A
	Power      float64 // W, always recomputed from voltage * current
	Resistance float64 // Ohm, zero at zero current

	Charge float64 // mAh, cumulative session counter
	Energy float64 // Wh, cumulative session counter

	DPlus  float64 // V, USB data line
	DMinus float64 // V, USB data line

	Temperature int // °C, device units
	Duration    time.Duration

	LVP float64 // V, low voltage protection threshold
	OCP float64 // A, over current protection threshold

	Raw []byte // original frame, retained for diagnostics
}

// String fulfils the Stringer interface
func (m *Measurement) String() string {
	return fmt.Sprintf("%.2fV %.2fA %.2fW (%.0f mAh / %.2f Wh, %d°C)",
		m.Voltage, m.Current, m.Power, m.Charge, m.Energy, m.Temperature)
}

// RawHex returns the original frame as hex string
func (m *Measurement) RawHex() string {
	return hex.EncodeToString(m.Raw)
}

// Measurements denotes a set of measurements (usually part of a logging session)
type Measurements []Measurement

// FieldNames lists the serialization field names of a Measurement in record
// order. Collaborators writing tabular output use them as header row
var FieldNames = []string{
	"timestamp",
	"voltage",
	"current",
	"power",
	"resistance",
	"mAh",
	"Wh",
	"d_plus",
	"d_minus",
	"temperature",
	"duration",
	"lvp",
	"ocp",
	"raw_hex",
}

// Event denotes a single element of a subscription stream. Exactly one of the
// two fields is set
type Event struct {
	Measurement *Measurement
	Status      *ConnectionStatus
}

// Snapshot denotes the initial state handed to a new subscriber: the
// connection status and the history backlog at the time of attach
type Snapshot struct {
	Status  ConnectionStatus
	History Measurements
}
