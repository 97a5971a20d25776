package btj7c

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryRingBounds(t *testing.T) {
	r := NewHistoryRing(5)

	for i := 0; i < 12; i++ {
		r.Append(Measurement{Voltage: float64(i)})
		assert.LessOrEqual(t, r.Len(), 5)
	}
	assert.Equal(t, 5, r.Len())
	assert.Equal(t, 5, r.Cap())
}

func TestHistoryRingEvictsOldest(t *testing.T) {
	r := NewHistoryRing(3)

	for i := 1; i <= 4; i++ {
		r.Append(Measurement{Voltage: float64(i)})
	}

	snap := r.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, 2.0, snap[0].Voltage)
	assert.Equal(t, 3.0, snap[1].Voltage)
	assert.Equal(t, 4.0, snap[2].Voltage)
}

func TestHistoryRingSnapshotOrder(t *testing.T) {
	r := NewHistoryRing(10)

	for i := 0; i < 7; i++ {
		r.Append(Measurement{Voltage: float64(i)})
	}

	snap := r.Snapshot()
	require.Len(t, snap, 7)
	for i, m := range snap {
		assert.Equal(t, float64(i), m.Voltage)
	}
}

func TestHistoryRingSnapshotNoAliasing(t *testing.T) {
	r := NewHistoryRing(4)
	r.Append(Measurement{Voltage: 1})

	snap := r.Snapshot()
	snap[0].Voltage = 99

	assert.Equal(t, 1.0, r.Snapshot()[0].Voltage)
}

func TestHistoryRingDefaultCapacity(t *testing.T) {
	assert.Equal(t, defaultHistorySize, NewHistoryRing(0).Cap())
	assert.Equal(t, defaultHistorySize, NewHistoryRing(-3).Cap())
}
