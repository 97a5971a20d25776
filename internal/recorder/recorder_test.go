package recorder_test

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fako1024/btj7c"
	"github.com/fako1024/btj7c/internal/recorder"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.csv")

	rec, err := recorder.New(path)
	require.NoError(t, err)

	m := btj7c.Measurement{
		TimeStamp:   time.Date(2024, 4, 2, 12, 0, 0, 0, time.UTC),
		Voltage:     5,
		Current:     10,
		Power:       50,
		Resistance:  0.5,
		Charge:      789,
		Energy:      10.11,
		DPlus:       3.21,
		DMinus:      0.12,
		Temperature: 25,
		Duration:    26*time.Hour + 3*time.Minute + 4*time.Second,
		LVP:         4.5,
		OCP:         9,
		Raw:         []byte{0xFF, 0x55},
	}
	require.NoError(t, rec.Record(m))

	m.Voltage = 4.99
	require.NoError(t, rec.Record(m))
	require.NoError(t, rec.Close())

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	rows, err := csv.NewReader(file).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, btj7c.FieldNames, rows[0])
	assert.Equal(t, []string{
		"2024-04-02T12:00:00Z",
		"5.00", "10.00", "50.00", "0.50",
		"789", "10.11",
		"3.21", "0.12",
		"25", "26h3m4s",
		"4.50", "9.00",
		"ff55",
	}, rows[1])
	assert.Equal(t, "4.99", rows[2][1])
}
