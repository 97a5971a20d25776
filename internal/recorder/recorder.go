// Package recorder persists measurements as an append-only CSV log with a
// header row matching the stable serialization field names
package recorder

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/fako1024/btj7c"
)

// Recorder writes one CSV record per measurement, flushing after every row so
// a crash loses at most the record being written
type Recorder struct {
	mu          sync.Mutex
	file        *os.File
	writer      *csv.Writer
	wroteHeader bool
}

// New creates (or truncates) the CSV file at path
func New(path string) (*Recorder, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create CSV file: %w", err)
	}

	return &Recorder{
		file:   file,
		writer: csv.NewWriter(file),
	}, nil
}

// Record appends one measurement, writing the header row first if needed
func (r *Recorder) Record(m btj7c.Measurement) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.wroteHeader {
		if err := r.writer.Write(btj7c.FieldNames); err != nil {
			return fmt.Errorf("failed to write CSV header: %w", err)
		}
		r.wroteHeader = true
	}

	if err := r.writer.Write(record(m)); err != nil {
		return fmt.Errorf("failed to write CSV record: %w", err)
	}
	r.writer.Flush()

	return r.writer.Error()
}

// Close flushes pending data and closes the underlying file
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.writer.Flush()
	if err := r.writer.Error(); err != nil {
		r.file.Close()
		return err
	}
	return r.file.Close()
}

// record formats a measurement in FieldNames order
func record(m btj7c.Measurement) []string {
	return []string{
		m.TimeStamp.Format(time.RFC3339),
		strconv.FormatFloat(m.Voltage, 'f', 2, 64),
		strconv.FormatFloat(m.Current, 'f', 2, 64),
		strconv.FormatFloat(m.Power, 'f', 2, 64),
		strconv.FormatFloat(m.Resistance, 'f', 2, 64),
		strconv.FormatFloat(m.Charge, 'f', 0, 64),
		strconv.FormatFloat(m.Energy, 'f', 2, 64),
		strconv.FormatFloat(m.DPlus, 'f', 2, 64),
		strconv.FormatFloat(m.DMinus, 'f', 2, 64),
		strconv.Itoa(m.Temperature),
		m.Duration.String(),
		strconv.FormatFloat(m.LVP, 'f', 2, 64),
		strconv.FormatFloat(m.OCP, 'f', 2, 64),
		m.RawHex(),
	}
}
