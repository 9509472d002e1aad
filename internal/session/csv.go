package session

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/sioly123/Lazarus-Ground-Station/internal/fusion"
)

// CSVHeader is the column order of telemetry_data.csv.
var CSVHeader = []string{
	"timestamp", "velocity", "pitch", "roll", "status",
	"altitude", "latitude", "longitude", "len", "rssi", "snr",
}

// CSVWriter appends combined records to the session's telemetry_data.csv.
// Every row is flushed so the file survives an abrupt stop.
type CSVWriter struct {
	mu     sync.Mutex
	f      *os.File
	w      *csv.Writer
	rows   uint64
	closed bool
}

func NewCSVWriter(s *Session) (*CSVWriter, error) {
	return CreateCSV(s.Path(CSVFileName))
}

// CreateCSV truncates path and writes the header.
func CreateCSV(path string) (*CSVWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create csv: %w", err)
	}
	w := csv.NewWriter(f)
	w.Comma = ';'
	if err := w.Write(CSVHeader); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	return &CSVWriter{f: f, w: w}, nil
}

func (c *CSVWriter) Write(rec fusion.CombinedRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("csv writer is closed")
	}
	if err := c.w.Write(csvRow(rec)); err != nil {
		return err
	}
	c.w.Flush()
	if err := c.w.Error(); err != nil {
		return err
	}
	c.rows++
	return nil
}

// Rows returns the number of data rows written.
func (c *CSVWriter) Rows() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rows
}

func (c *CSVWriter) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.w.Flush()
	if err := c.w.Error(); err != nil {
		_ = c.f.Close()
		return err
	}
	return c.f.Close()
}

func csvRow(rec fusion.CombinedRecord) []string {
	t, x := rec.Telemetry, rec.Transmission
	return []string{
		rec.Timestamp.UTC().Format(time.RFC3339Nano),
		formatFloat(t.Velocity),
		formatFloat(t.Pitch),
		formatFloat(t.Roll),
		strconv.FormatUint(uint64(t.Status), 10),
		formatFloat(t.Altitude),
		formatFloat(t.Latitude),
		formatFloat(t.Longitude),
		strconv.FormatUint(uint64(x.Len), 10),
		strconv.Itoa(x.RSSI),
		strconv.Itoa(x.SNR),
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
