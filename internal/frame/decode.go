package frame

import (
	"encoding/hex"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

const (
	// DataMarker prefixes a received packet line. The trailing space keeps the
	// module's "+TEST: RXLRPKT" acknowledgement out of the data path.
	DataMarker = "+TEST: RX "

	// TelemetryFields is the exact number of ';'-separated values in a payload.
	TelemetryFields = 7
)

var (
	payloadPattern = regexp.MustCompile(`"([0-9A-Fa-f]+)"`)
	statusPattern  = regexp.MustCompile(`\+TEST: LEN:(\d+), RSSI:(-?\d+), SNR:(-?\d+)`)
)

// Decode classifies line and parses it. It never panics; any rejected input
// yields KindUnrecognized.
func Decode(line string) Frame {
	line = strings.TrimSpace(line)
	if line == "" {
		return Frame{}
	}
	if strings.HasPrefix(line, DataMarker) {
		t, err := decodeTelemetry(line)
		if err != nil {
			return Frame{Reason: err}
		}
		return Frame{Kind: KindTelemetry, Telemetry: t}
	}
	x, ok, err := decodeTransmission(line)
	if err != nil {
		return Frame{Reason: err}
	}
	if !ok {
		return Frame{}
	}
	return Frame{Kind: KindTransmission, Transmission: x}
}

func decodeTelemetry(line string) (Telemetry, error) {
	m := payloadPattern.FindStringSubmatch(line)
	if m == nil {
		return Telemetry{}, fmt.Errorf("%w: missing quoted hex payload", ErrMalformedFrame)
	}
	raw, err := hex.DecodeString(m[1])
	if err != nil {
		return Telemetry{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	// Invalid UTF-8 is replaced rather than rejected; a damaged field then
	// fails the numeric parse below.
	text := strings.TrimSpace(strings.ToValidUTF8(string(raw), "\uFFFD"))
	fields := strings.Split(text, ";")
	switch {
	case len(fields) < TelemetryFields:
		return Telemetry{}, fmt.Errorf("%w: got %d fields, want %d", ErrPartialFieldCount, len(fields), TelemetryFields)
	case len(fields) > TelemetryFields:
		return Telemetry{}, fmt.Errorf("%w: got %d fields, want %d", ErrMalformedFrame, len(fields), TelemetryFields)
	}

	var out Telemetry
	floats := []struct {
		name string
		idx  int
		dst  *float64
	}{
		{"velocity", 0, &out.Velocity},
		{"pitch", 1, &out.Pitch},
		{"roll", 2, &out.Roll},
		{"altitude", 4, &out.Altitude},
		{"latitude", 5, &out.Latitude},
		{"longitude", 6, &out.Longitude},
	}
	for _, f := range floats {
		v, err := parseFinite(fields[f.idx])
		if err != nil {
			return Telemetry{}, fmt.Errorf("%w: %s: %v", ErrNumericParse, f.name, err)
		}
		*f.dst = v
	}

	status, err := strconv.ParseUint(strings.TrimSpace(fields[3]), 10, 32)
	if err != nil {
		return Telemetry{}, fmt.Errorf("%w: status: %v", ErrNumericParse, err)
	}
	out.Status = uint32(status)
	return out, nil
}

// decodeTransmission reports ok=false for lines that are not link reports.
func decodeTransmission(line string) (Transmission, bool, error) {
	m := statusPattern.FindStringSubmatch(line)
	if m == nil {
		return Transmission{}, false, nil
	}
	n, err := strconv.ParseUint(m[1], 10, 32)
	if err != nil {
		return Transmission{}, false, fmt.Errorf("%w: len: %v", ErrNumericParse, err)
	}
	rssi, err := strconv.Atoi(m[2])
	if err != nil {
		return Transmission{}, false, fmt.Errorf("%w: rssi: %v", ErrNumericParse, err)
	}
	snr, err := strconv.Atoi(m[3])
	if err != nil {
		return Transmission{}, false, fmt.Errorf("%w: snr: %v", ErrNumericParse, err)
	}
	return Transmission{Len: uint32(n), RSSI: rssi, SNR: snr}, true, nil
}

func parseFinite(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("non-finite value %q", s)
	}
	return v, nil
}
