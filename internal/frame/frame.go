// Package frame decodes the ASCII status lines printed by a LoRa module
// running in vendor test mode.
//
// Two line shapes carry data:
//
//	+TEST: RX "<hex>"                          received packet payload
//	+TEST: LEN:<uint>, RSSI:<int>, SNR:<int>   link statistics for a packet
//
// Everything else the module prints (command echoes, "+TEST: RXLRPKT",
// boot banners) is reported as Unrecognized without a reason.
package frame

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedFrame marks a data frame whose payload could not be extracted
	// or hex decoded, or which carried more fields than a telemetry record.
	ErrMalformedFrame = errors.New("malformed frame")

	// ErrPartialFieldCount marks a data frame with fewer than TelemetryFields fields.
	ErrPartialFieldCount = errors.New("partial field count")

	// ErrNumericParse marks a frame with a field that is not a finite number.
	ErrNumericParse = errors.New("numeric parse failure")
)

type Kind int

const (
	KindUnrecognized Kind = iota
	KindTelemetry
	KindTransmission
)

func (k Kind) String() string {
	switch k {
	case KindTelemetry:
		return "telemetry"
	case KindTransmission:
		return "transmission"
	default:
		return "unrecognized"
	}
}

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *Kind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "telemetry":
		*k = KindTelemetry
	case "transmission":
		*k = KindTransmission
	case "unrecognized":
		*k = KindUnrecognized
	default:
		return fmt.Errorf("unknown frame kind %q", b)
	}
	return nil
}

// Telemetry is one flight computer sample. Velocity is m/s, angles are
// degrees, altitude is meters.
type Telemetry struct {
	Velocity  float64 `json:"velocity"`
	Pitch     float64 `json:"pitch"`
	Roll      float64 `json:"roll"`
	Status    uint32  `json:"status"`
	Altitude  float64 `json:"altitude"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Transmission is the link report the radio prints for each received packet.
type Transmission struct {
	Len  uint32 `json:"len"`
	RSSI int    `json:"rssi"`
	SNR  int    `json:"snr"`
}

// Frame is the result of decoding one line. Only the member selected by Kind
// is meaningful. Reason is set when a line looked like data but was rejected.
type Frame struct {
	Kind         Kind
	Telemetry    Telemetry
	Transmission Transmission
	Reason       error
}
