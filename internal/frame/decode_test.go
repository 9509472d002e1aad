package frame

import (
	"bytes"
	"encoding/hex"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func dataLine(payload string) string {
	return `+TEST: RX "` + strings.ToUpper(hex.EncodeToString([]byte(payload))) + `"`
}

func TestDecode_TelemetryRoundTrip(t *testing.T) {
	f := Decode(dataLine("12.5;3.2;-1.0;3;150.0;52.2549;20.9004"))
	if f.Kind != KindTelemetry {
		t.Fatalf("kind=%s want telemetry (reason=%v)", f.Kind, f.Reason)
	}
	want := Telemetry{Velocity: 12.5, Pitch: 3.2, Roll: -1.0, Status: 3, Altitude: 150.0, Latitude: 52.2549, Longitude: 20.9004}
	if f.Telemetry != want {
		t.Fatalf("telemetry=%+v want %+v", f.Telemetry, want)
	}
	if f.Reason != nil {
		t.Fatalf("unexpected reason: %v", f.Reason)
	}
}

func TestDecode_TelemetryToleratesWhitespace(t *testing.T) {
	f := Decode("  " + dataLine(" 1.0; 2.0 ;3.0;0;4.0;5.0;6.0\r\n") + "\r\n")
	if f.Kind != KindTelemetry {
		t.Fatalf("kind=%s want telemetry (reason=%v)", f.Kind, f.Reason)
	}
	if f.Telemetry.Pitch != 2.0 || f.Telemetry.Longitude != 6.0 {
		t.Fatalf("unexpected telemetry %+v", f.Telemetry)
	}
}

func TestDecode_RejectsBadDataFrames(t *testing.T) {
	cases := []struct {
		name string
		line string
		want error
	}{
		{"FewerFields", dataLine("12.5;3.2;-1.0;3;150.0;52.2549"), ErrPartialFieldCount},
		{"SingleField", dataLine("12.5"), ErrPartialFieldCount},
		{"ExtraFields", dataLine("1;2;3;4;5;6;7;8"), ErrMalformedFrame},
		{"TrailingSeparator", dataLine("1;2;3;4;5;6;7;"), ErrMalformedFrame},
		{"NotANumber", dataLine("fast;3.2;-1.0;3;150.0;52.2549;20.9004"), ErrNumericParse},
		{"FractionalStatus", dataLine("12.5;3.2;-1.0;3.5;150.0;52.2549;20.9004"), ErrNumericParse},
		{"NegativeStatus", dataLine("12.5;3.2;-1.0;-3;150.0;52.2549;20.9004"), ErrNumericParse},
		{"NaN", dataLine("NaN;3.2;-1.0;3;150.0;52.2549;20.9004"), ErrNumericParse},
		{"Inf", dataLine("12.5;+Inf;-1.0;3;150.0;52.2549;20.9004"), ErrNumericParse},
		{"MissingPayload", `+TEST: RX 12AB`, ErrMalformedFrame},
		{"EmptyQuotes", `+TEST: RX ""`, ErrMalformedFrame},
		{"OddHex", `+TEST: RX "313"`, ErrMalformedFrame},
		{"InvalidUTF8", `+TEST: RX "FF3B323B333B343B353B363B37"`, ErrNumericParse},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := Decode(tc.line)
			if f.Kind != KindUnrecognized {
				t.Fatalf("kind=%s want unrecognized", f.Kind)
			}
			if f.Telemetry != (Telemetry{}) {
				t.Fatalf("partially filled telemetry: %+v", f.Telemetry)
			}
			if !errors.Is(f.Reason, tc.want) {
				t.Fatalf("reason=%v want %v", f.Reason, tc.want)
			}
		})
	}
}

func TestDecode_TransmissionPreservesSigns(t *testing.T) {
	cases := []struct {
		line string
		want Transmission
	}{
		{"+TEST: LEN:12, RSSI:-91, SNR:-3", Transmission{Len: 12, RSSI: -91, SNR: -3}},
		{"+TEST: LEN:38, RSSI:-40, SNR:9", Transmission{Len: 38, RSSI: -40, SNR: 9}},
		{"+TEST: LEN:0, RSSI:0, SNR:0", Transmission{}},
	}
	for _, tc := range cases {
		f := Decode(tc.line)
		if f.Kind != KindTransmission {
			t.Fatalf("%q: kind=%s want transmission", tc.line, f.Kind)
		}
		if f.Transmission != tc.want {
			t.Fatalf("%q: got %+v want %+v", tc.line, f.Transmission, tc.want)
		}
	}
}

func TestDecode_TransmissionOverflowIsRejected(t *testing.T) {
	f := Decode("+TEST: LEN:99999999999, RSSI:-91, SNR:-3")
	if f.Kind != KindUnrecognized || !errors.Is(f.Reason, ErrNumericParse) {
		t.Fatalf("kind=%s reason=%v", f.Kind, f.Reason)
	}
}

func TestDecode_ChatterIsSilentlyUnrecognized(t *testing.T) {
	for _, line := range []string{
		"",
		"+AT: OK",
		"+MODE: TEST",
		"+TEST: RXLRPKT",
		`+TEST: RFCFG F:868000000, SF10, BW125K, TXPR:12, RXPR:15, POW:14dBm, CRC:ON, IQ:OFF, NET:OFF`,
		"garbage \x00\xff",
	} {
		f := Decode(line)
		if f.Kind != KindUnrecognized {
			t.Fatalf("%q: kind=%s want unrecognized", line, f.Kind)
		}
		if f.Reason != nil {
			t.Fatalf("%q: unexpected reason %v", line, f.Reason)
		}
	}
}

func TestDecoder_RateLimitsWarnings(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
	d := NewDecoder(WithLogger(logger), WithWarnLimit(time.Hour, 2))

	bad := dataLine("1;2;3")
	for i := 0; i < 5; i++ {
		if f := d.Decode(bad); f.Kind != KindUnrecognized {
			t.Fatalf("kind=%s want unrecognized", f.Kind)
		}
	}
	if got := strings.Count(buf.String(), "discarding frame"); got != 2 {
		t.Fatalf("warnings=%d want 2\n%s", got, buf.String())
	}
	if d.suppressed != 3 {
		t.Fatalf("suppressed=%d want 3", d.suppressed)
	}
}

func TestDecoder_PassesThroughGoodFrames(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
	d := NewDecoder(WithLogger(logger))

	if f := d.Decode("+TEST: LEN:12, RSSI:-91, SNR:-3"); f.Kind != KindTransmission {
		t.Fatalf("kind=%s want transmission", f.Kind)
	}
	if buf.Len() != 0 {
		t.Fatalf("unexpected log output: %s", buf.String())
	}
}
