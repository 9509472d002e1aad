package flight

import (
	"fmt"
	"strings"
)

// Flag is a bit index into the telemetry status word.
//
// Bit 2 has carried different meanings across flight computer firmware
// revisions; this table treats it as engine active. Payloads that disagree
// should be flagged rather than remapped here.
type Flag uint8

const (
	FlagCalibration Flag = iota // bit 0
	FlagStart                   // bit 1, launch detected
	FlagEngine                  // bit 2, engine burning
	FlagApogee                  // bit 3
	FlagRecovery                // bit 4, recovery system deployed
	FlagDescent                 // bit 5, descent / landing

	numFlags = 6
)

var flagNames = [numFlags]string{
	"calibration",
	"start",
	"engine",
	"apogee",
	"recovery",
	"descent",
}

// Flags lists every known flag in bit order.
func Flags() []Flag {
	out := make([]Flag, numFlags)
	for i := range out {
		out[i] = Flag(i)
	}
	return out
}

func (f Flag) String() string {
	if int(f) < numFlags {
		return flagNames[f]
	}
	return fmt.Sprintf("bit%d", uint8(f))
}

func (f Flag) mask() uint32 { return 1 << f }

// StatusFlags is a read-only view over a telemetry status word.
type StatusFlags uint32

func (s StatusFlags) Has(f Flag) bool {
	return int(f) < numFlags && uint32(s)&f.mask() != 0
}

// Set returns the known flags present in s, in bit order.
func (s StatusFlags) Set() []Flag {
	var out []Flag
	for _, f := range Flags() {
		if s.Has(f) {
			out = append(out, f)
		}
	}
	return out
}

func (s StatusFlags) String() string {
	set := s.Set()
	if len(set) == 0 {
		return "none"
	}
	names := make([]string, len(set))
	for i, f := range set {
		names[i] = f.String()
	}
	return strings.Join(names, "|")
}
