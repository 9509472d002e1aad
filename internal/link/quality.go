package link

import "fmt"

// Thresholds are inclusive: a link at exactly GoodSNR and GoodRSSI is Good.
const (
	GoodSNR  = 5   // dB
	GoodRSSI = -80 // dBm
)

type Quality uint8

const (
	Average Quality = iota
	Good
	Weak
)

// Classify grades a link from the radio's SNR (dB) and RSSI (dBm). Both
// metrics must clear their threshold for Good and both must miss for Weak.
func Classify(snr, rssi int) Quality {
	snrOK := snr >= GoodSNR
	rssiOK := rssi >= GoodRSSI
	switch {
	case snrOK && rssiOK:
		return Good
	case !snrOK && !rssiOK:
		return Weak
	default:
		return Average
	}
}

func (q Quality) String() string {
	switch q {
	case Good:
		return "good"
	case Weak:
		return "weak"
	default:
		return "average"
	}
}

func (q Quality) MarshalText() ([]byte, error) {
	return []byte(q.String()), nil
}

func (q *Quality) UnmarshalText(b []byte) error {
	switch string(b) {
	case "good":
		*q = Good
	case "average":
		*q = Average
	case "weak":
		*q = Weak
	default:
		return fmt.Errorf("unknown link quality %q", string(b))
	}
	return nil
}
