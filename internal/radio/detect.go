package radio

import (
	"errors"
	"fmt"
	"sort"

	"go.bug.st/serial/enumerator"
)

// PortInfo describes a serial device found on the host.
type PortInfo struct {
	Name    string
	USB     bool
	VID     string
	PID     string
	Serial  string
	Product string
}

func (p PortInfo) String() string {
	if !p.USB {
		return p.Name
	}
	s := fmt.Sprintf("%s [USB %s:%s]", p.Name, p.VID, p.PID)
	if p.Product != "" {
		s += " " + p.Product
	}
	return s
}

var errNoPorts = errors.New("no serial ports found")

var listDetailed = enumerator.GetDetailedPortsList

// ListPorts returns the host's serial devices, USB adapters first.
func ListPorts() ([]PortInfo, error) {
	details, err := listDetailed()
	if err != nil {
		return nil, fmt.Errorf("enumerate serial ports: %w", err)
	}
	return portInfos(details), nil
}

// DetectPort picks the first USB serial device, falling back to the first
// device of any kind.
func DetectPort() (string, error) {
	ports, err := ListPorts()
	if err != nil {
		return "", err
	}
	if len(ports) == 0 {
		return "", errNoPorts
	}
	return ports[0].Name, nil
}

func portInfos(details []*enumerator.PortDetails) []PortInfo {
	out := make([]PortInfo, 0, len(details))
	for _, d := range details {
		if d == nil || d.Name == "" {
			continue
		}
		out = append(out, PortInfo{
			Name:    d.Name,
			USB:     d.IsUSB,
			VID:     d.VID,
			PID:     d.PID,
			Serial:  d.SerialNumber,
			Product: d.Product,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].USB && !out[j].USB
	})
	return out
}
