package radio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
)

const (
	CmdAttention = "at"
	CmdTestMode  = "at+mode=test"
	CmdReceive   = "at+test=rxlrpkt"

	commandTerminator = "\r\n"

	// DefaultSettle is the pause after each command while the module replies.
	DefaultSettle = 500 * time.Millisecond
)

// ErrConfigWrite marks a failed command write during Configure.
var ErrConfigWrite = errors.New("radio command write failed")

// RFConfig holds the LoRa test-mode radio parameters.
type RFConfig struct {
	FrequencyMHz    int
	SpreadingFactor int
	BandwidthKHz    int
	TxPreamble      int
	RxPreamble      int
	PowerDBm        int
	CRC             bool
	IQInvert        bool
	Network         bool
}

// NewRFConfig returns the ground station's usual EU868 settings.
func NewRFConfig() RFConfig {
	return RFConfig{
		FrequencyMHz:    868,
		SpreadingFactor: 10,
		BandwidthKHz:    125,
		TxPreamble:      12,
		RxPreamble:      15,
		PowerDBm:        20,
		CRC:             true,
	}
}

func (c RFConfig) Validate() error {
	if c.FrequencyMHz < 150 || c.FrequencyMHz > 960 {
		return fmt.Errorf("frequency_mhz must be within 150..960, got %d", c.FrequencyMHz)
	}
	if c.SpreadingFactor < 7 || c.SpreadingFactor > 12 {
		return fmt.Errorf("spreading_factor must be within 7..12, got %d", c.SpreadingFactor)
	}
	switch c.BandwidthKHz {
	case 125, 250, 500:
	default:
		return fmt.Errorf("bandwidth_khz must be 125, 250 or 500, got %d", c.BandwidthKHz)
	}
	if c.TxPreamble < 1 || c.TxPreamble > 65535 {
		return fmt.Errorf("tx_preamble must be within 1..65535, got %d", c.TxPreamble)
	}
	if c.RxPreamble < 1 || c.RxPreamble > 65535 {
		return fmt.Errorf("rx_preamble must be within 1..65535, got %d", c.RxPreamble)
	}
	if c.PowerDBm < -1 || c.PowerDBm > 22 {
		return fmt.Errorf("power_dbm must be within -1..22, got %d", c.PowerDBm)
	}
	return nil
}

// Command renders the rfcfg command, without terminator.
func (c RFConfig) Command() string {
	return fmt.Sprintf("at+test=rfcfg,%d.000,SF%d,%d,%d,%d,%d,%s,%s,%s",
		c.FrequencyMHz, c.SpreadingFactor, c.BandwidthKHz,
		c.TxPreamble, c.RxPreamble, c.PowerDBm,
		onOff(c.CRC), onOff(c.IQInvert), onOff(c.Network))
}

func (c RFConfig) String() string {
	return fmt.Sprintf("%s SF%d BW%dkHz %ddBm",
		humanize.SIWithDigits(float64(c.FrequencyMHz)*1e6, 3, "Hz"),
		c.SpreadingFactor, c.BandwidthKHz, c.PowerDBm)
}

func onOff(b bool) string {
	if b {
		return "ON"
	}
	return "OFF"
}

// Commands lists the handshake in send order. rf may be nil to keep the
// module's stored radio settings.
func Commands(rf *RFConfig) []string {
	cmds := []string{CmdAttention, CmdTestMode}
	if rf != nil {
		cmds = append(cmds, rf.Command())
	}
	return append(cmds, CmdReceive)
}

// Configure puts the module into continuous LoRa receive. Each command is
// followed by settle, and the input buffer is flushed at the end so command
// echoes never reach the decoder. Replies are not checked.
func Configure(ctx context.Context, w CommandWriter, rf *RFConfig, settle time.Duration, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if rf != nil {
		if err := rf.Validate(); err != nil {
			return fmt.Errorf("radio config: %w", err)
		}
	}

	for _, cmd := range Commands(rf) {
		if _, err := w.Write([]byte(cmd + commandTerminator)); err != nil {
			return fmt.Errorf("%w: %q: %v", ErrConfigWrite, cmd, err)
		}
		logger.Debug("sent radio command", slog.String("command", cmd))
		if !sleepCtx(ctx, settle) {
			return ctx.Err()
		}
	}

	if err := w.ResetInputBuffer(); err != nil {
		return fmt.Errorf("flush input buffer: %w", err)
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
