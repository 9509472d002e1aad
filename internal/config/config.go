package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sioly123/Lazarus-Ground-Station/internal/radio"
	"github.com/sioly123/Lazarus-Ground-Station/internal/receiver"
)

type Config struct {
	Serial   SerialConfig   `yaml:"serial"`
	Radio    RadioConfig    `yaml:"radio"`
	Receiver ReceiverConfig `yaml:"receiver"`
	Session  SessionConfig  `yaml:"session"`
	Forward  ForwardConfig  `yaml:"forward"`
	Capture  CaptureConfig  `yaml:"capture"`
	Log      LogConfig      `yaml:"log"`
}

type SerialConfig struct {
	// Port may be empty to auto-detect the first USB serial adapter.
	Port         string        `yaml:"port"`
	Baud         int           `yaml:"baud"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	MaxLineBytes int           `yaml:"max_line_bytes"`
}

type RadioConfig struct {
	// Configure sends the receive-mode handshake at startup. Defaults to true.
	Configure *bool         `yaml:"configure"`
	Settle    time.Duration `yaml:"settle"`
	// RF is optional; when absent the module keeps its stored settings.
	RF *RFConfig `yaml:"rf"`
}

type RFConfig struct {
	FrequencyMHz    int  `yaml:"frequency_mhz"`
	SpreadingFactor int  `yaml:"spreading_factor"`
	BandwidthKHz    int  `yaml:"bandwidth_khz"`
	TxPreamble      int  `yaml:"tx_preamble"`
	RxPreamble      int  `yaml:"rx_preamble"`
	PowerDBm        int  `yaml:"power_dbm"`
	CRC             bool `yaml:"crc"`
	IQInvert        bool `yaml:"iq_invert"`
	Network         bool `yaml:"network"`
}

// UnmarshalYAML starts from the default radio settings so a partial rf
// section only overrides what it names.
func (c *RFConfig) UnmarshalYAML(value *yaml.Node) error {
	type plain RFConfig
	d := radio.NewRFConfig()
	p := plain{
		FrequencyMHz:    d.FrequencyMHz,
		SpreadingFactor: d.SpreadingFactor,
		BandwidthKHz:    d.BandwidthKHz,
		TxPreamble:      d.TxPreamble,
		RxPreamble:      d.RxPreamble,
		PowerDBm:        d.PowerDBm,
		CRC:             d.CRC,
		IQInvert:        d.IQInvert,
		Network:         d.Network,
	}
	if err := value.Decode(&p); err != nil {
		return err
	}
	*c = RFConfig(p)
	return nil
}

func (c RFConfig) Radio() radio.RFConfig {
	return radio.RFConfig{
		FrequencyMHz:    c.FrequencyMHz,
		SpreadingFactor: c.SpreadingFactor,
		BandwidthKHz:    c.BandwidthKHz,
		TxPreamble:      c.TxPreamble,
		RxPreamble:      c.RxPreamble,
		PowerDBm:        c.PowerDBm,
		CRC:             c.CRC,
		IQInvert:        c.IQInvert,
		Network:         c.Network,
	}
}

type ReceiverConfig struct {
	QueueSize    int           `yaml:"queue_size"`
	StopTimeout  time.Duration `yaml:"stop_timeout"`
	IdleInterval time.Duration `yaml:"idle_interval"`
}

type SessionConfig struct {
	BaseDir string `yaml:"base_dir"`
	CSV     *bool  `yaml:"csv"`
	SQLite  *bool  `yaml:"sqlite"`
}

type ForwardConfig struct {
	Enable bool   `yaml:"enable"`
	Dest   string `yaml:"dest"`
	// StatusInterval spaces receiver status datagrams.
	StatusInterval time.Duration `yaml:"status_interval"`
}

type CaptureConfig struct {
	Record RecordConfig `yaml:"record"`
	Replay ReplayConfig `yaml:"replay"`
}

type RecordConfig struct {
	Enable bool `yaml:"enable"`
	// Path defaults to radio.cap in the session directory.
	Path string `yaml:"path"`
}

type ReplayConfig struct {
	Enable bool    `yaml:"enable"`
	Path   string  `yaml:"path"`
	Speed  float64 `yaml:"speed"`
	Loop   bool    `yaml:"loop"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// SlogLevel parses Level. Call after DefaultAndValidate.
func (l LogConfig) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

func (r RadioConfig) ConfigureEnabled() bool { return r.Configure == nil || *r.Configure }

func (s SessionConfig) CSVEnabled() bool { return s.CSV == nil || *s.CSV }

func (s SessionConfig) SQLiteEnabled() bool { return s.SQLite == nil || *s.SQLite }

const DefaultStatusInterval = 5 * time.Second

var supportedBauds = []int{1200, 2400, 4800, 9600, 19200, 38400, 57600, 115200, 230400}

// Default returns a validated configuration with every default applied.
func Default() Config {
	var cfg Config
	_ = DefaultAndValidate(&cfg)
	return cfg
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("config contains unknown fields or bad values: %w", err)
	}

	if err := DefaultAndValidate(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// DefaultAndValidate fills defaults in place and rejects inconsistent values.
func DefaultAndValidate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	cfg.Serial.Port = strings.TrimSpace(cfg.Serial.Port)
	if cfg.Serial.Baud == 0 {
		cfg.Serial.Baud = radio.DefaultBaud
	}
	if !containsInt(supportedBauds, cfg.Serial.Baud) {
		return fmt.Errorf("serial.baud %d is not supported", cfg.Serial.Baud)
	}
	if cfg.Serial.ReadTimeout < 0 {
		return fmt.Errorf("serial.read_timeout must be >= 0")
	}
	if cfg.Serial.ReadTimeout == 0 {
		cfg.Serial.ReadTimeout = radio.DefaultReadTimeout
	}
	if cfg.Serial.MaxLineBytes < 0 {
		return fmt.Errorf("serial.max_line_bytes must be >= 0")
	}
	if cfg.Serial.MaxLineBytes == 0 {
		cfg.Serial.MaxLineBytes = radio.DefaultMaxLineBytes
	}

	if cfg.Radio.Settle < 0 {
		return fmt.Errorf("radio.settle must be >= 0")
	}
	if cfg.Radio.Settle == 0 {
		cfg.Radio.Settle = radio.DefaultSettle
	}
	if cfg.Radio.RF != nil {
		if err := cfg.Radio.RF.Radio().Validate(); err != nil {
			return fmt.Errorf("radio.rf: %w", err)
		}
	}

	if cfg.Receiver.QueueSize < 0 {
		return fmt.Errorf("receiver.queue_size must be >= 0")
	}
	if cfg.Receiver.QueueSize == 0 {
		cfg.Receiver.QueueSize = receiver.DefaultQueueSize
	}
	if cfg.Receiver.StopTimeout <= 0 {
		cfg.Receiver.StopTimeout = receiver.DefaultStopTimeout
	}
	if cfg.Receiver.IdleInterval <= 0 {
		cfg.Receiver.IdleInterval = receiver.DefaultIdleInterval
	}

	cfg.Session.BaseDir = strings.TrimSpace(cfg.Session.BaseDir)

	if cfg.Forward.Enable && strings.TrimSpace(cfg.Forward.Dest) == "" {
		return fmt.Errorf("forward.dest is required when forward.enable is true")
	}
	if cfg.Forward.StatusInterval < 0 {
		return fmt.Errorf("forward.status_interval must be >= 0")
	}
	if cfg.Forward.StatusInterval == 0 {
		cfg.Forward.StatusInterval = DefaultStatusInterval
	}

	if cfg.Capture.Replay.Enable {
		if cfg.Capture.Replay.Path == "" {
			return fmt.Errorf("capture.replay.path is required when capture.replay.enable is true")
		}
		if cfg.Capture.Replay.Speed == 0 {
			cfg.Capture.Replay.Speed = 1
		}
		if cfg.Capture.Replay.Speed < 0 {
			return fmt.Errorf("capture.replay.speed must be > 0")
		}
	}
	if cfg.Capture.Record.Enable && cfg.Capture.Replay.Enable {
		return fmt.Errorf("capture.record and capture.replay cannot both be enabled")
	}

	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
		return fmt.Errorf("log.level %q is invalid", cfg.Log.Level)
	}

	return nil
}

func containsInt(xs []int, v int) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}
