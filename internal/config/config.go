package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"enginemon/internal/link"
)

type Config struct {
	Engine     LinkConfig   `yaml:"engine"`
	Navigation LinkConfig   `yaml:"navigation"`
	Events     EventsConfig `yaml:"events"`
	Status     StatusConfig `yaml:"status"`
	Log        LogConfig    `yaml:"log"`
	Sim        SimConfig    `yaml:"sim"`
}

// LinkConfig is one serial link plus the connector knobs that go with it.
type LinkConfig struct {
	Enable   bool   `yaml:"enable"`
	Device   string `yaml:"device"`
	Baud     int    `yaml:"baud"`
	DataBits int    `yaml:"data_bits"`
	Parity   string `yaml:"parity"`
	StopBits string `yaml:"stop_bits"`
	Backend  string `yaml:"backend"`

	ReadTimeout    time.Duration `yaml:"read_timeout"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	ReconnectMax   time.Duration `yaml:"reconnect_max"`

	// MaxLineBytes only applies to the navigation link.
	MaxLineBytes int `yaml:"max_line_bytes"`
}

type EventsConfig struct {
	Capacity int `yaml:"capacity"`
}

// StatusConfig limits how often decode anomalies are reported per link.
type StatusConfig struct {
	RatePerSec float64 `yaml:"rate_per_sec"`
	Burst      int     `yaml:"burst"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	Console    bool   `yaml:"console"`
}

// SimConfig drives the built-in simulator used by the sim backend.
type SimConfig struct {
	Interval   time.Duration `yaml:"interval"`
	DistanceNm float64       `yaml:"distance_nm"`
	GroundKt   float64       `yaml:"ground_kt"`
	// FaultScript optionally names a YAML fault schedule for the engine link.
	FaultScript string `yaml:"fault_script"`
}

// Link converts the section into the link layer's view of it.
func (c LinkConfig) Link(name string) link.Config {
	return link.Config{
		Name:        name,
		Backend:     c.Backend,
		Device:      c.Device,
		Baud:        c.Baud,
		DataBits:    c.DataBits,
		Parity:      c.Parity,
		StopBits:    c.StopBits,
		ReadTimeout: c.ReadTimeout,
	}
}

// Load reads path, applies adjust in order, then fills defaults and
// validates. An empty path starts from an empty config.
func Load(path string, adjust ...func(*Config)) (Config, error) {
	var cfg Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, err
		}
		dec := yaml.NewDecoder(bytes.NewReader(b))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil {
			// An empty file is a valid, all-defaults config.
			if !errors.Is(err, io.EOF) {
				return Config{}, unknownFieldsError(err)
			}
		}
	}
	for _, fn := range adjust {
		fn(&cfg)
	}

	if err := DefaultAndValidate(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var yamlLinePrefix = regexp.MustCompile(`^line \d+: `)

// unknownFieldsError flattens yaml.v3's strict-mode error into one line.
func unknownFieldsError(err error) error {
	var te *yaml.TypeError
	if !errors.As(err, &te) {
		return err
	}
	var unknown, other []string
	for _, e := range te.Errors {
		e = yamlLinePrefix.ReplaceAllString(e, "")
		if strings.Contains(e, "not found in type") {
			unknown = append(unknown, e)
			continue
		}
		other = append(other, e)
	}
	if len(other) > 0 {
		return fmt.Errorf("config: %s", strings.Join(append(other, unknown...), "; "))
	}
	return fmt.Errorf("config contains unknown fields: %s", strings.Join(unknown, "; "))
}

// ForceSim enables both links on the simulator backend.
func ForceSim(cfg *Config) {
	for _, l := range []*LinkConfig{&cfg.Engine, &cfg.Navigation} {
		l.Enable = true
		l.Backend = link.BackendSim
	}
}

// DefaultAndValidate fills defaults in place and rejects invalid settings.
func DefaultAndValidate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	if err := defaultLink("engine", &cfg.Engine, 9600); err != nil {
		return err
	}
	if cfg.Engine.MaxLineBytes != 0 {
		return fmt.Errorf("engine.max_line_bytes is not supported")
	}
	if err := defaultLink("navigation", &cfg.Navigation, 4800); err != nil {
		return err
	}
	if cfg.Navigation.MaxLineBytes == 0 {
		cfg.Navigation.MaxLineBytes = 512
	}
	if cfg.Navigation.MaxLineBytes < 82 {
		return fmt.Errorf("navigation.max_line_bytes must be >= 82")
	}

	if cfg.Events.Capacity == 0 {
		cfg.Events.Capacity = 1024
	}
	if cfg.Events.Capacity < 2 {
		return fmt.Errorf("events.capacity must be >= 2")
	}

	if cfg.Status.RatePerSec < 0 {
		return fmt.Errorf("status.rate_per_sec must be >= 0")
	}
	if cfg.Status.RatePerSec == 0 {
		cfg.Status.RatePerSec = 2
	}
	if cfg.Status.Burst < 0 {
		return fmt.Errorf("status.burst must be >= 0")
	}
	if cfg.Status.Burst == 0 {
		cfg.Status.Burst = 5
	}

	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	switch cfg.Log.Level {
	case "":
		cfg.Log.Level = "info"
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of trace, debug, info, warn, error")
	}
	if cfg.Log.MaxSizeMB <= 0 {
		cfg.Log.MaxSizeMB = 1
	}
	if cfg.Log.MaxBackups <= 0 {
		cfg.Log.MaxBackups = 2
	}
	if strings.TrimSpace(cfg.Log.File) == "" && !cfg.Log.Console {
		// Nowhere else to write.
		cfg.Log.Console = true
	}

	// Simulator defaults (safe even if no link uses the sim backend).
	if cfg.Sim.Interval <= 0 {
		cfg.Sim.Interval = 200 * time.Millisecond
	}
	if cfg.Sim.DistanceNm <= 0 {
		cfg.Sim.DistanceNm = 40
	}
	if cfg.Sim.GroundKt <= 0 {
		cfg.Sim.GroundKt = 100
	}

	if !cfg.Engine.Enable && !cfg.Navigation.Enable {
		return fmt.Errorf("at least one of engine.enable or navigation.enable must be true")
	}
	return nil
}

func defaultLink(name string, c *LinkConfig, baud int) error {
	c.Backend = strings.ToLower(strings.TrimSpace(c.Backend))
	switch c.Backend {
	case "":
		c.Backend = link.BackendBugst
	case link.BackendBugst, link.BackendNative, link.BackendSim:
	default:
		return fmt.Errorf("%s.backend must be one of bugst, native, sim", name)
	}

	c.Device = strings.TrimSpace(c.Device)
	if c.Enable && c.Device == "" && c.Backend != link.BackendSim {
		return fmt.Errorf("%s.device is required when %s.enable is true", name, name)
	}
	if strings.ContainsAny(c.Device, "\x00\r\n") {
		return fmt.Errorf("%s.device must not contain control characters", name)
	}

	if c.Baud == 0 {
		c.Baud = baud
	}
	if c.Baud < 0 {
		return fmt.Errorf("%s.baud must be > 0", name)
	}
	if c.DataBits == 0 {
		c.DataBits = 8
	}
	if c.DataBits < 5 || c.DataBits > 8 {
		return fmt.Errorf("%s.data_bits must be 5..8", name)
	}

	c.Parity = strings.ToLower(strings.TrimSpace(c.Parity))
	switch c.Parity {
	case "":
		c.Parity = "none"
	case "none", "odd", "even", "mark", "space":
	default:
		return fmt.Errorf("%s.parity must be one of none, odd, even, mark, space", name)
	}

	c.StopBits = strings.TrimSpace(c.StopBits)
	switch c.StopBits {
	case "":
		c.StopBits = "1"
	case "1", "1.5", "2":
	default:
		return fmt.Errorf("%s.stop_bits must be one of 1, 1.5, 2", name)
	}

	if c.ReadTimeout == 0 {
		c.ReadTimeout = 100 * time.Millisecond
	}
	if c.ReadTimeout < 0 {
		return fmt.Errorf("%s.read_timeout must be > 0", name)
	}
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = 1 * time.Second
	}
	if c.ReconnectMax == 0 {
		c.ReconnectMax = 5 * time.Second
	}
	if c.ReconnectDelay < 0 || c.ReconnectMax < c.ReconnectDelay {
		return fmt.Errorf("%s.reconnect_max must be >= %s.reconnect_delay > 0", name, name)
	}
	return nil
}
