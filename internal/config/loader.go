package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/OpenTraceLab/OpenTraceBSC/pkg/bsc"
	"github.com/OpenTraceLab/OpenTraceBSC/pkg/dongle"
	"github.com/OpenTraceLab/OpenTraceBSC/pkg/line"
	"github.com/OpenTraceLab/OpenTraceBSC/pkg/tn3270"
)

type Config struct {
	LoadedFiles []string       `yaml:"-"` // every file read, includes first
	Include     []string       `yaml:"include"`
	HotReload   bool           `yaml:"hot-reload"`
	Telnet      TelnetConfig   `yaml:"telnet"`
	Line        LineConfig     `yaml:"line"`
	Loggers     []LoggerConfig `yaml:"loggers"`
}

type TelnetConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	TerminalType string `yaml:"terminal-type"`
}

type LineConfig struct {
	ControllerAddress Address          `yaml:"controller-address"`
	Transport         string           `yaml:"transport"`
	SerialDevice      string           `yaml:"serial-device"`
	BaudRate          int              `yaml:"baud-rate"`
	USBVendorID       HexID            `yaml:"usb-vid"`
	USBProductID      HexID            `yaml:"usb-pid"`
	ResponseTimeout   time.Duration    `yaml:"response-timeout"`
	PollInterval      time.Duration    `yaml:"poll-interval"`
	MaxBlockSize      int              `yaml:"max-block-size"`
	MaxAttempts       int              `yaml:"max-attempts"`
	QueueLimit        int              `yaml:"queue-limit"`
	Script            string           `yaml:"script,omitempty"` // simulator transport only
	Terminals         []TerminalConfig `yaml:"terminals"`
}

type TerminalConfig struct {
	Address Address `yaml:"address"`
	Type    string  `yaml:"type,omitempty"` // falls back to telnet.terminal-type
}

type LoggerConfig struct {
	Stdout     bool   `yaml:"stdout,omitempty"`
	File       string `yaml:"file,omitempty"`
	Level      string `yaml:"level"`
	Source     bool   `yaml:"source"`
	HideTime   bool   `yaml:"hide-time,omitempty"`
	TimeFormat string `yaml:"time-format,omitempty"`
}

// Address is a BSC device address written as a decimal number or a 0x
// prefixed hex string.
type Address int

// UnmarshalYAML accepts `address: 3`, `address: "0x1F"` and `address: 0x1F`.
func (a *Address) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: address must be a scalar", value.Line)
	}
	n, err := bsc.ParseAddress(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*a = Address(n)
	return nil
}

// HexID is a USB vendor or product ID. Bare numbers are read as hex, the
// way lsusb prints them.
type HexID uint16

func (h *HexID) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: USB ID must be a scalar", value.Line)
	}
	s := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(value.Value)), "0x")
	n, err := strconv.ParseUint(s, 16, 16)
	if err != nil {
		return fmt.Errorf("line %d: invalid USB ID %q", value.Line, value.Value)
	}
	*h = HexID(n)
	return nil
}

// Default returns the configuration used when no file is given: a single
// terminal at address 0 behind a serial dongle, talking to a local host.
func Default() *Config {
	return &Config{
		Telnet: TelnetConfig{
			Host:         "localhost",
			Port:         3270,
			TerminalType: tn3270.DefaultTerminalType,
		},
		Line: LineConfig{
			Transport:       string(dongle.InterfaceKindSerial),
			SerialDevice:    "/dev/ttyACM0",
			BaudRate:        dongle.DefaultBaudRate,
			ResponseTimeout: line.DefaultResponseTimeout,
			PollInterval:    line.DefaultPollInterval,
			MaxBlockSize:    line.DefaultMaxBlockSize,
			MaxAttempts:     line.DefaultMaxAttempts,
			QueueLimit:      64,
			Terminals:       []TerminalConfig{{Address: 0}},
		},
		Loggers: []LoggerConfig{{Stdout: true, Level: "info"}},
	}
}

// Load reads filename over Default(). Files named under include: are read
// first, relative to the including file, so the including file wins.
func Load(filename string) (*Config, error) {
	cfg := Default()
	cfg.LoadedFiles = []string{}
	// Lists replace rather than merge.
	cfg.Line.Terminals = nil
	cfg.Loggers = nil

	processed := make(map[string]bool)
	if err := loadRecursive(filename, cfg, processed); err != nil {
		return nil, err
	}

	if len(cfg.Line.Terminals) == 0 {
		cfg.Line.Terminals = Default().Line.Terminals
	}
	if len(cfg.Loggers) == 0 {
		cfg.Loggers = Default().Loggers
	}
	return cfg, nil
}

func loadRecursive(filename string, cfg *Config, processed map[string]bool) error {
	absPath, err := filepath.Abs(filename)
	if err != nil {
		return err
	}

	if processed[absPath] {
		return nil
	}
	processed[absPath] = true

	data, err := os.ReadFile(absPath)
	if err != nil {
		return err
	}

	expanded := []byte(os.ExpandEnv(string(data)))

	var head struct {
		Include []string `yaml:"include"`
	}
	if err := yaml.Unmarshal(expanded, &head); err != nil {
		return fmt.Errorf("%s: %w", absPath, err)
	}

	baseDir := filepath.Dir(absPath)
	for _, includePath := range head.Include {
		fullPath := includePath
		if !filepath.IsAbs(includePath) {
			fullPath = filepath.Join(baseDir, includePath)
		}
		if err := loadRecursive(fullPath, cfg, processed); err != nil {
			return fmt.Errorf("failed to load included config %s: %w", fullPath, err)
		}
	}

	cfg.LoadedFiles = append(cfg.LoadedFiles, absPath)
	if err := yaml.Unmarshal(expanded, cfg); err != nil {
		return fmt.Errorf("%s: %w", absPath, err)
	}
	return nil
}

// Validate checks the values a bridge cannot start without.
func (c *Config) Validate() error {
	var errs []error

	if c.Telnet.Host == "" {
		errs = append(errs, errors.New("telnet.host is empty"))
	}
	if c.Telnet.Port <= 0 || c.Telnet.Port > 65535 {
		errs = append(errs, fmt.Errorf("telnet.port %d out of range", c.Telnet.Port))
	}

	kind, err := dongle.ParseInterfaceKind(c.Line.Transport)
	if err != nil {
		errs = append(errs, fmt.Errorf("line.transport: %w", err))
	}
	if kind == dongle.InterfaceKindSerial && c.Line.SerialDevice == "" {
		errs = append(errs, errors.New("line.serial-device is required for the serial transport"))
	}
	if c.Line.Script != "" && kind != dongle.InterfaceKindSim {
		errs = append(errs, errors.New("line.script needs the simulator transport"))
	}
	if c.Line.MaxBlockSize < 0 || c.Line.MaxBlockSize > dongle.MaxPayload/2 {
		errs = append(errs, fmt.Errorf("line.max-block-size %d out of range", c.Line.MaxBlockSize))
	}
	if c.Line.MaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("line.max-attempts %d is negative", c.Line.MaxAttempts))
	}

	if len(c.Line.Terminals) == 0 {
		errs = append(errs, errors.New("line.terminals is empty"))
	}
	seen := make(map[Address]bool)
	for _, t := range c.Line.Terminals {
		if seen[t.Address] {
			errs = append(errs, fmt.Errorf("line.terminals: address %d listed twice", t.Address))
		}
		seen[t.Address] = true
	}

	return errors.Join(errs...)
}

// TerminalType returns the terminal type for t, defaulting to the telnet
// section's.
func (c *Config) TerminalType(t TerminalConfig) string {
	if t.Type != "" {
		return t.Type
	}
	if c.Telnet.TerminalType != "" {
		return c.Telnet.TerminalType
	}
	return tn3270.DefaultTerminalType
}

// HostAddress is the host:port of the TN3270 server.
func (c *Config) HostAddress() string {
	return net.JoinHostPort(c.Telnet.Host, strconv.Itoa(c.Telnet.Port))
}

// LineSettings converts the line section for line.New.
func (c *Config) LineSettings() line.Config {
	return line.Config{
		ControllerAddress: int(c.Line.ControllerAddress),
		ResponseTimeout:   c.Line.ResponseTimeout,
		PollInterval:      c.Line.PollInterval,
		MaxBlockSize:      c.Line.MaxBlockSize,
		MaxAttempts:       c.Line.MaxAttempts,
		QueueLimit:        c.Line.QueueLimit,
	}
}
