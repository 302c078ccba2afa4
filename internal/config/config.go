// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config defines the global configuration structure
type Config struct {
	Slave       SlaveConfig       `mapstructure:"slave"`
	Transport   TransportConfig   `mapstructure:"transport"`
	Persistence PersistenceConfig `mapstructure:"persistence"`
	HTTP        HTTPConfig        `mapstructure:"http"`
	Log         LogConfig         `mapstructure:"log"`
}

// SlaveConfig defines the responder itself
type SlaveConfig struct {
	ID        int  `mapstructure:"id"`        // Unit address, 1-247
	Registers int  `mapstructure:"registers"` // Holding register table size
	Broadcast bool `mapstructure:"broadcast"` // Execute unit 0 frames without answering
	// IdleReset drops a partial frame when the line goes quiet for a read timeout.
	IdleReset       bool          `mapstructure:"idle_reset"`
	ReadEnableDelay time.Duration `mapstructure:"read_enable_delay"` // Ignore 0x03 for this long after start
	NotifyQueue     int           `mapstructure:"notify_queue"`
	Seed            string        `mapstructure:"seed"` // YAML file with initial register values
}

// TransportConfig defines where requests come from
type TransportConfig struct {
	Type   string       `mapstructure:"type"`   // "rtu", "rtu-over-tcp"
	Tcp    TcpConfig    `mapstructure:"tcp"`    // Used if Type is "rtu-over-tcp"
	Serial SerialConfig `mapstructure:"serial"` // Used if Type is "rtu"
}

// PersistenceConfig defines data storage settings
type PersistenceConfig struct {
	Type string `mapstructure:"type"` // "memory", "file", "mmap"
	Path string `mapstructure:"path"` // File path for "file/mmap" type
}

// HTTPConfig defines the admin endpoint. An empty address disables it.
type HTTPConfig struct {
	Address string `mapstructure:"address"`
}

// LogConfig defines logging configuration
type LogConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // text, json, console
	File       string `mapstructure:"file"`   // Log file path, empty or "-" for stdout
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// TcpConfig defines TCP settings
type TcpConfig struct {
	Address     string        `mapstructure:"address"`      // e.g. "0.0.0.0:502"
	ReadTimeout time.Duration `mapstructure:"read_timeout"` // Per-read deadline, one loop iteration
}

// SerialConfig defines RTU settings
type SerialConfig struct {
	Device   string        `mapstructure:"device"`
	BaudRate int           `mapstructure:"baud_rate"`
	DataBits int           `mapstructure:"data_bits"`
	Parity   string        `mapstructure:"parity"`
	StopBits int           `mapstructure:"stop_bits"`
	Timeout  time.Duration `mapstructure:"timeout"` // Read timeout, one loop iteration

	// RS485 specific
	RS485              bool          `mapstructure:"rs485"`
	DelayRtsBeforeSend time.Duration `mapstructure:"delay_rts_before_send"`
	DelayRtsAfterSend  time.Duration `mapstructure:"delay_rts_after_send"`
	RtsHighDuringSend  bool          `mapstructure:"rts_high_during_send"`
	RtsHighAfterSend   bool          `mapstructure:"rts_high_after_send"`
	RxDuringTx         bool          `mapstructure:"rx_during_tx"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("slave.id", 1)
	v.SetDefault("slave.registers", 65536)
	v.SetDefault("slave.broadcast", false)
	v.SetDefault("slave.idle_reset", false)
	v.SetDefault("slave.read_enable_delay", time.Duration(0))
	v.SetDefault("slave.notify_queue", 64)
	v.SetDefault("slave.seed", "")

	v.SetDefault("transport.type", "rtu")
	v.SetDefault("transport.tcp.address", "0.0.0.0:502")
	v.SetDefault("transport.tcp.read_timeout", 500*time.Millisecond)
	v.SetDefault("transport.serial.device", "/dev/ttyUSB0")
	v.SetDefault("transport.serial.baud_rate", 9600)
	v.SetDefault("transport.serial.data_bits", 8)
	v.SetDefault("transport.serial.parity", "N")
	v.SetDefault("transport.serial.stop_bits", 1)
	v.SetDefault("transport.serial.timeout", 500*time.Millisecond)
	v.SetDefault("transport.serial.rs485", false)

	v.SetDefault("persistence.type", "memory")
	v.SetDefault("persistence.path", "")

	v.SetDefault("http.address", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 50)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
	v.SetDefault("log.compress", false)
}

// LoadConfig loads configuration from command line arguments, the
// environment and an optional config file, in that order of precedence.
func LoadConfig(args []string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	flags := pflag.NewFlagSet("rtuslave", pflag.ContinueOnError)
	flags.StringP("config", "c", "", "Configuration file path.")
	flags.Int("slave-id", v.GetInt("slave.id"), "Unit address to answer (1-247).")
	flags.StringP("device", "p", v.GetString("transport.serial.device"), "Serial port device name.")
	flags.StringP("log-level", "v", v.GetString("log.level"), "Log verbosity level (debug, info, warn, error).")
	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	bindings := map[string]string{
		"slave.id":                "slave-id",
		"transport.serial.device": "device",
		"log.level":               "log-level",
	}
	for key, name := range bindings {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
		}
	}

	v.SetEnvPrefix("RTUSLAVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	configFile, _ := flags.GetString("config")
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/rtuslave/")
		v.AddConfigPath("$HOME/.rtuslave")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		// Without a file the flags and environment are enough.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	fixupSerial(&config.Transport.Serial)
	if config.Transport.Tcp.ReadTimeout == 0 {
		config.Transport.Tcp.ReadTimeout = 500 * time.Millisecond
	}
	config.Log.Level = strings.ToLower(config.Log.Level)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func fixupSerial(s *SerialConfig) {
	s.Parity = strings.ToUpper(s.Parity)
	if s.Timeout == 0 {
		s.Timeout = 500 * time.Millisecond
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Slave.ID < 1 || c.Slave.ID > 247 {
		return fmt.Errorf("slave.id %d outside [1, 247]", c.Slave.ID)
	}
	if c.Slave.Registers < 256 || c.Slave.Registers > 65536 {
		return fmt.Errorf("slave.registers %d outside [256, 65536]", c.Slave.Registers)
	}
	if c.Slave.ReadEnableDelay < 0 {
		return fmt.Errorf("slave.read_enable_delay must not be negative")
	}

	switch c.Transport.Type {
	case "rtu":
		if err := c.Transport.Serial.validate(); err != nil {
			return err
		}
	case "rtu-over-tcp":
		if c.Transport.Tcp.Address == "" {
			return fmt.Errorf("transport.tcp.address is required for rtu-over-tcp")
		}
		if c.Transport.Tcp.ReadTimeout < 0 {
			return fmt.Errorf("transport.tcp.read_timeout must not be negative")
		}
	default:
		return fmt.Errorf("unknown transport.type %q", c.Transport.Type)
	}

	switch c.Persistence.Type {
	case "memory":
	case "file", "mmap":
		if c.Persistence.Path == "" {
			return fmt.Errorf("persistence.path is required for %q", c.Persistence.Type)
		}
	default:
		return fmt.Errorf("unknown persistence.type %q", c.Persistence.Type)
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log.level %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json", "console":
	default:
		return fmt.Errorf("unknown log.format %q", c.Log.Format)
	}
	return nil
}

func (s *SerialConfig) validate() error {
	if s.Device == "" {
		return fmt.Errorf("transport.serial.device is required for rtu")
	}
	if s.BaudRate <= 0 {
		return fmt.Errorf("transport.serial.baud_rate must be positive")
	}
	if s.DataBits < 5 || s.DataBits > 8 {
		return fmt.Errorf("transport.serial.data_bits %d outside [5, 8]", s.DataBits)
	}
	switch s.Parity {
	case "N", "E", "O":
	default:
		return fmt.Errorf("transport.serial.parity %q must be N, E or O", s.Parity)
	}
	if s.StopBits != 1 && s.StopBits != 2 {
		return fmt.Errorf("transport.serial.stop_bits must be 1 or 2")
	}
	return nil
}
