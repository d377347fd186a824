package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/marmos91/volumed/internal/bytesize"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the typed view of every option volumed understands.
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (VOLUMED_*)
//  3. Configuration file (YAML)
//  4. Default values (lowest priority)
type Config struct {
	// Server describes the primary service instance
	Server ServerConfig `mapstructure:"server" yaml:"server"`

	// Logging controls log sinks and levels
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Metrics contains Prometheus metrics server configuration
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// Telemetry controls OpenTelemetry distributed tracing
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// Compat tunes the best-effort platform adjustments applied after logging starts
	Compat CompatConfig `mapstructure:"compat" yaml:"compat"`

	// Volume describes the storage backend reported by the volume API
	Volume VolumeConfig `mapstructure:"volume" yaml:"volume"`
}

// ServerConfig configures the primary listener and its drain behavior.
type ServerConfig struct {
	// Profile is the service profile to construct (see `volumed profiles`)
	Profile string `mapstructure:"profile" validate:"required" yaml:"profile"`

	// Host is the bind address
	Host string `mapstructure:"host" validate:"required" yaml:"host"`

	// Port is the TCP port; 0 picks an ephemeral port
	Port int `mapstructure:"port" validate:"min=0,max=65535" yaml:"port"`

	// Backlog is the listen queue length; 0 keeps the OS default
	Backlog int `mapstructure:"backlog" validate:"min=0" yaml:"backlog"`

	// MaxConnections caps concurrent connections; 0 means unlimited
	MaxConnections int `mapstructure:"max_connections" validate:"min=0" yaml:"max_connections"`

	// GracePeriod bounds the drain on shutdown; 0 waits for every connection
	GracePeriod time.Duration `mapstructure:"grace_period" validate:"gte=0" yaml:"grace_period"`

	ReadTimeout  time.Duration `mapstructure:"read_timeout" validate:"gte=0" yaml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" validate:"gte=0" yaml:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout" validate:"gte=0" yaml:"idle_timeout"`

	// ReservedPorts lists ports no instance may bind
	ReservedPorts []int `mapstructure:"reserved_ports" validate:"dive,min=1,max=65535" yaml:"reserved_ports,omitempty"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR" yaml:"level"`

	// Format specifies the log output format
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output is the console stream: stdout or stderr
	Output string `mapstructure:"output" validate:"required,oneof=stdout stderr" yaml:"output"`

	// Debug forces DEBUG on every sink without its own level
	Debug bool `mapstructure:"debug" yaml:"debug"`

	// Verbose lowers the base level to at most INFO
	Verbose bool `mapstructure:"verbose" yaml:"verbose"`

	File   LogFileConfig   `mapstructure:"file" yaml:"file"`
	Syslog LogSyslogConfig `mapstructure:"syslog" yaml:"syslog"`
}

// LogFileConfig enables an append-only log file.
type LogFileConfig struct {
	Path  string `mapstructure:"path" yaml:"path,omitempty"`
	Level string `mapstructure:"level" validate:"omitempty,oneof=DEBUG INFO WARN ERROR" yaml:"level,omitempty"`
}

// LogSyslogConfig enables the syslog sink.
type LogSyslogConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Network is empty for the local daemon, otherwise udp, tcp or unix
	Network  string `mapstructure:"network" validate:"omitempty,oneof=udp tcp unix" yaml:"network,omitempty"`
	Address  string `mapstructure:"address" validate:"required_with=Network" yaml:"address,omitempty"`
	Tag      string `mapstructure:"tag" yaml:"tag"`
	Facility string `mapstructure:"facility" validate:"omitempty,oneof=daemon user local0 local1 local2 local3 local4 local5 local6 local7" yaml:"facility"`
	Level    string `mapstructure:"level" validate:"omitempty,oneof=DEBUG INFO WARN ERROR" yaml:"level,omitempty"`
}

// MetricsConfig configures the Prometheus metrics HTTP server.
// When Enabled is false, no metrics are collected (zero overhead).
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Host    string `mapstructure:"host" validate:"required_if=Enabled true" yaml:"host"`

	// Port is the HTTP port for the metrics endpoint
	Port int `mapstructure:"port" validate:"min=0,max=65535" yaml:"port"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing.
type TelemetryConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the OTLP collector endpoint (host:port)
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// Insecure disables TLS towards the collector
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate controls the trace sampling rate (0.0 to 1.0)
	SampleRate float64 `mapstructure:"sample_rate" validate:"gte=0,lte=1" yaml:"sample_rate"`

	Profiling ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig controls Pyroscope continuous profiling.
type ProfilingConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// ProfileTypes specifies which profile types to collect
	ProfileTypes []string `mapstructure:"profile_types" validate:"dive,oneof=cpu alloc_objects alloc_space inuse_objects inuse_space goroutines mutex_count mutex_duration block_count block_duration" yaml:"profile_types"`
}

// CompatConfig tunes the compatibility patches.
type CompatConfig struct {
	// Disabled names patches to skip
	Disabled []string `mapstructure:"disabled" yaml:"disabled,omitempty"`

	// NofileLimit is the open-files soft limit to request; 0 raises it to the hard limit
	NofileLimit uint64 `mapstructure:"nofile_limit" yaml:"nofile_limit"`

	// GCPercent sets the GC target percentage; 0 keeps the runtime default
	GCPercent int `mapstructure:"gc_percent" validate:"gte=-1" yaml:"gc_percent"`

	// MemoryLimit sets a soft memory limit for the Go runtime; 0 leaves it unset
	MemoryLimit bytesize.ByteSize `mapstructure:"memory_limit" yaml:"memory_limit"`
}

// VolumeConfig describes the volume backend reported by the stats endpoint.
type VolumeConfig struct {
	BackendName        string `mapstructure:"backend_name" validate:"required" yaml:"backend_name"`
	VendorName         string `mapstructure:"vendor_name" yaml:"vendor_name"`
	StorageProtocol    string `mapstructure:"storage_protocol" yaml:"storage_protocol"`
	ReservedPercentage int    `mapstructure:"reserved_percentage" validate:"min=0,max=100" yaml:"reserved_percentage"`

	// DataPath is the directory whose filesystem capacity is reported
	DataPath string `mapstructure:"data_path" yaml:"data_path"`
}

// Load reads configuration for sub-commands that do not take the start
// flags: defaults, then the file at configPath (or the default location),
// then VOLUMED_* environment variables.
func Load(configPath string) (*Config, error) {
	resolved, err := (&Resolver{ConfigFile: configPath}).ResolveFlags(nil, ProjectName, "")
	if err != nil {
		return nil, err
	}
	cfg := resolved.Config()
	return &cfg, nil
}

// SaveConfig saves the configuration to the specified file path in YAML.
func SaveConfig(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// setupViper wires environment variables and the config file location.
// Environment variables use the prefix and underscores:
// VOLUMED_SERVER_PORT=9000 sets server.port.
func setupViper(v *viper.Viper, envPrefix, configPath string) {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}

	v.AddConfigPath(getConfigDir())
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

// readConfigFile reads the configuration file. A missing file at the default
// location is fine; a missing explicit file is not.
func readConfigFile(v *viper.Viper, explicit bool) (bool, error) {
	err := v.ReadInConfig()
	if err == nil {
		return true, nil
	}

	var notFound viper.ConfigFileNotFoundError
	if errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) {
		if explicit {
			return false, &Error{Key: "config", Err: fmt.Errorf("configuration file not found: %s", v.ConfigFileUsed())}
		}
		return false, nil
	}

	return false, &Error{Key: "config", Err: fmt.Errorf("failed to read config file: %w", err)}
}

// configDecodeHooks returns a combined decode hook for all custom types.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

// byteSizeDecodeHook converts strings and numbers to bytesize.ByteSize so
// files and env vars can say "512MiB".
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(_ reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return bytesize.Parse(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir uses XDG_CONFIG_HOME if set, otherwise ~/.config, or the
// current directory when home cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, ProjectName)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", ProjectName)
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}
