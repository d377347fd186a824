package config

import (
	"time"

	"github.com/marmos91/volumed/internal/bytesize"
	"github.com/spf13/pflag"
)

// ProjectName names the config directory and is the default env prefix stem.
const ProjectName = "volumed"

// EnvPrefix is the environment variable prefix for every option.
const EnvPrefix = "VOLUMED"

// Kind is the value type of an option.
type Kind int

const (
	KindString Kind = iota
	KindInt
	KindUint
	KindBool
	KindFloat
	KindDuration
	KindByteSize
	KindStringSlice
	KindIntSlice
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindUint:
		return "uint"
	case KindBool:
		return "bool"
	case KindFloat:
		return "float"
	case KindDuration:
		return "duration"
	case KindByteSize:
		return "bytesize"
	case KindStringSlice:
		return "[]string"
	case KindIntSlice:
		return "[]int"
	default:
		return "unknown"
	}
}

// Option defines one configuration key. Options with a Flag are exposed on
// the command line; every option can be set from the file and environment.
type Option struct {
	Key       string
	Flag      string
	Shorthand string
	Kind      Kind
	Default   any
	Usage     string
	Required  bool
}

var defaultProfileTypes = []string{
	"cpu",
	"alloc_objects",
	"alloc_space",
	"inuse_objects",
	"inuse_space",
	"goroutines",
}

var options = []Option{
	// Server
	{Key: "server.profile", Flag: "profile", Kind: KindString, Default: "volume-api", Usage: "service profile to run", Required: true},
	{Key: "server.host", Flag: "host", Kind: KindString, Default: "0.0.0.0", Usage: "address to bind", Required: true},
	{Key: "server.port", Flag: "port", Shorthand: "p", Kind: KindInt, Default: 8776, Usage: "port to bind (0 picks a free port)"},
	{Key: "server.backlog", Flag: "backlog", Kind: KindInt, Default: 0, Usage: "listen backlog (0 uses the OS default)"},
	{Key: "server.max_connections", Flag: "max-connections", Kind: KindInt, Default: 0, Usage: "maximum concurrent connections (0 is unlimited)"},
	{Key: "server.grace_period", Flag: "grace-period", Kind: KindDuration, Default: time.Duration(0), Usage: "drain deadline on shutdown (0 waits indefinitely)"},
	{Key: "server.read_timeout", Kind: KindDuration, Default: 10 * time.Second},
	{Key: "server.write_timeout", Kind: KindDuration, Default: 10 * time.Second},
	{Key: "server.idle_timeout", Kind: KindDuration, Default: 60 * time.Second},
	{Key: "server.reserved_ports", Flag: "reserved-ports", Kind: KindIntSlice, Default: []int{}, Usage: "ports no instance may bind"},

	// Logging
	{Key: "logging.level", Flag: "log-level", Kind: KindString, Default: "INFO", Usage: "log level (DEBUG, INFO, WARN, ERROR)"},
	{Key: "logging.format", Flag: "log-format", Kind: KindString, Default: "text", Usage: "log format (text, json)"},
	{Key: "logging.output", Flag: "log-output", Kind: KindString, Default: "stdout", Usage: "console log stream (stdout, stderr)"},
	{Key: "logging.debug", Flag: "debug", Shorthand: "d", Kind: KindBool, Default: false, Usage: "force debug logging"},
	{Key: "logging.verbose", Flag: "verbose", Shorthand: "v", Kind: KindBool, Default: false, Usage: "log at INFO or lower"},
	{Key: "logging.file.path", Flag: "log-file", Kind: KindString, Default: "", Usage: "also append logs to this file"},
	{Key: "logging.file.level", Kind: KindString, Default: ""},
	{Key: "logging.syslog.enabled", Flag: "use-syslog", Kind: KindBool, Default: false, Usage: "also send logs to syslog"},
	{Key: "logging.syslog.network", Kind: KindString, Default: ""},
	{Key: "logging.syslog.address", Kind: KindString, Default: ""},
	{Key: "logging.syslog.tag", Kind: KindString, Default: ProjectName},
	{Key: "logging.syslog.facility", Kind: KindString, Default: "daemon"},
	{Key: "logging.syslog.level", Kind: KindString, Default: ""},

	// Metrics
	{Key: "metrics.enabled", Flag: "metrics", Kind: KindBool, Default: false, Usage: "serve Prometheus metrics"},
	{Key: "metrics.host", Kind: KindString, Default: "0.0.0.0"},
	{Key: "metrics.port", Flag: "metrics-port", Kind: KindInt, Default: 9090, Usage: "metrics port"},

	// Telemetry
	{Key: "telemetry.enabled", Kind: KindBool, Default: false},
	{Key: "telemetry.endpoint", Kind: KindString, Default: "localhost:4317"},
	{Key: "telemetry.insecure", Kind: KindBool, Default: true},
	{Key: "telemetry.sample_rate", Kind: KindFloat, Default: 1.0},
	{Key: "telemetry.profiling.enabled", Kind: KindBool, Default: false},
	{Key: "telemetry.profiling.endpoint", Kind: KindString, Default: "http://localhost:4040"},
	{Key: "telemetry.profiling.profile_types", Kind: KindStringSlice, Default: defaultProfileTypes},

	// Compatibility patches
	{Key: "compat.disabled", Kind: KindStringSlice, Default: []string{}},
	{Key: "compat.nofile_limit", Kind: KindUint, Default: uint64(0)},
	{Key: "compat.gc_percent", Kind: KindInt, Default: 0},
	{Key: "compat.memory_limit", Kind: KindByteSize, Default: bytesize.ByteSize(0)},

	// Volume backend
	{Key: "volume.backend_name", Kind: KindString, Default: ProjectName},
	{Key: "volume.vendor_name", Kind: KindString, Default: "Open Source"},
	{Key: "volume.storage_protocol", Kind: KindString, Default: "iSCSI"},
	{Key: "volume.reserved_percentage", Kind: KindInt, Default: 0},
	{Key: "volume.data_path", Kind: KindString, Default: "/"},
}

// Options returns a copy of the option definitions.
func Options() []Option {
	out := make([]Option, len(options))
	copy(out, options)
	return out
}

// LookupOption finds the definition for key.
func LookupOption(key string) (Option, bool) {
	for _, opt := range options {
		if opt.Key == key {
			return opt, true
		}
	}
	return Option{}, false
}

// RegisterFlags adds a flag for every option that has one. Flag defaults
// mirror option defaults so --help output is accurate.
func RegisterFlags(fs *pflag.FlagSet) {
	for _, opt := range options {
		if opt.Flag == "" || fs.Lookup(opt.Flag) != nil {
			continue
		}

		switch opt.Kind {
		case KindString:
			fs.StringP(opt.Flag, opt.Shorthand, opt.Default.(string), opt.Usage)
		case KindInt:
			fs.IntP(opt.Flag, opt.Shorthand, opt.Default.(int), opt.Usage)
		case KindUint:
			fs.Uint64P(opt.Flag, opt.Shorthand, opt.Default.(uint64), opt.Usage)
		case KindBool:
			fs.BoolP(opt.Flag, opt.Shorthand, opt.Default.(bool), opt.Usage)
		case KindFloat:
			fs.Float64P(opt.Flag, opt.Shorthand, opt.Default.(float64), opt.Usage)
		case KindDuration:
			fs.DurationP(opt.Flag, opt.Shorthand, opt.Default.(time.Duration), opt.Usage)
		case KindByteSize:
			fs.StringP(opt.Flag, opt.Shorthand, opt.Default.(bytesize.ByteSize).String(), opt.Usage)
		case KindStringSlice:
			fs.StringSliceP(opt.Flag, opt.Shorthand, opt.Default.([]string), opt.Usage)
		case KindIntSlice:
			fs.IntSliceP(opt.Flag, opt.Shorthand, opt.Default.([]int), opt.Usage)
		}
	}
}
