package config

import (
	"fmt"
	"io"
	"reflect"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Resolver merges defaults, the config file, the environment and command
// line flags into a Resolved configuration.
type Resolver struct {
	// ConfigFile is an explicit config path. Empty searches the default location.
	ConfigFile string

	// Strict rejects config file keys that map to no option.
	Strict bool

	// EnvPrefix overrides EnvPrefix.
	EnvPrefix string
}

// Resolve parses args against the registered options and resolves the
// configuration with the default Resolver. It accepts --config and
// --strict-config in addition to the option flags.
func Resolve(args []string, projectName, version string) (*Resolved, error) {
	fs := pflag.NewFlagSet(projectName, pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	RegisterFlags(fs)
	configFile := fs.String("config", "", "path to config file")
	strict := fs.Bool("strict-config", false, "reject unknown config file keys")

	if err := fs.Parse(args); err != nil {
		return nil, FlagError(err)
	}

	r := &Resolver{ConfigFile: *configFile, Strict: *strict}
	return r.ResolveFlags(fs, projectName, version)
}

// ResolveFlags resolves configuration using flags already parsed into fs.
// A nil fs resolves from defaults, the file and the environment only.
func (r *Resolver) ResolveFlags(fs *pflag.FlagSet, projectName, version string) (*Resolved, error) {
	prefix := r.EnvPrefix
	if prefix == "" {
		prefix = EnvPrefix
	}

	v := viper.New()
	setupViper(v, prefix, r.ConfigFile)
	setDefaults(v)

	if fs != nil {
		for _, opt := range options {
			if opt.Flag == "" {
				continue
			}
			if f := fs.Lookup(opt.Flag); f != nil {
				if err := v.BindPFlag(opt.Key, f); err != nil {
					return nil, &Error{Key: opt.Key, Err: err}
				}
			}
		}
	}

	fileFound, err := readConfigFile(v, r.ConfigFile != "")
	if err != nil {
		return nil, err
	}

	var cfg Config
	decode := v.Unmarshal
	if r.Strict {
		decode = v.UnmarshalExact
	}
	if err := decode(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, &Error{Err: fmt.Errorf("failed to decode config: %w", err)}
	}

	ApplyDefaults(&cfg)

	for _, opt := range options {
		if opt.Required && strings.TrimSpace(v.GetString(opt.Key)) == "" {
			return nil, &Error{Key: opt.Key, Err: ErrMissingRequired}
		}
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	settings, err := flatten(&cfg)
	if err != nil {
		return nil, &Error{Err: err}
	}

	resolved := &Resolved{
		project:  projectName,
		version:  version,
		cfg:      cloneConfig(cfg),
		settings: settings,
	}
	if fileFound {
		resolved.file = v.ConfigFileUsed()
	}
	return resolved, nil
}

func setDefaults(v *viper.Viper) {
	for _, opt := range options {
		v.SetDefault(opt.Key, opt.Default)
	}
}

// DefaultConfig returns the configuration made of option defaults only.
func DefaultConfig() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		panic(fmt.Sprintf("config: option defaults do not decode: %v", err))
	}
	ApplyDefaults(&cfg)
	return &cfg
}

// flatten maps every option key to its resolved value.
func flatten(cfg *Config) (map[string]any, error) {
	var nested map[string]any
	if err := mapstructure.Decode(cfg, &nested); err != nil {
		return nil, fmt.Errorf("failed to flatten config: %w", err)
	}

	out := make(map[string]any, len(options))
	var walk func(prefix string, m map[string]any)
	walk = func(prefix string, m map[string]any) {
		for k, val := range m {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			if child, ok := val.(map[string]any); ok {
				walk(key, child)
				continue
			}
			out[key] = val
		}
	}
	walk("", nested)
	return out, nil
}

// Resolved is an immutable, fully merged configuration.
type Resolved struct {
	project  string
	version  string
	file     string
	cfg      Config
	settings map[string]any
}

// ProjectName returns the project the configuration was resolved for.
func (r *Resolved) ProjectName() string { return r.project }

// Version returns the version string passed to the resolver.
func (r *Resolved) Version() string { return r.version }

// ConfigFile returns the config file that contributed values, if any.
func (r *Resolved) ConfigFile() string { return r.file }

// Config returns a copy of the typed configuration.
func (r *Resolved) Config() Config { return cloneConfig(r.cfg) }

// Lookup returns the value of a dotted option key.
func (r *Resolved) Lookup(key string) (any, bool) {
	val, ok := r.settings[key]
	if !ok {
		return nil, false
	}
	if rv := reflect.ValueOf(val); rv.Kind() == reflect.Slice {
		cp := reflect.MakeSlice(rv.Type(), rv.Len(), rv.Len())
		reflect.Copy(cp, rv)
		return cp.Interface(), true
	}
	return val, true
}

// String returns the value of key as a string, or "" when absent.
func (r *Resolved) String(key string) string {
	val, ok := r.settings[key]
	if !ok {
		return ""
	}
	if s, ok := val.(string); ok {
		return s
	}
	return fmt.Sprint(val)
}

// Int returns the value of key as an int, or 0 when absent or not integral.
func (r *Resolved) Int(key string) int {
	switch val := r.settings[key].(type) {
	case int:
		return val
	case int64:
		return int(val)
	case uint64:
		return int(val)
	default:
		return 0
	}
}

// Bool returns the value of key as a bool.
func (r *Resolved) Bool(key string) bool {
	b, _ := r.settings[key].(bool)
	return b
}

// Duration returns the value of key as a time.Duration.
func (r *Resolved) Duration(key string) time.Duration {
	d, _ := r.settings[key].(time.Duration)
	return d
}

// Keys returns every resolved key in sorted order.
func (r *Resolved) Keys() []string {
	keys := make([]string, 0, len(r.settings))
	for k := range r.settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func cloneConfig(cfg Config) Config {
	cfg.Server.ReservedPorts = slices.Clone(cfg.Server.ReservedPorts)
	cfg.Telemetry.Profiling.ProfileTypes = slices.Clone(cfg.Telemetry.Profiling.ProfileTypes)
	cfg.Compat.Disabled = slices.Clone(cfg.Compat.Disabled)
	return cfg
}
