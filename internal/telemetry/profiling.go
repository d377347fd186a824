package telemetry

import (
	"fmt"
	"maps"
	"runtime"
	"slices"
	"sync"

	"github.com/grafana/pyroscope-go"

	"github.com/marmos91/volumed/internal/logger"
)

// ProfilingConfig configures Pyroscope continuous profiling.
type ProfilingConfig struct {
	Enabled bool

	// ServiceName is the application name shown in Pyroscope
	ServiceName    string
	ServiceVersion string

	// Endpoint is the Pyroscope server URL (e.g., "http://localhost:4040")
	Endpoint string

	// ProfileTypes lists the profiles to collect, see profileTypes for names
	ProfileTypes []string

	// Tags are attached to every uploaded profile next to the version
	Tags map[string]string
}

// Sampling rates applied while mutex or block profiles are collected.
const (
	mutexProfileFraction = 5
	blockProfileRate     = 5
)

var profileTypes = map[string]pyroscope.ProfileType{
	"cpu":            pyroscope.ProfileCPU,
	"alloc_objects":  pyroscope.ProfileAllocObjects,
	"alloc_space":    pyroscope.ProfileAllocSpace,
	"inuse_objects":  pyroscope.ProfileInuseObjects,
	"inuse_space":    pyroscope.ProfileInuseSpace,
	"goroutines":     pyroscope.ProfileGoroutines,
	"mutex_count":    pyroscope.ProfileMutexCount,
	"mutex_duration": pyroscope.ProfileMutexDuration,
	"block_count":    pyroscope.ProfileBlockCount,
	"block_duration": pyroscope.ProfileBlockDuration,
}

var profiling struct {
	mu       sync.Mutex
	profiler *pyroscope.Profiler
}

// InitProfiling starts the Pyroscope profiler. The returned function stops
// it and resets the runtime sampling rates it changed.
func InitProfiling(cfg ProfilingConfig) (shutdown func() error, err error) {
	noop := func() error { return nil }
	if !cfg.Enabled {
		return noop, nil
	}

	types := make([]pyroscope.ProfileType, 0, len(cfg.ProfileTypes))
	var mutex, block bool
	for _, name := range cfg.ProfileTypes {
		pt, err := parseProfileType(name)
		if err != nil {
			return nil, err
		}
		types = append(types, pt)

		switch pt {
		case pyroscope.ProfileMutexCount, pyroscope.ProfileMutexDuration:
			mutex = true
		case pyroscope.ProfileBlockCount, pyroscope.ProfileBlockDuration:
			block = true
		}
	}

	if mutex {
		runtime.SetMutexProfileFraction(mutexProfileFraction)
	}
	if block {
		runtime.SetBlockProfileRate(blockProfileRate)
	}

	p, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: cfg.ServiceName,
		ServerAddress:   cfg.Endpoint,
		Tags:            profileTags(cfg),
		ProfileTypes:    types,
		Logger:          pyroscopeLogger{},
	})
	if err != nil {
		resetSamplingRates(mutex, block)
		return nil, fmt.Errorf("failed to start Pyroscope profiler: %w", err)
	}

	profiling.mu.Lock()
	profiling.profiler = p
	profiling.mu.Unlock()

	return func() error {
		profiling.mu.Lock()
		defer profiling.mu.Unlock()

		if profiling.profiler == nil {
			return nil
		}
		err := profiling.profiler.Stop()
		profiling.profiler = nil
		resetSamplingRates(mutex, block)
		return err
	}, nil
}

// IsProfilingEnabled reports whether the profiler is running.
func IsProfilingEnabled() bool {
	profiling.mu.Lock()
	defer profiling.mu.Unlock()
	return profiling.profiler != nil
}

func profileTags(cfg ProfilingConfig) map[string]string {
	tags := make(map[string]string, len(cfg.Tags)+1)
	for k, v := range cfg.Tags {
		if v != "" {
			tags[k] = v
		}
	}
	tags["version"] = cfg.ServiceVersion
	return tags
}

func resetSamplingRates(mutex, block bool) {
	if mutex {
		runtime.SetMutexProfileFraction(0)
	}
	if block {
		runtime.SetBlockProfileRate(0)
	}
}

func parseProfileType(name string) (pyroscope.ProfileType, error) {
	pt, ok := profileTypes[name]
	if !ok {
		return "", fmt.Errorf("unknown profile type %q, valid types: %v", name, slices.Sorted(maps.Keys(profileTypes)))
	}
	return pt, nil
}

// pyroscopeLogger routes profiler diagnostics to the service logger.
type pyroscopeLogger struct{}

func (pyroscopeLogger) Infof(format string, args ...any) {
	logger.Debug(fmt.Sprintf(format, args...), "component", "pyroscope")
}

func (pyroscopeLogger) Debugf(format string, args ...any) {
	logger.Debug(fmt.Sprintf(format, args...), "component", "pyroscope")
}

func (pyroscopeLogger) Errorf(format string, args ...any) {
	logger.Warn(fmt.Sprintf(format, args...), "component", "pyroscope")
}
