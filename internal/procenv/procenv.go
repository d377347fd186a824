// Package procenv prepares process-wide runtime state before any
// concurrency-sensitive component starts: scheduler parallelism, the OS
// thread ceiling and the DNS resolver mode.
//
// Prepare must run exactly once, first thing in main. Components that rely
// on the prepared runtime call Require, which fails fast instead of letting
// them run on an unprepared process.
package procenv

import (
	"errors"
	"fmt"
	"net"
	"os"
	"runtime"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DefaultEnvPrefix is prepended to the environment variable names read by
// OptionsFromEnv.
const DefaultEnvPrefix = "VOLUMED_RUNTIME_"

// minMaxThreads keeps the thread ceiling above what the runtime itself needs
// for the scheduler, GC workers and the netpoller.
const minMaxThreads = 32

var (
	// ErrAlreadyPrepared is returned by a second call to Prepare.
	ErrAlreadyPrepared = errors.New("runtime already prepared")

	// ErrNotPrepared is returned by Require before Prepare has completed.
	ErrNotPrepared = errors.New("runtime not prepared")

	// ErrInvalidOption reports an unusable runtime option.
	ErrInvalidOption = errors.New("invalid runtime option")
)

// Options controls runtime preparation.
type Options struct {
	// Procs sets GOMAXPROCS. 0 keeps the runtime default.
	Procs int

	// MaxThreads caps OS threads via debug.SetMaxThreads. 0 keeps the default.
	MaxThreads int

	// ExemptThreads leaves the thread ceiling untouched even when MaxThreads
	// is set. Worker-process models that manage their own threads use it.
	ExemptThreads bool

	// CgoResolver keeps the cgo DNS resolver. By default name lookups use
	// the pure Go resolver so they park goroutines instead of OS threads.
	CgoResolver bool
}

// Settings records what Prepare applied.
type Settings struct {
	Procs          int
	PreviousProcs  int
	MaxThreads     int
	ExemptThreads  bool
	PureGoResolver bool
	PreparedAt     time.Time
}

var (
	mu       sync.Mutex
	prepared bool
	applied  Settings
)

// OptionsFromEnv reads Options from the environment. Configuration files are
// not available yet when the runtime is prepared.
//
//	<prefix>PROCS          GOMAXPROCS
//	<prefix>MAX_THREADS    OS thread ceiling
//	<prefix>EXEMPT_THREADS skip the thread ceiling
//	<prefix>CGO_RESOLVER   keep the cgo DNS resolver
func OptionsFromEnv(prefix string) (Options, error) {
	return optionsFromLookup(prefix, os.LookupEnv)
}

func optionsFromLookup(prefix string, lookup func(string) (string, bool)) (Options, error) {
	var opts Options
	var err error

	if opts.Procs, err = intOption(lookup, prefix+"PROCS"); err != nil {
		return Options{}, err
	}
	if opts.MaxThreads, err = intOption(lookup, prefix+"MAX_THREADS"); err != nil {
		return Options{}, err
	}
	if opts.ExemptThreads, err = boolOption(lookup, prefix+"EXEMPT_THREADS"); err != nil {
		return Options{}, err
	}
	if opts.CgoResolver, err = boolOption(lookup, prefix+"CGO_RESOLVER"); err != nil {
		return Options{}, err
	}

	return opts, nil
}

func intOption(lookup func(string) (string, bool), name string) (int, error) {
	raw, ok := lookup(name)
	if !ok || strings.TrimSpace(raw) == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q is not an integer", ErrInvalidOption, name, raw)
	}
	return n, nil
}

func boolOption(lookup func(string) (string, bool), name string) (bool, error) {
	raw, ok := lookup(name)
	if !ok || strings.TrimSpace(raw) == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return false, fmt.Errorf("%w: %s=%q is not a boolean", ErrInvalidOption, name, raw)
	}
	return b, nil
}

// Validate reports options Prepare would reject.
func (o Options) Validate() error {
	if o.Procs < 0 {
		return fmt.Errorf("%w: procs must not be negative, got %d", ErrInvalidOption, o.Procs)
	}
	if o.MaxThreads != 0 && o.MaxThreads < minMaxThreads {
		return fmt.Errorf("%w: max threads must be at least %d, got %d", ErrInvalidOption, minMaxThreads, o.MaxThreads)
	}
	return nil
}

// Prepare applies opts to the process. It must be called exactly once,
// before any goroutine that does network I/O is started.
func Prepare(opts Options) error {
	if err := opts.Validate(); err != nil {
		return err
	}

	mu.Lock()
	defer mu.Unlock()

	if prepared {
		return ErrAlreadyPrepared
	}

	s := Settings{
		ExemptThreads:  opts.ExemptThreads,
		PureGoResolver: !opts.CgoResolver,
		PreparedAt:     time.Now(),
	}

	if opts.Procs > 0 {
		s.PreviousProcs = runtime.GOMAXPROCS(opts.Procs)
	} else {
		s.PreviousProcs = runtime.GOMAXPROCS(0)
	}
	s.Procs = runtime.GOMAXPROCS(0)

	if opts.MaxThreads > 0 && !opts.ExemptThreads {
		debug.SetMaxThreads(opts.MaxThreads)
		s.MaxThreads = opts.MaxThreads
	}

	net.DefaultResolver.PreferGo = s.PureGoResolver

	applied = s
	prepared = true
	return nil
}

// Prepared reports whether Prepare has completed.
func Prepared() bool {
	mu.Lock()
	defer mu.Unlock()
	return prepared
}

// Require fails with ErrNotPrepared when Prepare has not completed.
// component names the caller in the error.
func Require(component string) error {
	if Prepared() {
		return nil
	}
	return fmt.Errorf("%w: %s requires a prepared runtime", ErrNotPrepared, component)
}

// Snapshot returns the applied settings and whether Prepare has run.
func Snapshot() (Settings, bool) {
	mu.Lock()
	defer mu.Unlock()
	return applied, prepared
}
