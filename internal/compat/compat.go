// Package compat applies best-effort platform adjustments once logging is
// up. A patch that fails or panics is logged and skipped; it never stops the
// process from starting.
package compat

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"slices"
	"time"

	"github.com/marmos91/volumed/internal/logger"
	"github.com/marmos91/volumed/pkg/config"
)

// ErrUnsupported is returned by patches that do not apply to this platform.
var ErrUnsupported = errors.New("not supported on this platform")

// Tuning carries adjustments discovered by patches to later stages.
type Tuning struct {
	// TCPKeepAlive reports whether accepted connections may have keepalive
	// probes configured.
	TCPKeepAlive bool
}

// Patch is one named adjustment.
type Patch struct {
	Name        string
	Description string
	Apply       func(ctx context.Context, t *Tuning) error
}

// Outcome classifies how a patch ended.
type Outcome int

const (
	Applied Outcome = iota
	Skipped
	Unsupported
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case Skipped:
		return "skipped"
	case Unsupported:
		return "unsupported"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result is the outcome of a single patch.
type Result struct {
	Name     string
	Outcome  Outcome
	Err      error
	Duration time.Duration
}

// Report summarizes a run of Apply.
type Report struct {
	Results []Result
	Tuning  Tuning
}

// Failed returns the names of patches that failed.
func (r Report) Failed() []string {
	var names []string
	for _, res := range r.Results {
		if res.Outcome == Failed {
			names = append(names, res.Name)
		}
	}
	return names
}

// Apply runs each patch independently, skipping those named in disabled.
// It never returns an error.
func Apply(ctx context.Context, patches []Patch, disabled []string) Report {
	report := Report{Tuning: Tuning{TCPKeepAlive: true}}

	for _, p := range patches {
		if slices.Contains(disabled, p.Name) {
			logger.Debug("Compatibility patch disabled", logger.KeyPatch, p.Name)
			report.Results = append(report.Results, Result{Name: p.Name, Outcome: Skipped})
			continue
		}

		start := time.Now()
		err := run(ctx, p, &report.Tuning)
		res := Result{Name: p.Name, Err: err, Duration: time.Since(start)}

		switch {
		case err == nil:
			res.Outcome = Applied
			logger.Debug("Compatibility patch applied", logger.KeyPatch, p.Name, logger.KeyDurationMs, logger.Duration(start))
		case errors.Is(err, ErrUnsupported):
			res.Outcome = Unsupported
			logger.Debug("Compatibility patch not supported here", logger.KeyPatch, p.Name, logger.Err(err))
		default:
			res.Outcome = Failed
			logger.Warn("Compatibility patch failed, continuing", logger.KeyPatch, p.Name, logger.Err(err))
		}

		report.Results = append(report.Results, res)
	}

	return report
}

// run isolates a patch so a panic is reported as an error.
func run(ctx context.Context, p Patch, t *Tuning) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	if p.Apply == nil {
		return fmt.Errorf("patch %q has no Apply func", p.Name)
	}
	return p.Apply(ctx, t)
}

// Defaults returns the built-in patches configured by cfg.
func Defaults(cfg config.CompatConfig) []Patch {
	return []Patch{
		{
			Name:        "nofile-limit",
			Description: "raise the open file soft limit",
			Apply: func(context.Context, *Tuning) error {
				soft, err := raiseNofile(cfg.NofileLimit)
				if err != nil {
					return err
				}
				logger.Debug("Open file limit set", "soft", soft)
				return nil
			},
		},
		{
			Name:        "gc-percent",
			Description: "set the garbage collector target percentage",
			Apply: func(context.Context, *Tuning) error {
				if cfg.GCPercent == 0 {
					return nil
				}
				previous := debug.SetGCPercent(cfg.GCPercent)
				logger.Debug("GC percent set", "value", cfg.GCPercent, "previous", previous)
				return nil
			},
		},
		{
			Name:        "memory-limit",
			Description: "set the runtime soft memory limit",
			Apply: func(context.Context, *Tuning) error {
				if cfg.MemoryLimit == 0 {
					return nil
				}
				debug.SetMemoryLimit(cfg.MemoryLimit.Int64())
				logger.Debug("Memory limit set", "limit", cfg.MemoryLimit.String())
				return nil
			},
		},
		{
			Name:        "tcp-keepalive-probe",
			Description: "check that TCP keepalive tuning works on this host",
			Apply:       probeKeepAlive,
		},
	}
}
