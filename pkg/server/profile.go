package server

import (
	"context"
	"fmt"
	"net"
	"sort"
	"sync"

	"github.com/marmos91/volumed/pkg/config"
)

// Application serves accepted connections. ServeConn blocks until the
// connection is finished. ctx is cancelled when the instance starts draining.
//
// The instance closes conn after ServeConn returns, so implementations may
// return without closing it.
type Application interface {
	ServeConn(ctx context.Context, conn net.Conn) error
}

// Drainer is implemented by applications that end their own idle
// connections when the instance stops accepting. Drain must close idle
// connections and let in-flight requests finish. The instance leaves reads
// on a Drainer's connections alone, so a request being served is never cut
// short before the grace period expires.
type Drainer interface {
	Drain()
}

// ApplicationFunc adapts a function to Application.
type ApplicationFunc func(ctx context.Context, conn net.Conn) error

// ServeConn calls f(ctx, conn).
func (f ApplicationFunc) ServeConn(ctx context.Context, conn net.Conn) error {
	return f(ctx, conn)
}

// Profile is a named way to build and bind a service.
type Profile struct {
	Name        string
	Description string

	// Bind derives the listener descriptor from configuration.
	// Nil uses ServerBinding.
	Bind func(cfg config.Config) Descriptor

	// Build creates the application. It must not acquire network resources.
	Build func(cfg *config.Resolved) (Application, error)
}

// ServerBinding binds to the server.* options.
func ServerBinding(cfg config.Config) Descriptor {
	return Descriptor{
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		Backlog:        cfg.Server.Backlog,
		MaxConnections: cfg.Server.MaxConnections,
		GracePeriod:    cfg.Server.GracePeriod,
	}
}

// Registry holds the profiles a Manager can construct.
type Registry struct {
	mu       sync.RWMutex
	profiles map[string]Profile
}

// NewRegistry returns a registry holding profiles.
func NewRegistry(profiles ...Profile) (*Registry, error) {
	r := &Registry{profiles: make(map[string]Profile)}
	for _, p := range profiles {
		if err := r.Register(p); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a profile. Names must be unique and Build must be set.
func (r *Registry) Register(p Profile) error {
	if p.Name == "" {
		return fmt.Errorf("profile name is required")
	}
	if p.Build == nil {
		return fmt.Errorf("profile %q has no Build func", p.Name)
	}
	if p.Bind == nil {
		p.Bind = ServerBinding
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.profiles[p.Name]; exists {
		return fmt.Errorf("profile %q already registered", p.Name)
	}
	r.profiles[p.Name] = p
	return nil
}

// Lookup returns the named profile or ErrProfileNotFound.
func (r *Registry) Lookup(name string) (Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.profiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %q", ErrProfileNotFound, name)
	}
	return p, nil
}

// Profiles returns every profile sorted by name.
func (r *Registry) Profiles() []Profile {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Profile, 0, len(r.profiles))
	for _, p := range r.profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
