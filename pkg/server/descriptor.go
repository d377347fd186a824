package server

import (
	"net"
	"net/netip"
	"regexp"
	"slices"
	"strconv"
	"time"
)

// Descriptor is the fully resolved bind description of one instance.
type Descriptor struct {
	Profile        string
	Host           string
	Port           int
	Backlog        int
	MaxConnections int

	// GracePeriod bounds the drain. Zero waits for every connection.
	GracePeriod time.Duration
}

// Address returns host:port.
func (d Descriptor) Address() string {
	return net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
}

var hostnamePattern = regexp.MustCompile(`^(?i)[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?(\.[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?)*$`)

// Validate checks the descriptor against its own constraints and the list of
// reserved ports.
func (d Descriptor) Validate(reservedPorts []int) error {
	fail := func(field, reason string) error {
		return &BindConfigError{Profile: d.Profile, Field: field, Reason: reason}
	}

	switch {
	case d.Host == "":
		return fail("host", "must not be empty")
	case !validHost(d.Host):
		return fail("host", strconv.Quote(d.Host)+" is neither an IP address nor a hostname")
	case d.Port < 0 || d.Port > 65535:
		return fail("port", strconv.Itoa(d.Port)+" is outside 0-65535")
	case d.Port != 0 && slices.Contains(reservedPorts, d.Port):
		return fail("port", strconv.Itoa(d.Port)+" is reserved")
	case d.Backlog < 0:
		return fail("backlog", "must not be negative")
	case d.MaxConnections < 0:
		return fail("max_connections", "must not be negative")
	case d.GracePeriod < 0:
		return fail("grace_period", "must not be negative")
	}
	return nil
}

// conflicts reports whether d and other would claim the same socket.
// Ephemeral ports never conflict.
func (d Descriptor) conflicts(other Descriptor) bool {
	if d.Port == 0 || d.Port != other.Port {
		return false
	}
	return d.Host == other.Host || isWildcard(d.Host) || isWildcard(other.Host)
}

func validHost(host string) bool {
	if _, err := netip.ParseAddr(host); err == nil {
		return true
	}
	return len(host) <= 253 && hostnamePattern.MatchString(host)
}

func isWildcard(host string) bool {
	addr, err := netip.ParseAddr(host)
	return err == nil && addr.IsUnspecified()
}
