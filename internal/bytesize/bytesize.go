// Package bytesize parses and prints human-readable byte quantities such as
// "512MiB" or "2GB" used in configuration files.
package bytesize

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// ByteSize is a quantity of bytes.
type ByteSize uint64

const (
	B  ByteSize = 1
	KB ByteSize = 1000 * B
	MB ByteSize = 1000 * KB
	GB ByteSize = 1000 * MB
	TB ByteSize = 1000 * GB

	KiB ByteSize = 1 << 10
	MiB ByteSize = 1 << 20
	GiB ByteSize = 1 << 30
	TiB ByteSize = 1 << 40
)

var units = map[string]ByteSize{
	"": B, "b": B,
	"k": KB, "kb": KB, "m": MB, "mb": MB, "g": GB, "gb": GB, "t": TB, "tb": TB,
	"ki": KiB, "kib": KiB, "mi": MiB, "mib": MiB, "gi": GiB, "gib": GiB, "ti": TiB, "tib": TiB,
}

// Parse accepts a number with an optional decimal (K, MB) or binary
// (Ki, MiB) unit suffix. Units are case-insensitive.
func Parse(s string) (ByteSize, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return 0, fmt.Errorf("empty byte size")
	}

	split := strings.IndexFunc(trimmed, func(r rune) bool {
		return !unicode.IsDigit(r) && r != '.'
	})
	number, suffix := trimmed, ""
	if split >= 0 {
		number, suffix = trimmed[:split], strings.TrimSpace(trimmed[split:])
	}

	unit, ok := units[strings.ToLower(suffix)]
	if !ok {
		return 0, fmt.Errorf("unknown byte size unit %q in %q", suffix, s)
	}

	if !strings.Contains(number, ".") {
		n, err := strconv.ParseUint(number, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid byte size %q", s)
		}
		return ByteSize(n) * unit, nil
	}

	f, err := strconv.ParseFloat(number, 64)
	if err != nil || f < 0 {
		return 0, fmt.Errorf("invalid byte size %q", s)
	}
	return ByteSize(f * float64(unit)), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (b *ByteSize) UnmarshalText(text []byte) error {
	size, err := Parse(string(text))
	if err != nil {
		return err
	}
	*b = size
	return nil
}

// MarshalText implements encoding.TextMarshaler so saved configs stay readable.
func (b ByteSize) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// String prints the largest binary unit that divides b exactly.
func (b ByteSize) String() string {
	for _, u := range []struct {
		size ByteSize
		name string
	}{{TiB, "TiB"}, {GiB, "GiB"}, {MiB, "MiB"}, {KiB, "KiB"}} {
		if b >= u.size && b%u.size == 0 {
			return strconv.FormatUint(uint64(b/u.size), 10) + u.name
		}
	}
	return strconv.FormatUint(uint64(b), 10)
}

// Int64 returns b as an int64, saturating at the maximum int64.
func (b ByteSize) Int64() int64 {
	const maxInt64 = 1<<63 - 1
	if b > maxInt64 {
		return maxInt64
	}
	return int64(b)
}
