package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/marmos91/volumed/internal/logger"
	"github.com/marmos91/volumed/internal/telemetry"
	"github.com/marmos91/volumed/pkg/config"
)

const bytesPerGiB = 1 << 30

// CapacityGB is a capacity in GiB. Unknown capacity serializes as
// "infinite", matching what schedulers expect from unbounded backends.
type CapacityGB float64

// Infinite marks a capacity that cannot be measured.
const Infinite CapacityGB = -1

// MarshalJSON implements json.Marshaler.
func (c CapacityGB) MarshalJSON() ([]byte, error) {
	if c < 0 {
		return []byte(`"infinite"`), nil
	}
	return []byte(strconv.FormatFloat(float64(c), 'f', 2, 64)), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *CapacityGB) UnmarshalJSON(data []byte) error {
	if string(data) == `"infinite"` {
		*c = Infinite
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("capacity must be a number or \"infinite\": %w", err)
	}
	*c = CapacityGB(f)
	return nil
}

// Capacity is the raw filesystem capacity behind the data path.
type Capacity struct {
	TotalBytes uint64
	FreeBytes  uint64
}

// VolumeStats is the backend report served by GET /v1/stats.
type VolumeStats struct {
	VolumeBackendName  string     `json:"volume_backend_name"`
	VendorName         string     `json:"vendor_name"`
	DriverVersion      string     `json:"driver_version"`
	StorageProtocol    string     `json:"storage_protocol"`
	TotalCapacityGB    CapacityGB `json:"total_capacity_gb"`
	FreeCapacityGB     CapacityGB `json:"free_capacity_gb"`
	ReservedPercentage int        `json:"reserved_percentage"`
	QoSSupport         bool       `json:"QoS_support"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// StatfsFunc reports the capacity of the filesystem holding path.
type StatfsFunc func(path string) (Capacity, error)

// VolumeBackend describes the volume backend and caches its last stats.
//
// Thread safety: all methods are safe for concurrent use.
type VolumeBackend struct {
	cfg     config.VolumeConfig
	version string
	statfs  StatfsFunc

	mu    sync.Mutex
	stats *VolumeStats
}

// NewVolumeBackend creates a backend. A nil statfs uses the platform
// implementation.
func NewVolumeBackend(cfg config.VolumeConfig, version string, statfs StatfsFunc) *VolumeBackend {
	if statfs == nil {
		statfs = Statfs
	}
	return &VolumeBackend{cfg: cfg, version: version, statfs: statfs}
}

// Name returns the configured backend name.
func (b *VolumeBackend) Name() string { return b.cfg.BackendName }

// Capacity queries the data path. An empty data path has no measurable
// capacity and reports Infinite without touching the filesystem.
func (b *VolumeBackend) Capacity(ctx context.Context) (Capacity, error) {
	if b.cfg.DataPath == "" {
		return Capacity{TotalBytes: math.MaxUint64, FreeBytes: math.MaxUint64}, nil
	}

	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanStatfs)
	defer span.End()

	c, err := b.statfs(b.cfg.DataPath)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return Capacity{}, fmt.Errorf("statfs %s: %w", b.cfg.DataPath, err)
	}
	return c, nil
}

// Stats returns the backend report. Cached stats are reused unless refresh
// is set or none were collected yet.
func (b *VolumeBackend) Stats(ctx context.Context, refresh bool) (VolumeStats, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stats != nil && !refresh {
		return *b.stats, nil
	}

	logger.DebugCtx(ctx, "Updating volume stats", "backend", b.cfg.BackendName)

	stats := VolumeStats{
		VolumeBackendName:  b.cfg.BackendName,
		VendorName:         b.cfg.VendorName,
		DriverVersion:      b.version,
		StorageProtocol:    b.cfg.StorageProtocol,
		TotalCapacityGB:    Infinite,
		FreeCapacityGB:     Infinite,
		ReservedPercentage: b.cfg.ReservedPercentage,
		QoSSupport:         false,
		UpdatedAt:          time.Now().UTC(),
	}

	if b.cfg.DataPath != "" {
		c, err := b.Capacity(ctx)
		if err != nil {
			return VolumeStats{}, err
		}
		stats.TotalCapacityGB = toGB(c.TotalBytes)
		stats.FreeCapacityGB = toGB(c.FreeBytes)
	}

	b.stats = &stats
	return stats, nil
}

func toGB(bytes uint64) CapacityGB {
	return CapacityGB(math.Round(float64(bytes)/bytesPerGiB*100) / 100)
}

// VolumeHandler serves the volume backend endpoints.
type VolumeHandler struct {
	backend *VolumeBackend
	project string
	version string
}

// NewVolumeHandler creates a volume handler.
func NewVolumeHandler(backend *VolumeBackend, project, version string) *VolumeHandler {
	return &VolumeHandler{backend: backend, project: project, version: version}
}

// Stats handles GET /v1/stats.
//
// Query parameters:
//   - refresh: "true" recollects capacity instead of serving the cached report
func (h *VolumeHandler) Stats(w http.ResponseWriter, r *http.Request) {
	refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))

	ctx, span := telemetry.StartSpan(r.Context(), telemetry.SpanVolumeStats)
	defer span.End()

	stats, err := h.backend.Stats(ctx, refresh)
	if err != nil {
		logger.WarnCtx(ctx, "Volume stats unavailable", logger.Err(err))
		writeJSON(w, http.StatusServiceUnavailable, errorResponse(err.Error()))
		return
	}

	writeJSON(w, http.StatusOK, okResponse(stats))
}

// Version handles GET /v1/version.
func (h *VolumeHandler) Version(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, okResponse(map[string]string{
		"service": h.project,
		"version": h.version,
	}))
}
