package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/marmos91/volumed/pkg/config"
)

func fixedStatfs(c Capacity, err error) StatfsFunc {
	return func(string) (Capacity, error) { return c, err }
}

func TestLiveness_ReturnsOK(t *testing.T) {
	handler := NewHealthHandler("volumed", nil)
	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()

	handler.Liveness(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, w.Code)
	}

	var resp Response
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if resp.Status != "healthy" {
		t.Errorf("Expected status 'healthy', got '%s'", resp.Status)
	}

	data, ok := resp.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("Expected Data to be a map, got %T", resp.Data)
	}

	if data["service"] != "volumed" {
		t.Errorf("Expected service 'volumed', got '%s'", data["service"])
	}
}

func TestReadiness_NoBackend_Returns503(t *testing.T) {
	handler := NewHealthHandler("volumed", nil)
	req := httptest.NewRequest("GET", "/health/ready", nil)
	w := httptest.NewRecorder()

	handler.Readiness(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status %d, got %d", http.StatusServiceUnavailable, w.Code)
	}

	var resp Response
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if resp.Error != "volume backend not configured" {
		t.Errorf("Expected error 'volume backend not configured', got '%s'", resp.Error)
	}
}

func TestReadiness_StatfsFailure_Returns503(t *testing.T) {
	backend := NewVolumeBackend(config.VolumeConfig{BackendName: "b", DataPath: "/data"}, "1.0",
		fixedStatfs(Capacity{}, errors.New("no such device")))
	handler := NewHealthHandler("volumed", backend)
	w := httptest.NewRecorder()

	handler.Readiness(w, httptest.NewRequest("GET", "/health/ready", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status %d, got %d", http.StatusServiceUnavailable, w.Code)
	}
}

func TestReadiness_Healthy(t *testing.T) {
	backend := NewVolumeBackend(config.VolumeConfig{BackendName: "b", DataPath: "/data"}, "1.0",
		fixedStatfs(Capacity{TotalBytes: 1 << 30, FreeBytes: 1 << 29}, nil))
	handler := NewHealthHandler("volumed", backend)
	w := httptest.NewRecorder()

	handler.Readiness(w, httptest.NewRequest("GET", "/health/ready", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}

	var resp Response
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	data := resp.Data.(map[string]interface{})
	if data["backend"] != "b" {
		t.Errorf("Expected backend 'b', got '%v'", data["backend"])
	}
}
