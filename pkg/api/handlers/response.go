package handlers

import (
	"encoding/json"
	"net/http"
	"time"
)

// Response represents a standard API response wrapper.
//
// All API responses follow this structure for consistency:
//   - Status indicates the overall result ("healthy", "unhealthy", "ok", "error")
//   - Timestamp provides response time for debugging and caching
//   - Data contains the response payload (optional)
//   - Error contains error details when Status indicates failure (optional)
type Response struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// writeJSON writes a JSON response with the given status code.
//
// The response is written with Content-Type: application/json header.
// Encoding errors after the header is sent cannot be reported to the client.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func healthyResponse(data any) Response {
	return Response{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

func unhealthyResponse(errMsg string) Response {
	return Response{
		Status:    "unhealthy",
		Timestamp: time.Now().UTC(),
		Error:     errMsg,
	}
}

func okResponse(data any) Response {
	return Response{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

func errorResponse(errMsg string) Response {
	return Response{
		Status:    "error",
		Timestamp: time.Now().UTC(),
		Error:     errMsg,
	}
}

// NotFound writes a 404 error response.
func NotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, errorResponse("no route for "+r.Method+" "+r.URL.Path))
}

// MethodNotAllowed writes a 405 error response.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusMethodNotAllowed, errorResponse("method "+r.Method+" not allowed"))
}
