package server

import "time"

// MetricsRecorder records connection lifecycle metrics for one instance.
// A nil recorder disables collection.
type MetricsRecorder interface {
	RecordConnectionAccepted()
	RecordConnectionClosed(d time.Duration)
	RecordConnectionForceClosed()
	RecordConnectionError()
	SetActiveConnections(count int32)
}

// MetricsFactory returns the recorder for a profile. It may return nil.
type MetricsFactory func(profile string) MetricsRecorder
