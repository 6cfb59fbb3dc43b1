package store

import (
	"context"
	"time"
)

// Archive persists one record per monitoring cycle for local inspection.
// The upload path never depends on it.
type Archive interface {
	Record(ctx context.Context, rec *CycleRecord) error
	Close() error
}

// CycleRecord is the locally archived view of one cycle.
type CycleRecord struct {
	Timestamp      time.Time
	DeviceID       string
	TotalPowerW    float64
	ActiveChannels int
	DroppedSamples int
	Payload        string // wire JSON as uploaded
	UploadStatus   string
	HTTPStatus     int
}
