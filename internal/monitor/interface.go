package monitor

import (
	"context"

	"github.com/linesights/powermon/internal/payload"
	"github.com/linesights/powermon/internal/upload"
)

// Uploader posts one payload and classifies the outcome.
type Uploader interface {
	Send(ctx context.Context, p payload.Payload) upload.Outcome
}

// Counters tracks the agent's success/failure tallies across cycles.
type Counters struct {
	SuccessfulReadings int
	FailedReadings     int
	SuccessfulUploads  int
	FailedUploads      int
}
