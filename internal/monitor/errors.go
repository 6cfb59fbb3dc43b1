package monitor

import "github.com/linesights/powermon/internal/errors"

const (
	ErrCyclePanic = errors.ErrorCode("monitor_cycle_panic")
)
