package adc

import "github.com/linesights/powermon/internal/errors"

const (
	ErrHostInit      = errors.ErrorCode("adc_host_init_failed")
	ErrOpenFailed    = errors.ErrorCode("adc_open_failed")
	ErrConnectFailed = errors.ErrorCode("adc_connect_failed")
	ErrBadChannel    = errors.ErrorCode("adc_bad_channel")
	ErrTransfer      = errors.ErrorCode("adc_transfer_failed")
	ErrCloseFailed   = errors.ErrorCode("adc_close_failed")
)
