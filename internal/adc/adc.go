// Package adc drives the MCP3008 analog-to-digital converter that digitizes
// the CT sensor outputs. One SPI transaction reads one channel.
package adc

import (
	"github.com/linesights/powermon/internal/errors"
	"github.com/linesights/powermon/internal/logger"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

const (
	// Resolution is the converter's full-scale code count (10 bits).
	Resolution = 1024

	// ReferenceVoltage is the measured board supply feeding the
	// converter's reference input, in volts.
	ReferenceVoltage = 3.31

	// MaxChannel is the highest addressable converter channel.
	MaxChannel = 7

	spiSpeed = 500 * physic.KiloHertz
	spiBits  = 8
)

// ADC owns the SPI handle to the converter. It is created once at startup
// and closed exactly once on shutdown.
type ADC struct {
	port spi.PortCloser
	conn spi.Conn
}

// New initializes the host SPI driver and opens the converter on the given
// port (e.g. "/dev/spidev0.0"). Failure here is fatal to the caller: without
// an acquisition path there is nothing to monitor.
func New(device string) (*ADC, error) {
	errFactory := errors.New()

	if _, err := host.Init(); err != nil {
		return nil, errFactory.Wrap(ErrHostInit, err)
	}

	port, err := spireg.Open(device)
	if err != nil {
		return nil, errFactory.Wrap(ErrOpenFailed, err)
	}

	conn, err := port.Connect(spiSpeed, spi.Mode0, spiBits)
	if err != nil {
		port.Close()
		return nil, errFactory.Wrap(ErrConnectFailed, err)
	}

	logger.Debug().Str("device", device).Msg("ADC initialized")

	return &ADC{port: port, conn: conn}, nil
}

// NewFromConn wraps an existing SPI connection. Used by tests.
func NewFromConn(conn spi.Conn) *ADC {
	return &ADC{conn: conn}
}

// Read performs one single-ended conversion on the given channel and returns
// the 10-bit code. Out-of-range channels and transfer failures are reported
// as errors, never panics; callers treat them as droppable faults.
func (a *ADC) Read(channel int) (int, error) {
	errFactory := errors.New()

	if channel < 0 || channel > MaxChannel {
		return 0, errFactory.WithData(ErrBadChannel, channel)
	}

	// MCP3008 framing: start bit, then single-ended mode with the channel
	// select in the top nibble of the second byte.
	write := []byte{0x01, byte(8+channel) << 4, 0x00}
	read := make([]byte, len(write))

	if err := a.conn.Tx(write, read); err != nil {
		return 0, errFactory.Wrap(ErrTransfer, err)
	}

	code := int(read[1]&0x03)<<8 | int(read[2])

	return code, nil
}

// Close releases the SPI handle.
func (a *ADC) Close() error {
	if a.port == nil {
		return nil
	}
	if err := a.port.Close(); err != nil {
		return errors.New().Wrap(ErrCloseFailed, err)
	}
	return nil
}
