// Package drivers holds bus transport and driver implementations for the
// sequencing engine: the serial transport the connection manager opens
// for real hardware, and a scriptable mock driver for tests and dry runs.
package drivers

import (
	"errors"
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"

	"github.com/Mezrus/animatronic-control/sequencer"
)

// Transport is the byte-level connection to one bus. A wire-protocol
// driver wraps a Transport to satisfy sequencer.Driver.
type Transport interface {
	io.ReadWriteCloser

	// SetReadTimeout sets the read timeout duration.
	SetReadTimeout(timeout time.Duration) error

	// Flush discards any buffered input data.
	Flush() error
}

// SerialTransport implements Transport over a hardware serial port.
type SerialTransport struct {
	port     serial.Port
	portName string
	timeout  time.Duration
}

// SerialConfig holds configuration for opening a serial port.
type SerialConfig struct {
	Port     string
	BaudRate int
	Timeout  time.Duration
}

// OpenSerial opens a serial port at the given baud rate. Half-duplex
// servo buses run 8N1.
func OpenSerial(cfg SerialConfig) (*SerialTransport, error) {
	if cfg.Port == "" {
		return nil, errors.New("serial port path is required")
	}
	if cfg.BaudRate == 0 {
		return nil, errors.New("baud rate is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = time.Second
	}

	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(cfg.Port, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port: %w", err)
	}

	if err := port.SetReadTimeout(cfg.Timeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set read timeout: %w", err)
	}

	return &SerialTransport{
		port:     port,
		portName: cfg.Port,
		timeout:  cfg.Timeout,
	}, nil
}

func (t *SerialTransport) Read(p []byte) (int, error) {
	return t.port.Read(p)
}

func (t *SerialTransport) Write(p []byte) (int, error) {
	return t.port.Write(p)
}

func (t *SerialTransport) Close() error {
	return t.port.Close()
}

func (t *SerialTransport) SetReadTimeout(timeout time.Duration) error {
	t.timeout = timeout
	return t.port.SetReadTimeout(timeout)
}

func (t *SerialTransport) Flush() error {
	// Drain any stale half-duplex echo before the next transaction.
	buf := make([]byte, 4096)
	t.port.SetReadTimeout(10 * time.Millisecond)
	for {
		n, err := t.port.Read(buf)
		if n == 0 || err != nil {
			break
		}
	}
	t.port.SetReadTimeout(t.timeout)
	return nil
}

// PortName returns the serial port name.
func (t *SerialTransport) PortName() string {
	return t.portName
}

// SerialFactory returns a DriverFactory that opens each bus's serial
// port at the manifest's declared link speed and hands the transport to
// build, which wraps it in a wire-protocol driver.
func SerialFactory(build func(t Transport) sequencer.Driver, timeout time.Duration) sequencer.DriverFactory {
	return func(bus string, linkSpeed int) (sequencer.Driver, error) {
		t, err := OpenSerial(SerialConfig{Port: bus, BaudRate: linkSpeed, Timeout: timeout})
		if err != nil {
			return nil, err
		}
		return build(t), nil
	}
}
