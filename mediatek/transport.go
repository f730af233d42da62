package mediatek

import (
	"io"
	"time"

	"github.com/pkg/errors"
	"go.bug.st/serial"
)

// Transport is the duplex byte stream both protocol clients run on.
//
// Read must return ErrTransportTimeout when nothing arrived within the read
// timeout; the timeout applies to every single Read call.
type Transport interface {
	io.ReadWriter
	SetBaudRate(rate int) error
	SetReadTimeout(d time.Duration) error
	ResetInputBuffer() error
}

const DefaultBaudRate = 115200

// SerialTransport is a Transport on a local serial port.
type SerialTransport struct {
	port serial.Port
	name string
	mode serial.Mode
}

func OpenSerial(name string, baud int) (*SerialTransport, error) {
	mode := serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(name, &mode)
	if err != nil {
		return nil, errors.Wrapf(err, "open serial port %s", name)
	}
	return &SerialTransport{port: port, name: name, mode: mode}, nil
}

func (s *SerialTransport) Read(p []byte) (int, error) {
	n, err := s.port.Read(p)
	if err != nil {
		return n, errors.Wrapf(err, "read %s", s.name)
	}
	if n == 0 && len(p) > 0 {
		return 0, ErrTransportTimeout
	}
	return n, nil
}

func (s *SerialTransport) Write(p []byte) (int, error) {
	n, err := s.port.Write(p)
	if err != nil {
		return n, errors.Wrapf(err, "write %s", s.name)
	}
	return n, nil
}

func (s *SerialTransport) SetBaudRate(rate int) error {
	// let queued bytes leave at the old rate first
	if err := s.port.Drain(); err != nil {
		return errors.Wrapf(err, "drain %s", s.name)
	}
	mode := s.mode
	mode.BaudRate = rate
	if err := s.port.SetMode(&mode); err != nil {
		return errors.Wrapf(err, "set %s to %d baud", s.name, rate)
	}
	s.mode = mode
	return nil
}

func (s *SerialTransport) SetReadTimeout(d time.Duration) error {
	return errors.Wrapf(s.port.SetReadTimeout(d), "set read timeout on %s", s.name)
}

func (s *SerialTransport) ResetInputBuffer() error {
	return errors.Wrapf(s.port.ResetInputBuffer(), "flush %s", s.name)
}

func (s *SerialTransport) BaudRate() int { return s.mode.BaudRate }

func (s *SerialTransport) Close() error {
	return s.port.Close()
}

// ListSerialPorts returns the names of the serial ports present on the host.
func ListSerialPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, errors.Wrap(err, "enumerate serial ports")
	}
	return ports, nil
}
