package mediatek

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrHandshakeTimeout     = errors.New("handshake timeout")
	ErrProtocol             = errors.New("protocol error")
	ErrShortReply           = errors.New("short reply")
	ErrTransportTimeout     = errors.New("transport read timeout")
	ErrShortWrite           = errors.New("short write")
	ErrChecksumMismatch     = errors.New("checksum mismatch")
	ErrSecurityPrecondition = errors.New("security precondition")
	ErrBaudSwitchFailed     = errors.New("baud rate switch failed")
	ErrInvalidState         = errors.New("command not allowed in current state")
	ErrReleased             = errors.New("transport already released")
	ErrInvalidProtocol      = errors.New("invalid protocol descriptor")
)

// ProtocolError is a malformed, unexpected or short reply from the device.
type ProtocolError struct {
	Op     string
	Status uint16
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: device status %#04x", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ProtocolError) Is(target error) bool { return target == ErrProtocol }

func (e *ProtocolError) Unwrap() error { return e.Err }

// ChecksumError reports a device checksum that disagrees with the local one,
// or a non-zero status returned after an upload.
type ChecksumError struct {
	Op       string
	Expected uint32
	Actual   uint32
	Status   uint16
}

func (e *ChecksumError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: device rejected upload with status %#04x", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: checksum mismatch, expected %#x, device reported %#x", e.Op, e.Expected, e.Actual)
}

func (e *ChecksumError) Is(target error) bool { return target == ErrChecksumMismatch }

// ShortWriteError is returned when fewer bytes than requested reached, or were
// acknowledged by, the device.
type ShortWriteError struct {
	Op   string
	Want int
	Got  int
	Err  error
}

func (e *ShortWriteError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: wrote %d of %d bytes: %v", e.Op, e.Got, e.Want, e.Err)
	}
	return fmt.Sprintf("%s: device acknowledged %d of %d bytes", e.Op, e.Got, e.Want)
}

func (e *ShortWriteError) Is(target error) bool { return target == ErrShortWrite }

func (e *ShortWriteError) Unwrap() error { return e.Err }

// BaudSwitchError means the handshake following a baud rate change failed.
// It unwraps to ErrBaudSwitchFailed only, never to ErrHandshakeTimeout; the
// underlying handshake error is kept in Cause.
type BaudSwitchError struct {
	Rate  int
	Cause error
}

func (e *BaudSwitchError) Error() string {
	return fmt.Sprintf("no resync after switching to %d baud: %v", e.Rate, e.Cause)
}

func (e *BaudSwitchError) Unwrap() error { return ErrBaudSwitchFailed }

// SecurityError is raised by the orchestrator when the target reports any
// security feature that blocks unauthorized UART download.
type SecurityError struct {
	Config SecurityConfig
}

func (e *SecurityError) Error() string {
	switch {
	case e.Config.SecureBoot:
		return "secure boot enabled"
	case e.Config.SLA:
		return "serial link authorization enabled"
	case e.Config.DAA:
		return "download agent authorization enabled"
	}
	return "security precondition failed"
}

func (e *SecurityError) Is(target error) bool { return target == ErrSecurityPrecondition }

// StateError reports a command issued in a state that does not allow it.
type StateError struct {
	Op    string
	State fmt.Stringer
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s not allowed in state %s", e.Op, e.State)
}

func (e *StateError) Is(target error) bool { return target == ErrInvalidState }
