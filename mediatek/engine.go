package mediatek

import (
	"bytes"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// ProgressFunc is called after every uploaded chunk.
type ProgressFunc func(sent, total int)

// engine implements the mechanics shared by the BootROM and BL2 protocols:
// complement handshake, echoed command fields, 16-bit status words and
// chunked uploads followed by a device checksum.
type engine struct {
	t        Transport
	proto    *Protocol
	log      *log.Entry
	progress ProgressFunc

	// descriptor error, reported by every operation
	invalid error
}

func newEngine(t Transport, proto *Protocol) *engine {
	return &engine{
		t:       t,
		proto:   proto,
		log:     log.WithField("proto", proto.Name),
		invalid: proto.Validate(),
	}
}

func (e *engine) release() (Transport, error) {
	if e.t == nil {
		return nil, ErrReleased
	}
	t := e.t
	e.t = nil
	return t, nil
}

func (e *engine) transport() (Transport, error) {
	if e.t == nil {
		return nil, ErrReleased
	}
	if e.invalid != nil {
		return nil, e.invalid
	}
	return e.t, nil
}

func (e *engine) write(op string, data []byte) error {
	e.log.Tracef("Out: % #x", data)
	n, err := e.t.Write(data)
	if err != nil || n != len(data) {
		return &ShortWriteError{Op: op, Want: len(data), Got: n, Err: err}
	}
	return nil
}

func (e *engine) read(op string, n int) ([]byte, error) {
	buf, err := ReadReply(e.t, n)
	if len(buf) > 0 {
		e.log.Tracef("In: % #x", buf)
	}
	if err != nil {
		if pe, ok := err.(*ProtocolError); ok {
			pe.Op = op
		}
		return buf, err
	}
	return buf, nil
}

// handshake repeats the probe until it is answered, then requires an exact
// complement for each remaining magic byte.
func (e *engine) handshake() error {
	magic := e.proto.Magic
	if err := e.t.SetReadTimeout(e.proto.ProbeInterval); err != nil {
		return err
	}

	start := time.Now()
	probed := false
	for i := 0; i < e.proto.ProbeAttempts && time.Since(start) < e.proto.HandshakeBudget; i++ {
		if err := e.write("handshake", magic[:1]); err != nil {
			return err
		}
		b, err := e.read("handshake", 1)
		if err != nil {
			if errors.Is(err, ErrShortReply) {
				continue
			}
			return err
		}
		if b[0] == ^magic[0] {
			probed = true
			break
		}
		e.log.Tracef("ignoring %#02x while probing", b[0])
	}
	if !probed {
		return errors.Wrapf(ErrHandshakeTimeout, "%s: no answer to probe %#02x after %v",
			e.proto.Name, magic[0], time.Since(start).Round(time.Millisecond))
	}

	// stale probe answers may still be queued
	if err := e.t.ResetInputBuffer(); err != nil {
		return err
	}
	if err := e.t.SetReadTimeout(e.proto.ReadTimeout); err != nil {
		return err
	}

	for _, m := range magic[1:] {
		if err := e.write("handshake", []byte{m}); err != nil {
			return err
		}
		b, err := e.read("handshake", 1)
		if err != nil {
			if errors.Is(err, ErrShortReply) {
				return errors.Wrapf(ErrHandshakeTimeout, "%s: no answer to %#02x", e.proto.Name, m)
			}
			return err
		}
		if b[0] != ^m {
			return errors.Wrapf(ErrHandshakeTimeout, "%s: sent %#02x, got %#02x", e.proto.Name, m, b[0])
		}
	}
	e.log.Debug("handshake complete")
	return nil
}

// echo writes data and requires the device to send it back unchanged.
func (e *engine) echo(op string, data []byte) error {
	if err := e.write(op, data); err != nil {
		return err
	}
	got, err := e.read(op, len(data))
	if err != nil {
		return err
	}
	if !bytes.Equal(got, data) {
		return &ProtocolError{Op: op, Err: errors.Errorf("echo mismatch: sent % x, got % x", data, got)}
	}
	return nil
}

func (e *engine) command(op Opcode) error {
	code, err := e.proto.opcode(op)
	if err != nil {
		return err
	}
	e.log.Debugf("command %s (%#02x)", op, code)
	return e.echo(op.String(), []byte{code})
}

func (e *engine) echo32(op string, v uint32) error {
	return e.echo(op, e.proto.word32(v))
}

func (e *engine) read16(op string) (uint16, error) {
	b, err := e.read(op, 2)
	if err != nil {
		return 0, err
	}
	return e.proto.Order.Uint16(b), nil
}

func (e *engine) read32(op string) (uint32, error) {
	b, err := e.read(op, 4)
	if err != nil {
		return 0, err
	}
	return e.proto.Order.Uint32(b), nil
}

func (e *engine) readSum(op string) (uint32, error) {
	size := e.proto.Checksum.Size()
	b, err := e.read(op, size)
	if err != nil {
		return 0, err
	}
	switch size {
	case 1:
		return uint32(b[0]), nil
	case 2:
		return uint32(e.proto.Order.Uint16(b)), nil
	default:
		return e.proto.Order.Uint32(b), nil
	}
}

// status reads a 16-bit status word, zero meaning success.
func (e *engine) status(op string) error {
	st, err := e.read16(op)
	if err != nil {
		return err
	}
	if st != 0 {
		return &ProtocolError{Op: op, Status: st}
	}
	return nil
}

// echoLength sends the upload length. A device that acknowledges a different
// length would silently truncate or wait for more data.
func (e *engine) echoLength(op string, n int) error {
	want := e.proto.word32(uint32(n))
	if err := e.write(op, want); err != nil {
		return err
	}
	got, err := e.read(op, 4)
	if err != nil {
		return err
	}
	if acked := int(e.proto.Order.Uint32(got)); acked != n {
		return &ShortWriteError{Op: op, Want: n, Got: acked}
	}
	return nil
}

// upload streams data in chunks and checks the device checksum against the
// local one. The returned value is the device checksum.
func (e *engine) upload(op string, data []byte) (uint32, error) {
	chunk := e.proto.ChunkSize
	for sent := 0; sent < len(data); {
		end := sent + chunk
		if end > len(data) {
			end = len(data)
		}
		n, err := e.t.Write(data[sent:end])
		if err != nil || n != end-sent {
			return 0, &ShortWriteError{Op: op, Want: len(data), Got: sent + n, Err: err}
		}
		sent = end
		if e.progress != nil {
			e.progress(sent, len(data))
		}
	}
	e.log.Debugf("%s: %d bytes sent", op, len(data))

	local := e.proto.Checksum.Sum(data)
	remote, err := e.readSum(op)
	if err != nil {
		return 0, err
	}
	st, err := e.read16(op)
	if err != nil {
		return remote, err
	}
	if st != 0 || remote != local {
		return remote, &ChecksumError{Op: op, Expected: local, Actual: remote, Status: st}
	}
	return remote, nil
}
