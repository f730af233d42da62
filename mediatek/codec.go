package mediatek

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// Opcode names a protocol command independent of its wire value.
type Opcode int

const (
	OpGetHWCode Opcode = iota
	OpGetHWDict
	OpGetTargetConfig
	OpSendDA
	OpJumpDA
	OpVersion
	OpSetBaudrate
	OpSendFIP
	OpGo
)

func (o Opcode) String() string {
	switch o {
	case OpGetHWCode:
		return "GET_HW_CODE"
	case OpGetHWDict:
		return "GET_HW_SW_VER"
	case OpGetTargetConfig:
		return "GET_TARGET_CONFIG"
	case OpSendDA:
		return "SEND_DA"
	case OpJumpDA:
		return "JUMP_DA"
	case OpVersion:
		return "GET_VERSION"
	case OpSetBaudrate:
		return "SET_BAUDRATE"
	case OpSendFIP:
		return "SEND_FIP"
	case OpGo:
		return "GO"
	}
	return fmt.Sprintf("Unknown opcode %d", int(o))
}

// Protocol describes one boot-time download protocol. Magic bytes, opcode
// values and the checksum differ between ROM and bootloader revisions, so
// they are data rather than code.
type Protocol struct {
	Name string

	// Magic is sent byte by byte during the handshake. The device answers
	// every byte with its bitwise complement. The first byte doubles as the
	// probe that is repeated until the device responds.
	Magic []byte

	ProbeInterval   time.Duration
	ProbeAttempts   int
	HandshakeBudget time.Duration
	ReadTimeout     time.Duration

	Order     binary.ByteOrder
	Opcodes   map[Opcode]byte
	Checksum  Checksum
	ChunkSize int
}

// Validate checks that the descriptor can drive a session.
func (p *Protocol) Validate() error {
	switch {
	case len(p.Magic) == 0:
		return errors.Wrapf(ErrInvalidProtocol, "%s: no magic bytes", p.Name)
	case p.Order == nil:
		return errors.Wrapf(ErrInvalidProtocol, "%s: no byte order", p.Name)
	case p.Checksum == nil:
		return errors.Wrapf(ErrInvalidProtocol, "%s: no checksum", p.Name)
	case p.ChunkSize <= 0:
		return errors.Wrapf(ErrInvalidProtocol, "%s: chunk size %d", p.Name, p.ChunkSize)
	}
	if !validWordSize(p.Checksum.Size()) {
		return errors.Wrapf(ErrInvalidProtocol, "%s: %s checksum is %d bytes wide",
			p.Name, p.Checksum, p.Checksum.Size())
	}
	return nil
}

func validWordSize(n int) bool {
	return n == 1 || n == 2 || n == 4
}

func (p *Protocol) opcode(op Opcode) (byte, error) {
	b, ok := p.Opcodes[op]
	if !ok {
		return 0, errors.Errorf("%s: opcode %s not defined", p.Name, op)
	}
	return b, nil
}

// EncodeCommand serializes an opcode followed by its 32-bit arguments.
func EncodeCommand(p *Protocol, op Opcode, args ...uint32) ([]byte, error) {
	code, err := p.opcode(op)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 1, 1+4*len(args))
	buf[0] = code
	for _, a := range args {
		buf = append(buf, p.word32(a)...)
	}
	return buf, nil
}

func (p *Protocol) word32(v uint32) []byte {
	b := make([]byte, 4)
	p.Order.PutUint32(b, v)
	return b
}

// ReadReply reads exactly n bytes. Each underlying read is bounded by the
// transport's read timeout; running out of time mid-reply is a short reply.
func ReadReply(t Transport, n int) ([]byte, error) {
	buf := make([]byte, n)
	got := 0
	for got < n {
		m, err := t.Read(buf[got:])
		got += m
		if err != nil {
			if errors.Is(err, ErrTransportTimeout) {
				return buf[:got], &ProtocolError{
					Op:  "read",
					Err: errors.Wrapf(ErrShortReply, "got %d of %d bytes", got, n),
				}
			}
			return buf[:got], err
		}
	}
	return buf, nil
}
