package mediatek

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/sigurn/crc16"
)

/*
BL2 UART download protocol. Framing matches the BootROM one (complement
handshake, echoed command fields, big endian words, u16 status):

	handshake     host "mudl", device answers the complement of each byte
	GET_VERSION   01       -> u16 version, u16 status
	SET_BAUDRATE  02 rate  -> u16 status, then both sides switch
	SEND_FIP      03 len   -> u16 status, data..., u16 crc16, u16 status
	GO            04       (BL2 hands off, nothing is read)

BL2 owns the FIP load address, so SEND_FIP carries none.
*/

const (
	BL2_CMD_GET_VERSION  byte = 0x01
	BL2_CMD_SET_BAUDRATE byte = 0x02
	BL2_CMD_SEND_FIP     byte = 0x03
	BL2_CMD_GO           byte = 0x04
)

const DefaultBL2Baudrate = 921600

// BL2Protocol is the descriptor of the second stage UART download protocol.
var BL2Protocol = Protocol{
	Name:            "bl2",
	Magic:           []byte("mudl"),
	ProbeInterval:   100 * time.Millisecond,
	ProbeAttempts:   50,
	HandshakeBudget: 10 * time.Second,
	ReadTimeout:     2 * time.Second,
	Order:           binary.BigEndian,
	Opcodes: map[Opcode]byte{
		OpVersion:     BL2_CMD_GET_VERSION,
		OpSetBaudrate: BL2_CMD_SET_BAUDRATE,
		OpSendFIP:     BL2_CMD_SEND_FIP,
		OpGo:          BL2_CMD_GO,
	},
	Checksum:  NewCRC16(crc16.CRC16_CCITT_FALSE),
	ChunkSize: 1024,
}

type BL2State int

const (
	BL2_STATE_IDLE BL2State = iota
	BL2_STATE_HANDSHAKING
	BL2_STATE_READY
	BL2_STATE_VERSION_QUERIED
	BL2_STATE_BAUD_SWITCHED
	BL2_STATE_UPLOADING
	BL2_STATE_EXECUTING
)

func (s BL2State) String() string {
	switch s {
	case BL2_STATE_IDLE:
		return "Idle"
	case BL2_STATE_HANDSHAKING:
		return "Handshaking"
	case BL2_STATE_READY:
		return "Ready"
	case BL2_STATE_VERSION_QUERIED:
		return "VersionQueried"
	case BL2_STATE_BAUD_SWITCHED:
		return "BaudSwitched"
	case BL2_STATE_UPLOADING:
		return "Uploading"
	case BL2_STATE_EXECUTING:
		return "Executing"
	}
	return fmt.Sprintf("Unknown BL2 state %d", int(s))
}

// BL2 drives the UART download mode of a second stage bootloader. The caller
// must have seen BL2's handshake banner on the text channel before calling
// Handshake.
type BL2 struct {
	*engine
	state BL2State

	// rate the transport was switched to and not yet confirmed by a handshake
	pendingBaud int

	// last SendFIP completed with a matching checksum
	verified bool
}

func NewBL2(t Transport) *BL2 {
	return NewBL2WithProtocol(t, &BL2Protocol)
}

func NewBL2WithProtocol(t Transport, proto *Protocol) *BL2 {
	return &BL2{engine: newEngine(t, proto)}
}

func (b *BL2) State() BL2State { return b.state }

func (b *BL2) SetProgress(fn ProgressFunc) { b.progress = fn }

func (b *BL2) Release() (Transport, error) {
	return b.release()
}

func (b *BL2) ready(op string) error {
	if _, err := b.transport(); err != nil {
		return err
	}
	if b.state < BL2_STATE_READY || b.state == BL2_STATE_EXECUTING || b.pendingBaud != 0 {
		return &StateError{Op: op, State: b.state}
	}
	return nil
}

// Handshake synchronizes with BL2. Following SetBaudrate it is the resync
// handshake at the new rate, and a failure is reported as *BaudSwitchError.
func (b *BL2) Handshake() error {
	if _, err := b.transport(); err != nil {
		return err
	}
	if b.state == BL2_STATE_EXECUTING {
		return &StateError{Op: "handshake", State: b.state}
	}
	prev := b.state
	b.state = BL2_STATE_HANDSHAKING
	if err := b.handshake(); err != nil {
		if rate := b.pendingBaud; rate != 0 {
			b.state = prev
			return &BaudSwitchError{Rate: rate, Cause: err}
		}
		b.state = BL2_STATE_IDLE
		return err
	}
	if b.pendingBaud != 0 {
		b.log.Debugf("resynchronized at %d baud", b.pendingBaud)
		b.pendingBaud = 0
		b.state = BL2_STATE_BAUD_SWITCHED
		return nil
	}
	if prev > BL2_STATE_READY {
		b.state = prev
	} else {
		b.state = BL2_STATE_READY
	}
	return nil
}

// Version queries the protocol version. It is informational only.
func (b *BL2) Version() (uint16, error) {
	op := OpVersion.String()
	if err := b.ready(op); err != nil {
		return 0, err
	}
	if err := b.command(OpVersion); err != nil {
		return 0, err
	}
	v, err := b.read16(op)
	if err != nil {
		return 0, err
	}
	if err := b.status(op); err != nil {
		return 0, err
	}
	if b.state < BL2_STATE_VERSION_QUERIED {
		b.state = BL2_STATE_VERSION_QUERIED
	}
	return v, nil
}

// SetBaudrate asks BL2 to change its UART speed and, once acknowledged,
// switches the owned transport to the same rate. Handshake must be called
// next to confirm both sides resynchronized.
func (b *BL2) SetBaudrate(rate int) error {
	op := OpSetBaudrate.String()
	if err := b.ready(op); err != nil {
		return err
	}
	if err := b.command(OpSetBaudrate); err != nil {
		return err
	}
	if err := b.echo32(op, uint32(rate)); err != nil {
		return err
	}
	if err := b.status(op); err != nil {
		return err
	}
	if err := b.t.SetBaudRate(rate); err != nil {
		return &BaudSwitchError{Rate: rate, Cause: err}
	}
	b.pendingBaud = rate
	return nil
}

// SendFIP uploads a firmware image package to BL2's load address and
// returns the device checksum.
func (b *BL2) SendFIP(data []byte) (uint16, error) {
	op := OpSendFIP.String()
	if err := b.ready(op); err != nil {
		return 0, err
	}
	b.state = BL2_STATE_UPLOADING
	b.verified = false
	if err := b.command(OpSendFIP); err != nil {
		return 0, err
	}
	if err := b.echoLength(op, len(data)); err != nil {
		return 0, err
	}
	if err := b.status(op); err != nil {
		return 0, err
	}
	sum, err := b.upload(op, data)
	b.verified = err == nil
	return uint16(sum), err
}

// Go lets BL2 continue booting the uploaded image. Nothing is read back. The
// last SendFIP must have been verified.
func (b *BL2) Go() error {
	op := OpGo.String()
	if err := b.ready(op); err != nil {
		return err
	}
	if !b.verified {
		return &StateError{Op: op, State: b.state}
	}
	cmd, err := EncodeCommand(b.proto, OpGo)
	if err != nil {
		return err
	}
	if err := b.write(op, cmd); err != nil {
		return err
	}
	b.state = BL2_STATE_EXECUTING
	return nil
}
