package mediatek

import (
	"encoding/binary"
	"fmt"
	"time"
)

/*
BootROM download agent protocol, every field is big endian:

	handshake  host a0 0a 50 05, device answers 5f f5 af fa
	command    host op              -> device echoes op
	word arg   host u32             -> device echoes u32

	GET_HW_CODE        fd                 -> u16 hw_code, u16 status
	GET_HW_SW_VER      fc                 -> u16 sub_code, u16 hw_ver, u16 sw_ver, u16 status
	GET_TARGET_CONFIG  d8                 -> u32 config, u16 status
	SEND_DA            d7 addr len offset -> u16 status, data..., u16 checksum, u16 status
	JUMP_DA            d5 addr            (ROM stops answering)
*/

const (
	BROM_CMD_GET_HW_CODE       byte = 0xfd
	BROM_CMD_GET_HW_SW_VER     byte = 0xfc
	BROM_CMD_GET_TARGET_CONFIG byte = 0xd8
	BROM_CMD_SEND_DA           byte = 0xd7
	BROM_CMD_JUMP_DA           byte = 0xd5
)

// Target config bits.
const (
	TARGET_CONFIG_SBC uint32 = 1 << 0
	TARGET_CONFIG_SLA uint32 = 1 << 1
	TARGET_CONFIG_DAA uint32 = 1 << 2
)

const (
	DefaultLoadAddr    uint32 = 0x201000
	DefaultA32LoadAddr uint32 = 0x200a00
)

// BootROMProtocol is the descriptor of the mask ROM download protocol.
var BootROMProtocol = Protocol{
	Name:            "brom",
	Magic:           []byte{0xa0, 0x0a, 0x50, 0x05},
	ProbeInterval:   50 * time.Millisecond,
	ProbeAttempts:   400,
	HandshakeBudget: 30 * time.Second,
	ReadTimeout:     2 * time.Second,
	Order:           binary.BigEndian,
	Opcodes: map[Opcode]byte{
		OpGetHWCode:       BROM_CMD_GET_HW_CODE,
		OpGetHWDict:       BROM_CMD_GET_HW_SW_VER,
		OpGetTargetConfig: BROM_CMD_GET_TARGET_CONFIG,
		OpSendDA:          BROM_CMD_SEND_DA,
		OpJumpDA:          BROM_CMD_JUMP_DA,
	},
	Checksum:  WordXOR{Width: 2, Order: binary.LittleEndian},
	ChunkSize: 1024,
}

type HardwareIdentity struct {
	HWCode    uint32
	HWSubCode uint16
	HWVer     uint16
	SWVer     uint16
}

func (h HardwareIdentity) String() string {
	return fmt.Sprintf("hw code: %#x, hw sub code: %#x, hw ver: %#x, sw ver: %#x",
		h.HWCode, h.HWSubCode, h.HWVer, h.SWVer)
}

type SecurityConfig struct {
	SecureBoot bool
	SLA        bool
	DAA        bool
}

// Blocked reports whether any feature prevents unauthorized download.
func (c SecurityConfig) Blocked() bool {
	return c.SecureBoot || c.SLA || c.DAA
}

func (c SecurityConfig) String() string {
	return fmt.Sprintf("secure boot: %v, SLA: %v, DAA: %v", c.SecureBoot, c.SLA, c.DAA)
}

func ParseTargetConfig(cfg uint32) SecurityConfig {
	return SecurityConfig{
		SecureBoot: cfg&TARGET_CONFIG_SBC != 0,
		SLA:        cfg&TARGET_CONFIG_SLA != 0,
		DAA:        cfg&TARGET_CONFIG_DAA != 0,
	}
}

type BootROMState int

const (
	BROM_STATE_IDLE BootROMState = iota
	BROM_STATE_HANDSHAKING
	BROM_STATE_HANDSHAKEN
	BROM_STATE_QUERIED
	BROM_STATE_SECURITY_CHECKED
	BROM_STATE_UPLOADING
	BROM_STATE_JUMPED
)

func (s BootROMState) String() string {
	switch s {
	case BROM_STATE_IDLE:
		return "Idle"
	case BROM_STATE_HANDSHAKING:
		return "Handshaking"
	case BROM_STATE_HANDSHAKEN:
		return "Handshaken"
	case BROM_STATE_QUERIED:
		return "Queried"
	case BROM_STATE_SECURITY_CHECKED:
		return "SecurityChecked"
	case BROM_STATE_UPLOADING:
		return "Uploading"
	case BROM_STATE_JUMPED:
		return "Jumped"
	}
	return fmt.Sprintf("Unknown BootROM state %d", int(s))
}

// BootROM drives the download agent protocol of the SoC mask ROM. It owns
// its transport until Release is called.
type BootROM struct {
	*engine
	state BootROMState

	// last SendDA completed with a matching checksum
	verified bool
}

func NewBootROM(t Transport) *BootROM {
	return NewBootROMWithProtocol(t, &BootROMProtocol)
}

func NewBootROMWithProtocol(t Transport, proto *Protocol) *BootROM {
	return &BootROM{engine: newEngine(t, proto)}
}

func (b *BootROM) State() BootROMState { return b.state }

// SetProgress installs a callback invoked after every uploaded chunk.
func (b *BootROM) SetProgress(fn ProgressFunc) { b.progress = fn }

// Release hands the transport back to the caller. The client cannot be used
// afterwards.
func (b *BootROM) Release() (Transport, error) {
	return b.release()
}

func (b *BootROM) ready(op string) error {
	if _, err := b.transport(); err != nil {
		return err
	}
	if b.state < BROM_STATE_HANDSHAKEN || b.state == BROM_STATE_JUMPED {
		return &StateError{Op: op, State: b.state}
	}
	return nil
}

func (b *BootROM) Handshake() error {
	if _, err := b.transport(); err != nil {
		return err
	}
	if b.state == BROM_STATE_JUMPED {
		return &StateError{Op: "handshake", State: b.state}
	}
	b.state = BROM_STATE_HANDSHAKING
	if err := b.handshake(); err != nil {
		b.state = BROM_STATE_IDLE
		return err
	}
	b.state = BROM_STATE_HANDSHAKEN
	return nil
}

func (b *BootROM) HWCode() (uint32, error) {
	op := OpGetHWCode.String()
	if err := b.ready(op); err != nil {
		return 0, err
	}
	if err := b.command(OpGetHWCode); err != nil {
		return 0, err
	}
	code, err := b.read16(op)
	if err != nil {
		return 0, err
	}
	if err := b.status(op); err != nil {
		return 0, err
	}
	b.queried()
	return uint32(code), nil
}

func (b *BootROM) HWDict() (hwSubCode, hwVer, swVer uint16, err error) {
	op := OpGetHWDict.String()
	if err = b.ready(op); err != nil {
		return
	}
	if err = b.command(OpGetHWDict); err != nil {
		return
	}
	raw, err := b.read(op, 6)
	if err != nil {
		return
	}
	if err = b.status(op); err != nil {
		return
	}
	order := b.proto.Order
	hwSubCode = order.Uint16(raw[0:])
	hwVer = order.Uint16(raw[2:])
	swVer = order.Uint16(raw[4:])
	b.queried()
	return
}

// Identity runs both identity queries.
func (b *BootROM) Identity() (id HardwareIdentity, err error) {
	if id.HWCode, err = b.HWCode(); err != nil {
		return
	}
	id.HWSubCode, id.HWVer, id.SWVer, err = b.HWDict()
	return
}

// TargetConfig reports the security configuration. Enforcing it is up to
// the caller.
func (b *BootROM) TargetConfig() (SecurityConfig, error) {
	op := OpGetTargetConfig.String()
	if err := b.ready(op); err != nil {
		return SecurityConfig{}, err
	}
	if err := b.command(OpGetTargetConfig); err != nil {
		return SecurityConfig{}, err
	}
	raw, err := b.read32(op)
	if err != nil {
		return SecurityConfig{}, err
	}
	if err := b.status(op); err != nil {
		return SecurityConfig{}, err
	}
	cfg := ParseTargetConfig(raw)
	b.log.Debugf("target config %#08x: %s", raw, cfg)
	if b.state < BROM_STATE_SECURITY_CHECKED {
		b.state = BROM_STATE_SECURITY_CHECKED
	}
	return cfg, nil
}

// SendDA uploads data to addr once TargetConfig has been read. offset is the
// third header word and is zero for unsigned payloads. The device checksum is returned after it has been
// compared with the local one.
func (b *BootROM) SendDA(addr, offset uint32, data []byte) (uint16, error) {
	op := OpSendDA.String()
	if err := b.ready(op); err != nil {
		return 0, err
	}
	if b.state < BROM_STATE_SECURITY_CHECKED {
		return 0, &StateError{Op: op, State: b.state}
	}
	b.state = BROM_STATE_UPLOADING
	b.verified = false
	if err := b.command(OpSendDA); err != nil {
		return 0, err
	}
	if err := b.echo32(op, addr); err != nil {
		return 0, err
	}
	if err := b.echoLength(op, len(data)); err != nil {
		return 0, err
	}
	if err := b.echo32(op, offset); err != nil {
		return 0, err
	}
	if err := b.status(op); err != nil {
		return 0, err
	}
	sum, err := b.upload(op, data)
	b.verified = err == nil
	return uint16(sum), err
}

// JumpDA makes the ROM execute code at addr. The ROM stops talking once it
// jumps, so nothing is read back. The last SendDA must have been verified.
func (b *BootROM) JumpDA(addr uint32) error {
	op := OpJumpDA.String()
	if err := b.ready(op); err != nil {
		return err
	}
	if !b.verified {
		return &StateError{Op: op, State: b.state}
	}
	cmd, err := EncodeCommand(b.proto, OpJumpDA, addr)
	if err != nil {
		return err
	}
	if err := b.write(op, cmd); err != nil {
		return err
	}
	b.state = BROM_STATE_JUMPED
	return nil
}

func (b *BootROM) queried() {
	if b.state < BROM_STATE_QUERIED {
		b.state = BROM_STATE_QUERIED
	}
}
