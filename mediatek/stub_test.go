package mediatek

import (
	"bytes"
	"io"
	"time"
)

// stubDevice simulates a SoC speaking either download protocol. Bytes written
// by the host are processed immediately; answers queue up in out and Read
// reports ErrTransportTimeout once out is drained.
type stubDevice struct {
	proto *Protocol
	out   bytes.Buffer

	hostBaud int
	devBaud  int

	synced    bool
	magicIdx  int
	deaf      bool
	unplugged bool

	op      Opcode
	inCmd   bool
	args    []byte
	nargs   int
	dataLen int
	data    []byte

	// behaviour
	hwCode        uint16
	hwSubCode     uint16
	hwVer         uint16
	swVer         uint16
	targetConfig  uint32
	version       uint16
	probeMisses   int
	wrongMagic    bool
	lengthAckDiff int
	checksumDiff  uint32
	uploadStatus  uint16
	switchTo      int
	closeAfter    int
	unplugProbed  bool
	next          *Protocol
	afterJump     string
	afterGo       string

	// recorded
	written     int
	probes      int
	handshakes  int
	commands    []Opcode
	uploads     [][]byte
	uploadAddrs []uint32
	jumps       []uint32
	gos         int
	timeouts    []time.Duration
	inputResets int
}

func newStubDevice(proto *Protocol) *stubDevice {
	return &stubDevice{
		proto:    proto,
		hostBaud: DefaultBaudRate,
		devBaud:  DefaultBaudRate,
		hwCode:   0x1234,
		version:  0x10,
	}
}

func (s *stubDevice) Read(p []byte) (int, error) {
	if s.out.Len() == 0 {
		if s.unplugged {
			return 0, io.ErrUnexpectedEOF
		}
		return 0, ErrTransportTimeout
	}
	return s.out.Read(p)
}

func (s *stubDevice) Write(p []byte) (int, error) {
	for i, b := range p {
		if s.closeAfter > 0 && s.written >= s.closeAfter {
			return i, io.ErrClosedPipe
		}
		s.written++
		if s.hostBaud != s.devBaud {
			// framing garbage at the device side
			continue
		}
		s.feed(b)
	}
	return len(p), nil
}

func (s *stubDevice) SetBaudRate(rate int) error {
	s.hostBaud = rate
	return nil
}

func (s *stubDevice) SetReadTimeout(d time.Duration) error {
	s.timeouts = append(s.timeouts, d)
	return nil
}

func (s *stubDevice) ResetInputBuffer() error {
	s.inputResets++
	s.out.Reset()
	return nil
}

// unread is what the device sent that the host never consumed.
func (s *stubDevice) unread() []byte {
	return s.out.Bytes()
}

func (s *stubDevice) countCommands(op Opcode) int {
	n := 0
	for _, c := range s.commands {
		if c == op {
			n++
		}
	}
	return n
}

func (s *stubDevice) put16(v uint16) {
	b := make([]byte, 2)
	s.proto.Order.PutUint16(b, v)
	s.out.Write(b)
}

func (s *stubDevice) put32(v uint32) {
	s.out.Write(s.proto.word32(v))
}

func (s *stubDevice) putSum(v uint32) {
	switch s.proto.Checksum.Size() {
	case 1:
		s.out.WriteByte(byte(v))
	case 2:
		s.put16(uint16(v))
	default:
		s.put32(v)
	}
}

func (s *stubDevice) lookup(b byte) (Opcode, bool) {
	for op, code := range s.proto.Opcodes {
		if code == b {
			return op, true
		}
	}
	return 0, false
}

func (s *stubDevice) answerMagic(b byte) {
	if s.wrongMagic && s.magicIdx > 0 {
		s.out.WriteByte(b)
	} else {
		s.out.WriteByte(^b)
	}
}

func (s *stubDevice) feed(b byte) {
	if s.deaf || s.unplugged {
		return
	}
	magic := s.proto.Magic

	switch {
	case s.dataLen > 0:
		s.data = append(s.data, b)
		s.dataLen--
		if s.dataLen == 0 {
			s.finishUpload()
		}
		return
	case s.inCmd:
		s.args = append(s.args, b)
		if len(s.args)%4 == 0 {
			word := s.proto.Order.Uint32(s.args[len(s.args)-4:])
			s.echoArg(len(s.args)/4-1, word)
		}
		if len(s.args) == 4*s.nargs {
			s.inCmd = false
			s.execute()
		}
		return
	}

	if !s.synced || b == magic[0] {
		if b == magic[0] {
			s.probes++
			if s.probeMisses > 0 {
				s.probeMisses--
				return
			}
			s.synced = false
			s.answerMagic(b)
			s.magicIdx = 1
			s.unplugged = s.unplugProbed
		} else if s.magicIdx > 0 && b == magic[s.magicIdx] {
			s.answerMagic(b)
			s.magicIdx++
		} else {
			s.magicIdx = 0
			return
		}
		if s.magicIdx == len(magic) {
			s.synced = true
			s.magicIdx = 0
			s.handshakes++
		}
		return
	}

	op, ok := s.lookup(b)
	if !ok {
		return
	}
	s.commands = append(s.commands, op)
	if op != OpGo {
		s.out.WriteByte(b)
	}
	s.op = op
	s.args = s.args[:0]
	switch op {
	case OpSendDA:
		s.nargs = 3
	case OpJumpDA, OpSetBaudrate, OpSendFIP:
		s.nargs = 1
	default:
		s.nargs = 0
	}
	if s.nargs > 0 {
		s.inCmd = true
		return
	}
	s.execute()
}

func (s *stubDevice) echoArg(idx int, word uint32) {
	isLength := (s.op == OpSendDA && idx == 1) || (s.op == OpSendFIP && idx == 0)
	if isLength {
		word = uint32(int(word) + s.lengthAckDiff)
	}
	s.put32(word)
}

func (s *stubDevice) arg(i int) uint32 {
	return s.proto.Order.Uint32(s.args[4*i:])
}

func (s *stubDevice) execute() {
	switch s.op {
	case OpGetHWCode:
		s.put16(s.hwCode)
		s.put16(0)
	case OpGetHWDict:
		s.put16(s.hwSubCode)
		s.put16(s.hwVer)
		s.put16(s.swVer)
		s.put16(0)
	case OpGetTargetConfig:
		s.put32(s.targetConfig)
		s.put16(0)
	case OpSendDA:
		s.uploadAddrs = append(s.uploadAddrs, s.arg(0))
		s.startUpload(int(s.arg(1)))
	case OpSendFIP:
		s.startUpload(int(s.arg(0)))
	case OpJumpDA:
		s.jumps = append(s.jumps, s.arg(0))
		s.put16(0)
		s.handOver(s.afterJump)
	case OpVersion:
		s.put16(s.version)
		s.put16(0)
	case OpSetBaudrate:
		s.put16(0)
		rate := int(s.arg(0))
		if s.switchTo != 0 {
			rate = s.switchTo
		}
		s.devBaud = rate
		s.synced = false
	case OpGo:
		s.gos++
		s.synced = false
		if s.afterGo != "" {
			s.out.WriteString(s.afterGo)
		}
	}
}

func (s *stubDevice) startUpload(n int) {
	s.put16(0)
	s.data = nil
	s.dataLen = n
	if n == 0 {
		s.finishUpload()
	}
}

func (s *stubDevice) finishUpload() {
	s.uploads = append(s.uploads, s.data)
	s.putSum(s.proto.Checksum.Sum(s.data) ^ s.checksumDiff)
	s.put16(s.uploadStatus)
}

// handOver models the ROM jumping into the payload, which prints text and
// then starts the next protocol.
func (s *stubDevice) handOver(text string) {
	s.synced = false
	if s.next == nil {
		s.deaf = true
		return
	}
	s.proto = s.next
	s.next = nil
	s.out.WriteString(text)
}
