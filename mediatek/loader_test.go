package mediatek

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

const bl2Console = "NOTICE:  BL2: v2.4(release):\r\n" +
	"NOTICE:  Starting UART download handshake ...\r\n"

func testPayload(n int) *Payload {
	return &Payload{Path: "bl2.img", Data: payloadOf(n, 0x11), LoadAddr: DefaultLoadAddr}
}

func TestLoaderPayloadOnly(t *testing.T) {
	dev := newStubDevice(&BootROMProtocol)
	var out bytes.Buffer
	payload := testPayload(64)

	err := NewLoader(WithOutput(&out)).Run(dev, payload)
	require.NoError(t, err)
	require.Equal(t, [][]byte{payload.Data}, dev.uploads)
	require.Equal(t, []uint32{0x201000}, dev.uploadAddrs)
	require.Equal(t, []uint32{0x201000}, dev.jumps)
	require.Contains(t, out.String(), "hw code: 0x1234")
	require.Contains(t, out.String(), "Jumping to 0x201000...")
	require.NotContains(t, out.String(), "Waiting for BL2")
}

func TestLoaderSecurityBlocked(t *testing.T) {
	for _, cfg := range []uint32{TARGET_CONFIG_SBC, TARGET_CONFIG_SLA, TARGET_CONFIG_DAA} {
		dev := newStubDevice(&BootROMProtocol)
		dev.targetConfig = cfg

		tr, err := NewLoader(WithOutput(&bytes.Buffer{})).LoadDA(dev, testPayload(64))
		require.ErrorIs(t, err, ErrSecurityPrecondition)
		var se *SecurityError
		require.ErrorAs(t, err, &se)
		require.Equal(t, ParseTargetConfig(cfg), se.Config)

		require.Zero(t, dev.countCommands(OpSendDA))
		require.Empty(t, dev.jumps)
		require.Equal(t, dev, tr)
	}
}

func TestLoaderA32Payload(t *testing.T) {
	dev := newStubDevice(&BootROMProtocol)
	a32 := &Payload{Path: "a32.bin", Data: payloadOf(200, 0x22), LoadAddr: DefaultA32LoadAddr}

	err := NewLoader(WithOutput(&bytes.Buffer{}), WithA32Payload(a32)).Run(dev, testPayload(64))
	require.NoError(t, err)
	require.Equal(t, []uint32{DefaultLoadAddr, DefaultA32LoadAddr}, dev.uploadAddrs)
	require.Equal(t, []uint32{DefaultA32LoadAddr}, dev.jumps)
}

func TestLoaderChecksumMismatchStopsBeforeJump(t *testing.T) {
	dev := newStubDevice(&BootROMProtocol)
	dev.checksumDiff = 1

	err := NewLoader(WithOutput(&bytes.Buffer{})).Run(dev, testPayload(64))
	require.ErrorIs(t, err, ErrChecksumMismatch)
	require.Empty(t, dev.jumps)
}

func TestLoaderHandshakeRetries(t *testing.T) {
	dev := newStubDevice(&BootROMProtocol)
	dev.deaf = true
	l := NewLoader(
		WithOutput(&bytes.Buffer{}),
		WithProtocols(withAttempts(BootROMProtocol, 3), nil),
		WithHandshakeRetries(2),
	)

	err := l.Run(dev, testPayload(16))
	require.ErrorIs(t, err, ErrHandshakeTimeout)
	require.Equal(t, 9, dev.written)
}

func TestLoaderHandshakeRetrySucceeds(t *testing.T) {
	dev := newStubDevice(&BootROMProtocol)
	dev.probeMisses = 4
	l := NewLoader(
		WithOutput(&bytes.Buffer{}),
		WithProtocols(withAttempts(BootROMProtocol, 3), nil),
		WithHandshakeRetries(1),
	)

	require.NoError(t, l.Run(dev, testPayload(16)))
	require.Equal(t, 5, dev.probes)
	require.Len(t, dev.jumps, 1)
}

func TestLoaderNoRetryOnLinkLoss(t *testing.T) {
	dev := newStubDevice(&BootROMProtocol)
	dev.unplugProbed = true
	l := NewLoader(WithOutput(&bytes.Buffer{}), WithHandshakeRetries(3))

	err := l.Run(dev, testPayload(16))
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
	require.NotErrorIs(t, err, ErrHandshakeTimeout)
	require.Equal(t, 1, dev.probes)
}

func TestLoaderWithFIP(t *testing.T) {
	dev := newStubDevice(&BootROMProtocol)
	dev.next = &BL2Protocol
	dev.afterJump = bl2Console
	dev.afterGo = "NOTICE:  Received FIP 0x1000 bytes\r\n"
	payload := testPayload(64)
	fip := payloadOf(5000, 0x33)

	var stages []string
	var out bytes.Buffer
	l := NewLoader(
		WithOutput(&out),
		WithFIP(fip),
		WithProgress(func(stage string, sent, total int) {
			if sent == total {
				stages = append(stages, stage)
			}
		}),
	)

	require.NoError(t, l.Run(dev, payload))
	require.Equal(t, [][]byte{payload.Data, fip}, dev.uploads)
	require.Equal(t, 1, dev.gos)
	require.Equal(t, DefaultBL2Baudrate, dev.hostBaud)
	require.Equal(t, DefaultBL2Baudrate, dev.devBaud)
	require.Equal(t, []string{"payload", "fip"}, stages)
	require.Equal(t,
		[]Opcode{OpGetHWCode, OpGetHWDict, OpGetTargetConfig, OpSendDA, OpJumpDA,
			OpVersion, OpSetBaudrate, OpSendFIP, OpGo},
		dev.commands)

	text := out.String()
	require.Contains(t, text, "Waiting for BL2. Message below:")
	require.Contains(t, text, "BL2: v2.4(release)")
	require.Contains(t, text, "Baud rate set to: 921600")
	require.Contains(t, text, "FIP sent.")
	require.NotContains(t, text, "Timeout waiting")
}

func TestLoaderBL2BannerTimeout(t *testing.T) {
	dev := newStubDevice(&BootROMProtocol)
	var out bytes.Buffer

	err := NewLoader(WithOutput(&out), WithFIP([]byte{1, 2, 3})).Run(dev, testPayload(64))
	require.NoError(t, err)
	require.Contains(t, out.String(), "Timeout waiting for specified message.")
	require.Len(t, dev.jumps, 1)
	require.Zero(t, dev.gos)
}

func TestLoaderBL2BaudSwitchFailure(t *testing.T) {
	dev := newStubDevice(&BootROMProtocol)
	dev.next = &BL2Protocol
	dev.afterJump = bl2Console
	dev.switchTo = 230400
	l := NewLoader(
		WithOutput(&bytes.Buffer{}),
		WithFIP(payloadOf(100, 0)),
		WithProtocols(nil, withAttempts(BL2Protocol, 2)),
		WithHandshakeRetries(3),
	)

	err := l.Run(dev, testPayload(64))
	require.ErrorIs(t, err, ErrBaudSwitchFailed)
	require.NotErrorIs(t, err, ErrHandshakeTimeout)
	require.Len(t, dev.uploads, 1)
	require.Zero(t, dev.gos)
}

func TestLoaderInspect(t *testing.T) {
	dev := newStubDevice(&BootROMProtocol)
	dev.hwCode = 0x8163
	dev.swVer = 2
	dev.targetConfig = TARGET_CONFIG_DAA

	id, sec, err := NewLoader(WithOutput(&bytes.Buffer{})).Inspect(dev)
	require.NoError(t, err)
	require.Equal(t, uint32(0x8163), id.HWCode)
	require.Equal(t, uint16(2), id.SWVer)
	require.Equal(t, SecurityConfig{DAA: true}, sec)
	require.Empty(t, dev.uploads)
	require.Empty(t, dev.jumps)
}
