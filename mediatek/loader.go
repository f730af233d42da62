package mediatek

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Config holds the boot sequence configuration.
type Config struct {
	// A32Payload is loaded after the primary payload; execution then starts
	// at its load address instead (optional)
	A32Payload *Payload

	// FIP is handed to BL2 after the DA session (optional)
	FIP []byte

	// BL2Baudrate is the rate BL2 is switched to before the FIP upload
	BL2Baudrate int

	// BannerTimeout bounds every read while waiting for BL2 text banners
	BannerTimeout time.Duration

	// HandshakeRetries is the number of extra BootROM and BL2 handshake
	// attempts after a timeout
	HandshakeRetries int

	// Output receives progress lines and the BL2 console text
	Output io.Writer

	Progress func(stage string, sent, total int)

	BootROMProtocol *Protocol
	BL2Protocol     *Protocol
}

func defaultConfig() Config {
	return Config{
		BL2Baudrate:     DefaultBL2Baudrate,
		BannerTimeout:   DefaultBannerTimeout,
		Output:          os.Stdout,
		BootROMProtocol: &BootROMProtocol,
		BL2Protocol:     &BL2Protocol,
	}
}

type Option func(*Config)

func WithA32Payload(p *Payload) Option {
	return func(c *Config) { c.A32Payload = p }
}

func WithFIP(fip []byte) Option {
	return func(c *Config) { c.FIP = fip }
}

func WithBL2Baudrate(rate int) Option {
	return func(c *Config) {
		if rate > 0 {
			c.BL2Baudrate = rate
		}
	}
}

func WithBannerTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.BannerTimeout = d
		}
	}
}

func WithHandshakeRetries(n int) Option {
	return func(c *Config) {
		if n >= 0 {
			c.HandshakeRetries = n
		}
	}
}

func WithOutput(w io.Writer) Option {
	return func(c *Config) { c.Output = w }
}

func WithProgress(fn func(stage string, sent, total int)) Option {
	return func(c *Config) { c.Progress = fn }
}

func WithProtocols(brom, bl2 *Protocol) Option {
	return func(c *Config) {
		if brom != nil {
			c.BootROMProtocol = brom
		}
		if bl2 != nil {
			c.BL2Protocol = bl2
		}
	}
}

// Loader sequences the BootROM session, the wait for BL2 and the BL2
// session on one transport.
type Loader struct {
	cfg Config
}

func NewLoader(opts ...Option) *Loader {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Loader{cfg: cfg}
}

func (l *Loader) printf(format string, a ...interface{}) {
	fmt.Fprintf(l.cfg.Output, format, a...)
}

func (l *Loader) progress(stage string) ProgressFunc {
	if l.cfg.Progress == nil {
		return nil
	}
	return func(sent, total int) { l.cfg.Progress(stage, sent, total) }
}

func (l *Loader) handshake(name string, fn func() error) error {
	var err error
	for attempt := 0; attempt <= l.cfg.HandshakeRetries; attempt++ {
		if attempt > 0 {
			log.WithField("attempt", attempt+1).Warnf("%s handshake timed out, retrying", name)
		}
		if err = fn(); err == nil || !errors.Is(err, ErrHandshakeTimeout) {
			return err
		}
	}
	return err
}

// Run performs the whole boot sequence. Without a FIP it ends after the
// jump to the payload.
func (l *Loader) Run(t Transport, payload *Payload) error {
	t, err := l.LoadDA(t, payload)
	if err != nil {
		return err
	}
	if l.cfg.FIP == nil {
		return nil
	}

	l.printf("Waiting for BL2. Message below:\n")
	found, err := WaitForLine(t, BL2HandshakeBanner, l.cfg.BannerTimeout, l.cfg.Output)
	if err != nil {
		return errors.Wrap(err, "wait for BL2")
	}
	if !found {
		l.printf("Timeout waiting for specified message.\n")
		return nil
	}

	if t, err = l.LoadFIP(t); err != nil {
		return err
	}

	found, err = WaitForLine(t, BL2ReceivedBanner, l.cfg.BannerTimeout, l.cfg.Output)
	if err != nil {
		return errors.Wrap(err, "wait for FIP confirmation")
	}
	if !found {
		l.printf("Timeout waiting for specified message.\n")
		log.Warn("BL2 did not confirm the FIP")
	}
	return nil
}

// Inspect runs the BootROM handshake and queries without uploading anything.
func (l *Loader) Inspect(t Transport) (HardwareIdentity, SecurityConfig, error) {
	brom := NewBootROMWithProtocol(t, l.cfg.BootROMProtocol)
	if err := l.handshake("BootROM", brom.Handshake); err != nil {
		return HardwareIdentity{}, SecurityConfig{}, errors.Wrap(err, "BootROM handshake")
	}
	id, err := brom.Identity()
	if err != nil {
		return id, SecurityConfig{}, errors.Wrap(err, "read hardware identity")
	}
	sec, err := brom.TargetConfig()
	if err != nil {
		return id, sec, errors.Wrap(err, "read target config")
	}
	return id, sec, nil
}

// LoadDA runs a full BootROM session: identity, security check, upload of
// the payload (and A32 payload) and jump. The transport is handed back even
// when the session fails.
func (l *Loader) LoadDA(t Transport, payload *Payload) (Transport, error) {
	brom := NewBootROMWithProtocol(t, l.cfg.BootROMProtocol)
	brom.SetProgress(l.progress("payload"))
	err := l.runDA(brom, payload)
	if rt, rerr := brom.Release(); rerr == nil {
		t = rt
	}
	return t, err
}

func (l *Loader) runDA(brom *BootROM, payload *Payload) error {
	l.printf("Handshake...\n")
	if err := l.handshake("BootROM", brom.Handshake); err != nil {
		return errors.Wrap(err, "BootROM handshake")
	}

	hwCode, err := brom.HWCode()
	if err != nil {
		return errors.Wrap(err, "read hw code")
	}
	l.printf("hw code: %#x\n", hwCode)
	hwSubCode, hwVer, swVer, err := brom.HWDict()
	if err != nil {
		return errors.Wrap(err, "read hw dict")
	}
	l.printf("hw sub code: %#x\n", hwSubCode)
	l.printf("hw ver: %#x\n", hwVer)
	l.printf("sw ver: %#x\n", swVer)

	sec, err := brom.TargetConfig()
	if err != nil {
		return errors.Wrap(err, "read target config")
	}
	if sec.Blocked() {
		return &SecurityError{Config: sec}
	}

	jumpAddr := payload.LoadAddr
	if err := l.sendDA(brom, "payload", payload); err != nil {
		return err
	}
	if a32 := l.cfg.A32Payload; a32 != nil {
		brom.SetProgress(l.progress("a32 payload"))
		if err := l.sendDA(brom, "a32 payload", a32); err != nil {
			return err
		}
		jumpAddr = a32.LoadAddr
	}

	l.printf("Jumping to %#x...\n", jumpAddr)
	return errors.Wrap(brom.JumpDA(jumpAddr), "jump")
}

func (l *Loader) sendDA(brom *BootROM, name string, p *Payload) error {
	l.printf("sending %s to %#x...\n", name, p.LoadAddr)
	log.WithField("payload", p.String()).Debug("uploading")
	sum, err := brom.SendDA(p.LoadAddr, p.Offset, p.Data)
	if err != nil {
		return errors.Wrapf(err, "send %s", name)
	}
	l.printf("Checksum: %#x\n", sum)
	return nil
}

// LoadFIP runs a full BL2 session. The BL2 handshake banner must already
// have been seen on t.
func (l *Loader) LoadFIP(t Transport) (Transport, error) {
	bl2 := NewBL2WithProtocol(t, l.cfg.BL2Protocol)
	bl2.SetProgress(l.progress("fip"))
	err := l.runFIP(bl2)
	if rt, rerr := bl2.Release(); rerr == nil {
		t = rt
	}
	return t, err
}

func (l *Loader) runFIP(bl2 *BL2) error {
	if err := l.handshake("BL2", bl2.Handshake); err != nil {
		return errors.Wrap(err, "BL2 handshake")
	}
	version, err := bl2.Version()
	if err != nil {
		return errors.Wrap(err, "read BL2 version")
	}
	l.printf("BL2 UART DL version: %#x\n", version)

	if err := bl2.SetBaudrate(l.cfg.BL2Baudrate); err != nil {
		return errors.Wrap(err, "set baud rate")
	}
	if err := bl2.Handshake(); err != nil {
		return err
	}
	l.printf("Baud rate set to: %d\n", l.cfg.BL2Baudrate)

	if _, err := bl2.SendFIP(l.cfg.FIP); err != nil {
		return errors.Wrap(err, "send fip")
	}
	l.printf("FIP sent.\n")
	return errors.Wrap(bl2.Go(), "go")
}
