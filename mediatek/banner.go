package mediatek

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const (
	BL2HandshakeBanner = "Starting UART download handshake"
	BL2ReceivedBanner  = "Received FIP"

	DefaultBannerTimeout = 2 * time.Second
)

// LineReader reads text lines from a transport one byte at a time. It never
// consumes anything past the newline, so the binary protocol can take over
// the transport right after a banner.
type LineReader struct {
	t Transport
}

func NewLineReader(t Transport) *LineReader {
	return &LineReader{t: t}
}

// ReadLine returns the next line including its newline. On timeout the
// partial line is returned together with ErrTransportTimeout.
func (r *LineReader) ReadLine() (string, error) {
	var sb strings.Builder
	b := make([]byte, 1)
	for {
		n, err := r.t.Read(b)
		if n == 1 {
			sb.WriteByte(b[0])
			if b[0] == '\n' {
				return sb.String(), nil
			}
		}
		if err != nil {
			return sb.String(), err
		}
	}
}

// WaitForLine reads lines until one contains pattern, copying everything it
// reads to echo. Every read is bounded by timeout; the first silent period
// ends the wait with found == false and no error.
func WaitForLine(t Transport, pattern string, timeout time.Duration, echo io.Writer) (found bool, err error) {
	if err := t.SetReadTimeout(timeout); err != nil {
		return false, err
	}
	if echo == nil {
		echo = io.Discard
	}
	r := NewLineReader(t)
	fmt.Fprintln(echo, "==================================")
	defer fmt.Fprintln(echo, "==================================")
	for {
		line, err := r.ReadLine()
		fmt.Fprint(echo, line)
		if strings.Contains(line, pattern) {
			if err != nil {
				fmt.Fprintln(echo)
			}
			return true, nil
		}
		if err != nil {
			if errors.Is(err, ErrTransportTimeout) {
				if line != "" {
					fmt.Fprintln(echo)
				}
				return false, nil
			}
			return false, err
		}
	}
}
