package mediatek

import (
	"fmt"
	"io/ioutil"

	"github.com/pkg/errors"
)

// Payload is a binary to be uploaded to SoC RAM by the BootROM.
type Payload struct {
	Path     string
	Data     []byte
	LoadAddr uint32
	Offset   uint32
}

func (p *Payload) String() string {
	return fmt.Sprintf("'%s' size %#x (%d) bytes, load addr %#x, crc16 %#04x",
		p.Path, len(p.Data), len(p.Data), p.LoadAddr, Fingerprint(p.Data))
}

func ReadPayload(path string, loadAddr uint32) (*Payload, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read payload")
	}
	if len(data) == 0 {
		return nil, errors.Errorf("payload '%s' is empty", path)
	}
	return &Payload{Path: path, Data: data, LoadAddr: loadAddr}, nil
}

// ReadFIP loads a firmware image package. The image is sent as is.
func ReadFIP(path string) ([]byte, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read fip")
	}
	if len(data) == 0 {
		return nil, errors.Errorf("fip '%s' is empty", path)
	}
	return data, nil
}
