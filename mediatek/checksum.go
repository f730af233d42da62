package mediatek

import (
	"encoding/binary"
	"fmt"

	"github.com/sigurn/crc16"
)

// Checksum is the integrity check a device reports after an upload.
// Size is the number of bytes the device sends for it on the wire.
type Checksum interface {
	Sum(data []byte) uint32
	Size() int
	fmt.Stringer
}

// WordXOR XORs the data as a sequence of Width byte words in the given byte
// order. A trailing partial word is zero padded.
type WordXOR struct {
	Width int
	Order binary.ByteOrder
}

// Sum panics on a Width other than 1, 2 or 4; Protocol.Validate rejects such
// descriptors before any session starts.
func (c WordXOR) Sum(data []byte) uint32 {
	if !validWordSize(c.Width) {
		panic(fmt.Sprintf("unsupported checksum word width %d", c.Width))
	}
	var sum uint32
	word := make([]byte, c.Width)
	for i := 0; i < len(data); i += c.Width {
		for j := range word {
			word[j] = 0
		}
		copy(word, data[i:])
		switch c.Width {
		case 1:
			sum ^= uint32(word[0])
		case 2:
			sum ^= uint32(c.Order.Uint16(word))
		default:
			sum ^= c.Order.Uint32(word)
		}
	}
	return sum
}

func (c WordXOR) Size() int { return c.Width }

func (c WordXOR) String() string {
	order := "le"
	if c.Order == binary.BigEndian {
		order = "be"
	}
	return fmt.Sprintf("xor%d-%s", c.Width*8, order)
}

// CRC16 wraps one of the parameter sets of github.com/sigurn/crc16.
type CRC16 struct {
	table *crc16.Table
	name  string
}

func NewCRC16(params crc16.Params) CRC16 {
	return CRC16{table: crc16.MakeTable(params), name: params.Name}
}

func (c CRC16) Sum(data []byte) uint32 {
	return uint32(crc16.Checksum(data, c.table))
}

func (c CRC16) Size() int { return 2 }

func (c CRC16) String() string { return c.name }

// Fingerprint is the CRC-16/CCITT-FALSE of data, printed next to loaded files
// so runs can be told apart in logs.
func Fingerprint(data []byte) uint16 {
	return crc16.Checksum(data, fingerprintTable)
}

var fingerprintTable = crc16.MakeTable(crc16.CRC16_CCITT_FALSE)
