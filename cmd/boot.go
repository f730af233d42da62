// Copyright © 2019 Marcus Mengs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package cmd

import (
	"fmt"

	"github.com/mame82/mtkuartboot/mediatek"
	log "github.com/sirupsen/logrus"
)

// Boot reads the payload files given on the command line and runs the whole
// boot sequence on the serial port.
func Boot() error {
	loadAddr, err := parseAddr(tmpLoadAddr)
	if err != nil {
		return err
	}
	payload, err := mediatek.ReadPayload(tmpPayloadPath, loadAddr)
	if err != nil {
		return err
	}
	fmt.Printf("Opened payload %s\n", payload.String())

	opts := []mediatek.Option{
		mediatek.WithBL2Baudrate(tmpBL2Baudrate),
		mediatek.WithHandshakeRetries(tmpHandshakeRetries),
		mediatek.WithProgress(printProgress),
	}

	if len(tmpA32PayloadPath) > 0 {
		a32Addr, err := parseAddr(tmpA32LoadAddr)
		if err != nil {
			return err
		}
		a32, err := mediatek.ReadPayload(tmpA32PayloadPath, a32Addr)
		if err != nil {
			return err
		}
		fmt.Printf("Opened A32 payload %s\n", a32.String())
		opts = append(opts, mediatek.WithA32Payload(a32))
	}

	if len(tmpFIPPath) > 0 {
		fip, err := mediatek.ReadFIP(tmpFIPPath)
		if err != nil {
			return err
		}
		fmt.Printf("Opened FIP '%s' size %#x (%d) bytes, crc16 %#04x\n",
			tmpFIPPath, len(fip), len(fip), mediatek.Fingerprint(fip))
		opts = append(opts, mediatek.WithFIP(fip))
	}

	port, err := mediatek.OpenSerial(tmpSerialPort, mediatek.DefaultBaudRate)
	if err != nil {
		return err
	}
	defer port.Close()
	log.WithField("port", tmpSerialPort).Debugf("opened at %d baud", port.BaudRate())

	return mediatek.NewLoader(opts...).Run(port, payload)
}

func printProgress(stage string, sent, total int) {
	if log.GetLevel() >= log.DebugLevel {
		log.WithField("stage", stage).Debugf("%d/%d bytes", sent, total)
		return
	}
	fmt.Printf("\r%s: %d/%d bytes", stage, sent, total)
	if sent == total {
		fmt.Println()
	}
}
