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
	"github.com/spf13/cobra"
)

func DumpSoCInfo() error {
	port, err := mediatek.OpenSerial(tmpSerialPort, mediatek.DefaultBaudRate)
	if err != nil {
		return err
	}
	defer port.Close()

	fmt.Println("Handshake...")
	l := mediatek.NewLoader(mediatek.WithHandshakeRetries(tmpHandshakeRetries))
	id, sec, err := l.Inspect(port)
	if err != nil {
		return err
	}

	fmt.Println(id.String())
	fmt.Println(sec.String())
	if sec.Blocked() {
		fmt.Println("The BootROM will not accept unsigned payloads on this SoC.")
	}
	return nil
}

var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Print BootROM hardware identity and security config without loading anything",
	Long:  "",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if len(tmpSerialPort) == 0 {
			fmt.Println("Error: no serial port given (-s)")
			cmd.Usage()
			return
		}
		if err := DumpSoCInfo(); err != nil {
			log.WithError(err).Fatal("dump failed")
		}
	},
}

func init() {
	rootCmd.AddCommand(dumpCmd)
}
