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
	"os"
	"strconv"

	"github.com/mame82/mtkuartboot/mediatek"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	tmpSerialPort       = ""
	tmpPayloadPath      = ""
	tmpLoadAddr         = "0x201000"
	tmpA32PayloadPath   = ""
	tmpA32LoadAddr      = "0x200a00"
	tmpFIPPath          = ""
	tmpBL2Baudrate      = mediatek.DefaultBL2Baudrate
	tmpHandshakeRetries = 0
	tmpVerbose          = 0
)

var rootCmd = &cobra.Command{
	Use:   "mtkuartboot",
	Short: "Load a payload into MediaTek SoCs over the BootROM UART download mode",
	Long: `mtkuartboot talks to the mask ROM of a MediaTek SoC on its debug UART,
uploads a payload (usually a BL2 image) to SRAM and runs it. If a FIP is
given, it then waits for BL2 to enter UART download mode and hands the
FIP over at a higher baud rate.`,
	Args: cobra.NoArgs,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		switch {
		case tmpVerbose >= 2:
			log.SetLevel(log.TraceLevel)
		case tmpVerbose == 1:
			log.SetLevel(log.DebugLevel)
		}
	},
	Run: func(cmd *cobra.Command, args []string) {
		if len(tmpSerialPort) == 0 || len(tmpPayloadPath) == 0 {
			fmt.Println("Error: a serial port (-s) and a payload (-p) are required")
			fmt.Println()
			cmd.Usage()
			os.Exit(1)
		}
		if err := Boot(); err != nil {
			log.WithError(err).Fatal("boot failed")
		}
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// parseAddr accepts decimal and 0x prefixed load addresses.
func parseAddr(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid address '%s'", s)
	}
	return uint32(v), nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&tmpSerialPort, "serial", "s", "", "serial port the SoC UART is attached to")
	rootCmd.PersistentFlags().CountVarP(&tmpVerbose, "verbose", "v", "log protocol stages (-v) or every byte on the wire (-vv)")
	rootCmd.PersistentFlags().IntVar(&tmpHandshakeRetries, "handshake-retries", 0, "extra handshake attempts after a timeout")

	rootCmd.Flags().StringVarP(&tmpPayloadPath, "payload", "p", "", "payload loaded by the BootROM (e.g. bl2.img)")
	rootCmd.Flags().StringVarP(&tmpLoadAddr, "load-addr", "l", tmpLoadAddr, "payload load address")
	rootCmd.Flags().StringVarP(&tmpA32PayloadPath, "a32-payload", "a", "", "optional AArch32 payload, execution starts there")
	rootCmd.Flags().StringVar(&tmpA32LoadAddr, "a32-load-addr", tmpA32LoadAddr, "AArch32 payload load address")
	rootCmd.Flags().StringVarP(&tmpFIPPath, "fip", "f", "", "FIP image handed to BL2 UART download")
	rootCmd.Flags().IntVar(&tmpBL2Baudrate, "bl2-load-baudrate", tmpBL2Baudrate, "baud rate used for the FIP upload")
}
