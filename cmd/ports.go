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

func ListPorts() {
	ports, err := mediatek.ListSerialPorts()
	if err != nil {
		log.WithError(err).Error("can not list serial ports")
	} else if len(ports) == 0 {
		fmt.Println("No serial ports found")
	} else {
		fmt.Println("Serial ports:")
		for _, p := range ports {
			fmt.Printf("\t%s\n", p)
		}
	}

	// bridge names are a bonus, a failed USB scan is not fatal
	bridges, err := mediatek.ListBridges()
	if err != nil {
		log.WithError(err).Warn("USB scan incomplete")
	}
	if len(bridges) > 0 {
		fmt.Println("USB-UART bridges:")
		for _, b := range bridges {
			fmt.Printf("\t%s\n", b.String())
		}
	}
}

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports and attached USB-UART bridges",
	Long:  "",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ListPorts()
	},
}

func init() {
	rootCmd.AddCommand(portsCmd)
}
