package mediatek

import (
	"fmt"

	"github.com/google/gousb"
	"github.com/pkg/errors"
)

// USB-UART bridges commonly wired to the debug UART of MediaTek boards.
const (
	VID_WCH       gousb.ID = 0x1a86
	VID_SILABS    gousb.ID = 0x10c4
	VID_FTDI      gousb.ID = 0x0403
	VID_PROLIFIC  gousb.ID = 0x067b
	VID_MEDIATEK  gousb.ID = 0x0e8d
	PID_CH340     gousb.ID = 0x7523
	PID_CH341     gousb.ID = 0x5523
	PID_CH343     gousb.ID = 0x55d3
	PID_CP2102    gousb.ID = 0xea60
	PID_FT232R    gousb.ID = 0x6001
	PID_FT2232H   gousb.ID = 0x6010
	PID_FT232H    gousb.ID = 0x6014
	PID_PL2303    gousb.ID = 0x2303
	PID_MTK_BROM  gousb.ID = 0x0003 // BootROM USB download port, not usable with this tool
	PID_MTK_PRELD gousb.ID = 0x2000
)

type bridgeID struct {
	vid, pid gousb.ID
}

var knownBridges = map[bridgeID]string{
	{VID_WCH, PID_CH340}:          "WCH CH340",
	{VID_WCH, PID_CH341}:          "WCH CH341",
	{VID_WCH, PID_CH343}:          "WCH CH343",
	{VID_SILABS, PID_CP2102}:      "Silicon Labs CP210x",
	{VID_FTDI, PID_FT232R}:        "FTDI FT232R",
	{VID_FTDI, PID_FT2232H}:       "FTDI FT2232H",
	{VID_FTDI, PID_FT232H}:        "FTDI FT232H",
	{VID_PROLIFIC, PID_PL2303}:    "Prolific PL2303",
	{VID_MEDIATEK, PID_MTK_BROM}:  "MediaTek BootROM (USB)",
	{VID_MEDIATEK, PID_MTK_PRELD}: "MediaTek Preloader (USB)",
}

// Bridge is an attached USB device known to provide a UART.
type Bridge struct {
	Name    string
	Vendor  gousb.ID
	Product gousb.ID
	Bus     int
	Address int
}

func (b Bridge) String() string {
	return fmt.Sprintf("bus %03d device %03d: %s:%s %s", b.Bus, b.Address, b.Vendor, b.Product, b.Name)
}

// ListBridges scans the USB device descriptors for known USB-UART bridges.
// Devices are not opened, so no special permissions are needed.
func ListBridges() (bridges []Bridge, err error) {
	ctx := gousb.NewContext()
	defer ctx.Close()

	_, err = ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		if name, ok := knownBridges[bridgeID{desc.Vendor, desc.Product}]; ok {
			bridges = append(bridges, Bridge{
				Name:    name,
				Vendor:  desc.Vendor,
				Product: desc.Product,
				Bus:     desc.Bus,
				Address: desc.Address,
			})
		}
		return false
	})
	if err != nil {
		return bridges, errors.Wrap(err, "scan usb devices")
	}
	return bridges, nil
}

// BridgeName returns the name of a known bridge, or "" for unknown IDs.
func BridgeName(vid, pid gousb.ID) string {
	return knownBridges[bridgeID{vid, pid}]
}
