// Package drivers holds the concrete, hardware-facing implementations of
// the external collaborators that spec.md names only as interfaces: the
// FTDI FT2232H USB-to-SPI bridge used to reach the boot flash and FRAM, and
// the termios-backed multi-drop serial bus driver.
package drivers

import (
	"errors"
	"fmt"
	"sync/atomic"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/host/v3"
	"periph.io/x/host/v3/ftdi"
)

var hostInitialized atomic.Bool

const (
	ftdiVendorID  = 0x0403 // FTDI
	ftdiProductID = 0x6010 // FT2232H
)

// OpenFT2232H finds the first attached FT2232H device and returns it.
func OpenFT2232H() (*ftdi.FT232H, error) {
	if hostInitialized.CompareAndSwap(false, true) {
		if _, err := host.Init(); err != nil {
			return nil, fmt.Errorf("drivers: host init: %w", err)
		}
	}

	info := ftdi.Info{}
	for _, dev := range ftdi.All() {
		dev.Info(&info)
		if info.VenID != ftdiVendorID || info.DevID != ftdiProductID {
			continue
		}
		if ft, ok := dev.(*ftdi.FT232H); ok {
			return ft, nil
		}
	}
	return nil, errors.New("drivers: FT2232H not found")
}

// ConnectSPI opens an SPI connection on ft at the given clock, intended for
// both the boot flash and FRAM chips which share the bus but use distinct
// chip-select pins.
func ConnectSPI(ft *ftdi.FT232H, clock physic.Frequency) (spi.Conn, error) {
	port, err := ft.SPI()
	if err != nil {
		return nil, fmt.Errorf("drivers: SPI port: %w", err)
	}
	// [FTDI AN_114|1.2]: FTDI's MPSSE engine only supports SPI mode 0 and 2.
	return port.Connect(clock, spi.Mode0, 8)
}
