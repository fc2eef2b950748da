package main

import (
	"fmt"

	"go.uber.org/zap"
	"periph.io/x/conn/v3/physic"

	"github.com/jochen0x90h/roomnode/drivers"
	"github.com/jochen0x90h/roomnode/flash"
)

// defaultClock is the SPI clock speed the board's FT2232H wiring tolerates.
const defaultClock = 30 * physic.MegaHertz // [AN_135 3.2.1 Divisors]

// openFlash finds the attached FT2232H, connects SPI, and wraps it as a
// flash.SPINORFlash. sectorCount should match the physical chip (see -sectors
// flag); it is only needed for Info(), not for ID/read/write/erase.
func openFlash(sectorCount int, log *zap.Logger) (*flash.SPINORFlash, error) {
	ft, err := drivers.OpenFT2232H()
	if err != nil {
		return nil, fmt.Errorf("failed to open FT2232H device: %w", err)
	}

	conn, err := drivers.ConnectSPI(ft, defaultClock)
	if err != nil {
		return nil, fmt.Errorf("failed to connect SPI: %w", err)
	}

	// [EB82|Appendix A. Sheet 2 of 5 (USB to SPI/RS232)] / [icebreaker-sch.pdf]
	// ADBUS0 | iCE_SCK
	// ADBUS1 | iCE_MOSI / FLASH_MOSI
	// ADBUS2 | iCE_MISO / FLASH_MISO
	// ADBUS4 | iCE_SS_B (flash chip select)
	cs := ft.D4

	return flash.NewSPINORFlash(conn, cs, sectorCount, log), nil
}
