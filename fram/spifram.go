package fram

import (
	"context"

	"github.com/pkg/errors"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/spi"
)

// MR45Vxxx-class FRAM command set, the same shape as the flash chip's
// command set but without an erase cycle or a busy-wait — the part accepts
// a new WRITE as soon as chip-select is deasserted.
const (
	cmdWriteEnable = 0x06
	cmdWrite       = 0x02
	cmdRead        = 0x03
)

// SPIFRAM is a Device backed by a real SPI FRAM chip (e.g. MR45V064B),
// reached the same way the flash chip is: a periph.io SPI connection gated
// by a dedicated chip-select pin.
type SPIFRAM struct {
	conn spi.Conn
	cs   gpio.PinIO
	size int
}

// NewSPIFRAM wraps an already-connected SPI port and chip-select pin.
func NewSPIFRAM(conn spi.Conn, cs gpio.PinIO, size int) *SPIFRAM {
	return &SPIFRAM{conn: conn, cs: cs, size: size}
}

func (f *SPIFRAM) Info() Info { return Info{Size: f.size} }

// tx wraps an SPI transaction with chip-select assertion, identical in shape
// to flash.SPINORFlash.tx.
func (f *SPIFRAM) tx(buf []byte) (err error) {
	if err = f.cs.Out(gpio.Low); err != nil {
		return err
	}
	defer func() {
		if csErr := f.cs.Out(gpio.High); csErr != nil && err == nil {
			err = csErr
		}
	}()
	err = f.conn.Tx(buf, buf)
	return
}

func (f *SPIFRAM) Read(_ context.Context, addr int, out []byte) error {
	const cmdBytes = 3 // opRead + 16-bit address
	buf := make([]byte, cmdBytes+len(out))
	buf[0] = cmdRead
	buf[1] = byte(addr >> 8)
	buf[2] = byte(addr)
	if err := f.tx(buf); err != nil {
		return errors.Wrapf(err, "fram: read at 0x%x", addr)
	}
	copy(out, buf[cmdBytes:])
	return nil
}

func (f *SPIFRAM) Write(_ context.Context, addr int, data []byte) error {
	if err := f.tx([]byte{cmdWriteEnable}); err != nil {
		return errors.Wrap(err, "fram: write enable")
	}
	const cmdBytes = 3
	buf := make([]byte, cmdBytes+len(data))
	buf[0] = cmdWrite
	buf[1] = byte(addr >> 8)
	buf[2] = byte(addr)
	copy(buf[cmdBytes:], data)
	if err := f.tx(buf); err != nil {
		return errors.Wrapf(err, "fram: write at 0x%x", addr)
	}
	return nil
}
