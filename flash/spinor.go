package flash

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/spi"
)

// Flash commands, shared across the Micron N25Q and Winbond W25Q command
// sets referenced below:
//   - [N25Q32|Table 16: Command Set]
//   - [W25Q128|8.1.2 Instruction Set Table 1]
const (
	cmdPowerUp            = 0xAB // Release Power Down
	cmdPowerDown          = 0xB9
	cmdReadID             = 0x9F
	cmdRead               = 0x03
	cmdWriteEnable        = 0x06
	cmdPageProgram        = 0x02
	cmdErase4KB           = 0x20 // Subsector Erase / Sector Erase (4KB)
	cmdReadStatusRegister = 0x05
)

const sectorSize = 4 << 10 // 4KB, matches cmdErase4KB's granularity
const pageSize = 256       // max bytes per page program

// chipParams holds the AC timing characteristics that differ between known
// flash chips.
type chipParams struct {
	name       string
	tRES1      time.Duration
	tDP        time.Duration
	tPP        time.Duration
	tErase4KB  time.Duration
	tEraseChip time.Duration
}

var (
	idMicronN25Q32   = [3]byte{0x20, 0xBA, 0x16}
	idWinbondW25Q128 = [3]byte{0xEF, 0x70, 0x18}
)

var knownChips = map[[3]byte]chipParams{
	idMicronN25Q32: {
		name: "Micron N25Q 32Mb",
		// [N25Q32|Table 38: AC Characteristics and Operating Conditions]
		tPP:        5 * time.Millisecond,
		tErase4KB:  800 * time.Millisecond,
		tEraseChip: 60 * time.Second,
	},
	idWinbondW25Q128: {
		name: "Winbond W25Q 128Mb",
		// [W25Q128|9.6 AC Electrical Characteristics]
		tRES1:      3 * time.Microsecond,
		tDP:        3 * time.Microsecond,
		tPP:        3 * time.Millisecond,
		tErase4KB:  400 * time.Millisecond,
		tEraseChip: 200 * time.Second,
	},
}

// SPINORFlash is a Device backed by a real SPI NOR flash chip (Micron N25Q
// / Winbond W25Q family) reached through a periph.io SPI connection, the
// same way a field tool talks to the boot flash of an iCE40 board.
type SPINORFlash struct {
	conn spi.Conn
	cs   gpio.PinIO
	log  *zap.Logger

	id [3]byte
	pr *chipParams

	sectorCount int
}

// NewSPINORFlash wraps an already-connected SPI port and chip-select pin.
// sectorCount must match the physical chip's erasable sector count.
func NewSPINORFlash(conn spi.Conn, cs gpio.PinIO, sectorCount int, log *zap.Logger) *SPINORFlash {
	if log == nil {
		log = zap.NewNop()
	}
	return &SPINORFlash{conn: conn, cs: cs, sectorCount: sectorCount, log: log}
}

func (f *SPINORFlash) Info() Info {
	return Info{SectorCount: f.sectorCount, SectorSize: sectorSize, BlockSize: pageSize}
}

// tx wraps an SPI transaction with chip-select assertion.
func (f *SPINORFlash) tx(buf []byte) (err error) {
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

// PowerUp releases the chip from deep power-down. Call once before any other
// operation.
func (f *SPINORFlash) PowerUp() error {
	if err := f.tx([]byte{cmdPowerUp}); err != nil {
		return errors.Wrap(err, "flash: power up")
	}
	time.Sleep(f.tRES1())
	return nil
}

// PowerDown puts the chip into deep power-down to save current.
func (f *SPINORFlash) PowerDown() error {
	if err := f.tx([]byte{cmdPowerDown}); err != nil {
		return errors.Wrap(err, "flash: power down")
	}
	time.Sleep(f.tDP())
	return nil
}

// ReadID reads the JEDEC ID and, for known chips, loads their AC timing
// parameters so busyWait timeouts and power-state delays use that chip's
// values instead of the worst case across known chips.
func (f *SPINORFlash) ReadID() (id [3]byte, name string, err error) {
	buf := make([]byte, 4)
	buf[0] = cmdReadID
	if err = f.tx(buf); err != nil {
		return id, "", errors.Wrap(err, "flash: read id")
	}
	f.id = [3]byte(buf[1:])
	if params, ok := knownChips[f.id]; ok {
		f.pr = &params
		name = params.name
	}
	f.log.Debug("flash id", zap.ByteString("jedec", f.id[:]), zap.String("name", name))
	return f.id, name, nil
}

func (f *SPINORFlash) Read(_ context.Context, addr int, out []byte) error {
	const (
		maxTx    = 65536 // [FTDI-AN_108]
		cmdBytes = 4     // opRead + 24-bit address
		maxData  = maxTx - cmdBytes
	)

	off := 0
	for remaining := len(out); remaining > 0; {
		chunk := min(remaining, maxData)
		buf := make([]byte, cmdBytes+chunk)
		buf[0] = cmdRead
		buf[1] = byte(addr >> 16)
		buf[2] = byte(addr >> 8)
		buf[3] = byte(addr)
		if err := f.tx(buf); err != nil {
			return errors.Wrapf(err, "flash: read at 0x%x", addr)
		}
		copy(out[off:], buf[cmdBytes:])
		addr += chunk
		off += chunk
		remaining -= chunk
	}
	return nil
}

func (f *SPINORFlash) writeEnable() error {
	return f.tx([]byte{cmdWriteEnable})
}

// pageProgram writes at most pageSize bytes within a single page.
func (f *SPINORFlash) pageProgram(addr int, data []byte) error {
	if err := f.writeEnable(); err != nil {
		return err
	}
	if len(data) > pageSize {
		return fmt.Errorf("flash: page program of %d bytes exceeds %d", len(data), pageSize)
	}
	buf := make([]byte, 4+len(data))
	buf[0] = cmdPageProgram
	buf[1] = byte(addr >> 16)
	buf[2] = byte(addr >> 8)
	buf[3] = byte(addr)
	copy(buf[4:], data)
	if err := f.tx(buf); err != nil {
		return err
	}
	return f.busyWait(100*time.Microsecond, f.tPP())
}

func (f *SPINORFlash) Write(_ context.Context, addr int, data []byte) error {
	if addr%pageSize != 0 {
		return fmt.Errorf("flash: write address 0x%x not page aligned", addr)
	}
	for off := 0; off < len(data); off += pageSize {
		n := min(pageSize, len(data)-off)
		if err := f.pageProgram(addr+off, data[off:off+n]); err != nil {
			return errors.Wrapf(err, "flash: page program at 0x%x", addr+off)
		}
	}
	return nil
}

func (f *SPINORFlash) EraseSector(_ context.Context, sector int) error {
	addr := sector * sectorSize
	if err := f.writeEnable(); err != nil {
		return err
	}
	buf := []byte{cmdErase4KB, byte(addr >> 16), byte(addr >> 8), byte(addr)}
	if err := f.tx(buf); err != nil {
		return errors.Wrapf(err, "flash: erase sector %d", sector)
	}
	return f.busyWait(50*time.Millisecond, f.tErase4KB())
}

// busyWait polls the status register until the write-in-progress bit clears
// or timeout elapses. timeout of 0 waits indefinitely.
func (f *SPINORFlash) busyWait(interval, timeout time.Duration) error {
	if sr, err := f.readStatusRegister(); err == nil && !sr.busy() {
		return nil
	}

	timer := time.NewTimer(timeout)
	if timeout == 0 {
		timer.Stop()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-timer.C:
			return nil
		case <-ticker.C:
			sr, err := f.readStatusRegister()
			if err != nil {
				return err
			}
			if !sr.busy() {
				return nil
			}
		}
	}
}

type statusRegister byte

func (sr statusRegister) busy() bool { return sr&(1<<0) != 0 }

func (f *SPINORFlash) readStatusRegister() (statusRegister, error) {
	buf := []byte{cmdReadStatusRegister, 0}
	if err := f.tx(buf); err != nil {
		return 0, err
	}
	return statusRegister(buf[1]), nil
}

func (f *SPINORFlash) paramOrMax(get func(*chipParams) time.Duration) time.Duration {
	if f.pr != nil {
		return get(f.pr)
	}
	var tmax time.Duration
	for _, p := range knownChips {
		tmax = max(tmax, get(&p))
	}
	return tmax
}

func (f *SPINORFlash) tRES1() time.Duration      { return f.paramOrMax(func(p *chipParams) time.Duration { return p.tRES1 }) }
func (f *SPINORFlash) tDP() time.Duration        { return f.paramOrMax(func(p *chipParams) time.Duration { return p.tDP }) }
func (f *SPINORFlash) tPP() time.Duration        { return f.paramOrMax(func(p *chipParams) time.Duration { return p.tPP }) }
func (f *SPINORFlash) tErase4KB() time.Duration  { return f.paramOrMax(func(p *chipParams) time.Duration { return p.tErase4KB }) }
func (f *SPINORFlash) tEraseChip() time.Duration { return f.paramOrMax(func(p *chipParams) time.Duration { return p.tEraseChip }) }
