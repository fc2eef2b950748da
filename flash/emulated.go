package flash

import (
	"context"
	"fmt"
)

// Emulated is an in-memory Device used by storage tests and by cmd/roomnode
// when no real chip is attached. It enforces the same program-direction
// contract as real NOR flash: a byte can only move from 1 to 0 without an
// intervening erase.
type Emulated struct {
	info Info
	mem  []byte
}

// NewEmulated creates an all-0xff flash image of the given geometry.
func NewEmulated(sectorCount, sectorSize, blockSize int) *Emulated {
	mem := make([]byte, sectorCount*sectorSize)
	for i := range mem {
		mem[i] = 0xff
	}
	return &Emulated{
		info: Info{SectorCount: sectorCount, SectorSize: sectorSize, BlockSize: blockSize},
		mem:  mem,
	}
}

func (e *Emulated) Info() Info { return e.info }

func (e *Emulated) EraseSector(_ context.Context, sector int) error {
	if sector < 0 || sector >= e.info.SectorCount {
		return fmt.Errorf("flash: sector %d out of range", sector)
	}
	start := sector * e.info.SectorSize
	for i := start; i < start+e.info.SectorSize; i++ {
		e.mem[i] = 0xff
	}
	return nil
}

func (e *Emulated) Read(_ context.Context, addr int, out []byte) error {
	if addr < 0 || addr+len(out) > len(e.mem) {
		return fmt.Errorf("flash: read [%d,%d) out of range", addr, addr+len(out))
	}
	copy(out, e.mem[addr:addr+len(out)])
	return nil
}

func (e *Emulated) Write(_ context.Context, addr int, data []byte) error {
	if addr%e.info.BlockSize != 0 || len(data)%e.info.BlockSize != 0 {
		return fmt.Errorf("flash: write [%d,+%d) not %d-aligned", addr, len(data), e.info.BlockSize)
	}
	if addr+len(data) > len(e.mem) {
		return fmt.Errorf("flash: write [%d,%d) out of range", addr, addr+len(data))
	}
	for i, b := range data {
		// bits can only be programmed from 1 to 0
		e.mem[addr+i] &= b
	}
	return nil
}

// IsEmpty reports whether every byte of sector reads as 0xff.
func (e *Emulated) IsEmpty(sector int) bool {
	start := sector * e.info.SectorSize
	for i := start; i < start+e.info.SectorSize; i++ {
		if e.mem[i] != 0xff {
			return false
		}
	}
	return true
}
