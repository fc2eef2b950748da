// Package flash provides the page-aligned erase/program/read abstraction
// (spec §4.A) that the storage engine is layered on. A Device never needs to
// know it is backed by real NOR flash versus an in-memory double: unprogrammed
// bytes read back as 0xff, bytes can only be programmed 1->0, and
// EraseSector resets a sector back to all 0xff.
package flash

import "context"

// Info describes the geometry of a flash device.
type Info struct {
	// SectorCount is the number of erasable sectors.
	SectorCount int

	// SectorSize is the size of a sector in bytes, a multiple of BlockSize.
	SectorSize int

	// BlockSize is the smallest unit that can be programmed at once, a
	// power of two. Read is byte-granular regardless of BlockSize.
	BlockSize int
}

// Device is page-aligned NOR flash: erase per sector, program per block,
// read byte-granular. addr and len passed to Write must be BlockSize
// aligned; Read has no alignment requirement.
type Device interface {
	Info() Info

	// EraseSector resets sector i to all 0xff.
	EraseSector(ctx context.Context, sector int) error

	// Read fills out with len(out) bytes starting at addr.
	Read(ctx context.Context, addr int, out []byte) error

	// Write programs data at addr, which together with len(data) must be
	// BlockSize aligned. Bits can only move 1->0; callers that need to
	// reprogram already-written bytes must erase first.
	Write(ctx context.Context, addr int, data []byte) error
}

// AddressOf returns the byte offset of the first byte of sector.
func AddressOf(info Info, sector int) int {
	return sector * info.SectorSize
}

// SectorOf returns the sector index containing addr.
func SectorOf(info Info, addr int) int {
	return addr / info.SectorSize
}
