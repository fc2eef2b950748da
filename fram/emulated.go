package fram

import (
	"context"
	"fmt"
)

// Emulated is an in-memory Device used by counter manager tests and by
// cmd/roomnode when no real chip is attached.
type Emulated struct {
	mem []byte
}

// NewEmulated creates a zero-filled FRAM image of the given size.
func NewEmulated(size int) *Emulated {
	return &Emulated{mem: make([]byte, size)}
}

func (e *Emulated) Info() Info { return Info{Size: len(e.mem)} }

func (e *Emulated) Read(_ context.Context, addr int, out []byte) error {
	if addr < 0 || addr+len(out) > len(e.mem) {
		return fmt.Errorf("fram: read [%d,%d) out of range", addr, addr+len(out))
	}
	copy(out, e.mem[addr:addr+len(out)])
	return nil
}

func (e *Emulated) Write(_ context.Context, addr int, data []byte) error {
	if addr < 0 || addr+len(data) > len(e.mem) {
		return fmt.Errorf("fram: write [%d,%d) out of range", addr, addr+len(data))
	}
	copy(e.mem[addr:addr+len(data)], data)
	return nil
}

// TearWrite simulates a torn write for tests: only the first n bytes of data
// starting at addr are actually committed, as if power was lost mid-program.
func (e *Emulated) TearWrite(addr int, data []byte, n int) {
	copy(e.mem[addr:addr+n], data[:n])
}
