// Package fram provides the byte-addressable read/write abstraction (spec
// §4.B) used by the persistent counter manager. Unlike flash, FRAM needs no
// erase before a byte can be reprogrammed.
package fram

import "context"

// Info describes the geometry of an FRAM device.
type Info struct {
	// Size is the total addressable capacity in bytes.
	Size int
}

// Device is byte-addressable non-volatile memory with no erase cycle.
type Device interface {
	Info() Info
	Read(ctx context.Context, addr int, out []byte) error
	Write(ctx context.Context, addr int, data []byte) error
}
