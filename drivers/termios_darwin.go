//go:build darwin

package drivers

import "syscall"

const (
	tcgets = syscall.TIOCGETA
	tcsets = syscall.TIOCSETA
)

// setBaud sets Darwin's separate Ispeed/Ospeed termios fields directly.
func setBaud(term *syscall.Termios, baud uintptr) {
	term.Ispeed = uint64(baud)
	term.Ospeed = uint64(baud)
}
