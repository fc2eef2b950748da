//go:build linux

package drivers

import "syscall"

const (
	tcgets = syscall.TCGETS
	tcsets = syscall.TCSETS
)

// setBaud sets both the input and output baud rate bits within Cflag; Linux
// termios has no separate Ispeed/Ospeed fields, unlike Darwin's.
func setBaud(term *syscall.Termios, baud uintptr) {
	term.Cflag &^= syscall.CBAUD
	term.Cflag |= uint32(baud) & syscall.CBAUD
}
