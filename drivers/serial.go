package drivers

import (
	"context"
	"os"
	"sync"
	"syscall"
	"time"
	"unsafe"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/jochen0x90h/roomnode/task"
)

// SerialBus is a task.Driver fronting a termios raw-mode serial port, the
// node's link to the custom multi-drop bus its siblings share. It sets up
// the port the same way an interactive terminal passthrough would (raw mode,
// ioctl-based termios access) but exposes a Send/Receive pair a task can
// await instead of piping bytes to a console.
//
// Reads happen off the blocking I/O path: Poll drains whatever the port has
// buffered into an internal queue and signals rxReady, so no waitlist is
// ever touched outside task context, matching the "ISRs only set flags"
// split the rest of the runtime follows.
type SerialBus struct {
	file *os.File
	log  *zap.Logger

	mu      sync.Mutex
	rxBuf   []byte
	txQueue [][]byte

	rxReady *task.Event
}

// OpenSerialBus opens path as a raw-mode serial port at the given baud rate
// constant (one of the syscall.B* values, e.g. syscall.B9600).
func OpenSerialBus(path string, baud uintptr, log *zap.Logger) (*SerialBus, error) {
	if log == nil {
		log = zap.NewNop()
	}
	fd, err := syscall.Open(path, syscall.O_RDWR|syscall.O_NOCTTY|syscall.O_NONBLOCK|syscall.O_CLOEXEC, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "drivers: open %s", path)
	}

	term, err := getTermios(fd)
	if err != nil {
		syscall.Close(fd)
		return nil, errors.Wrap(err, "drivers: get termios")
	}
	makeRaw(&term, baud)
	if err := setTermios(fd, term); err != nil {
		syscall.Close(fd)
		return nil, errors.Wrap(err, "drivers: set termios")
	}

	file := os.NewFile(uintptr(fd), path)
	return &SerialBus{
		file:    file,
		log:     log,
		rxReady: task.NewEvent(),
	}, nil
}

// Close releases the underlying file descriptor.
func (s *SerialBus) Close() error {
	return s.file.Close()
}

// Send enqueues data for transmission; the next Poll flushes it. Send never
// blocks on the wire itself.
func (s *SerialBus) Send(data []byte) {
	s.mu.Lock()
	s.txQueue = append(s.txQueue, append([]byte(nil), data...))
	s.mu.Unlock()
}

// Receive waits until at least one byte has arrived and returns everything
// buffered so far.
//
// The ready channel is captured before the buffer check, not after: Poll's
// Set/Reset pair always closes whatever channel was current when it ran, so
// a channel captured before an intervening Poll call is guaranteed to be the
// one that call closes. Capturing it the other way around (check, then grab
// a fresh channel to wait on) can grab the already-Reset replacement and miss
// the very Set that should have woken this call.
func (s *SerialBus) Receive(ctx context.Context) ([]byte, error) {
	for {
		ready := s.rxReady.C()

		s.mu.Lock()
		if len(s.rxBuf) > 0 {
			data := s.rxBuf
			s.rxBuf = nil
			s.mu.Unlock()
			return data, nil
		}
		s.mu.Unlock()

		select {
		case <-ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Poll flushes queued outbound writes and drains inbound bytes into the
// receive buffer, signaling any waiting Receive call. Its read is bounded by
// a short deadline, so a Poll with nothing pending returns after about a
// millisecond; it is meant to be driven by a task.Loop tick.
func (s *SerialBus) Poll(ctx context.Context) error {
	s.mu.Lock()
	pending := s.txQueue
	s.txQueue = nil
	s.mu.Unlock()
	for _, data := range pending {
		if _, err := s.file.Write(data); err != nil {
			s.log.Warn("serial write failed", zap.Error(err))
		}
	}

	// A non-blocking fd still parks the calling goroutine in os.File.Read
	// until data arrives, because the Go runtime poller masks EAGAIN. A
	// near-immediate read deadline turns this into the bounded poll a
	// single-goroutine tick loop needs.
	if err := s.file.SetReadDeadline(time.Now().Add(time.Millisecond)); err != nil {
		return errors.Wrap(err, "drivers: set read deadline")
	}
	buf := make([]byte, 256)
	n, err := s.file.Read(buf)
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) || isWouldBlock(err) {
			return nil
		}
		return errors.Wrap(err, "drivers: serial read")
	}
	if n == 0 {
		return nil
	}

	s.mu.Lock()
	s.rxBuf = append(s.rxBuf, buf[:n]...)
	s.mu.Unlock()
	s.rxReady.Set()
	s.rxReady.Reset()
	return nil
}

func isWouldBlock(err error) bool {
	return errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.EWOULDBLOCK)
}

func getTermios(fd int) (syscall.Termios, error) {
	var term syscall.Termios
	_, _, errno := syscall.Syscall(syscall.SYS_IOCTL, uintptr(fd), uintptr(tcgets), uintptr(unsafe.Pointer(&term)))
	if errno != 0 {
		return term, errno
	}
	return term, nil
}

func setTermios(fd int, term syscall.Termios) error {
	_, _, errno := syscall.Syscall(syscall.SYS_IOCTL, uintptr(fd), uintptr(tcsets), uintptr(unsafe.Pointer(&term)))
	if errno != 0 {
		return errno
	}
	return nil
}

// makeRaw puts term into the 8N1 raw mode the bus protocol expects: no
// canonical line buffering, no echo, no signal generation, reads return as
// soon as a byte is available.
func makeRaw(term *syscall.Termios, baud uintptr) {
	term.Iflag &^= syscall.IGNBRK | syscall.BRKINT | syscall.PARMRK | syscall.ISTRIP |
		syscall.INLCR | syscall.IGNCR | syscall.ICRNL | syscall.IXON
	term.Oflag &^= syscall.OPOST
	term.Lflag &^= syscall.ECHO | syscall.ECHONL | syscall.ICANON | syscall.ISIG | syscall.IEXTEN
	term.Cflag &^= syscall.CSIZE | syscall.PARENB
	term.Cflag |= syscall.CS8 | syscall.CLOCAL | syscall.CREAD
	setBaud(term, baud)
	term.Cc[syscall.VMIN] = 0
	term.Cc[syscall.VTIME] = 0
}
