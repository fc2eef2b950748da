// Package counter implements the wear-levelled, torn-write-safe persistent
// counter manager (spec §4.D): small fixed-size values held in FRAM as two
// redundant, gray-code-sequenced copies so a power loss mid-write never
// loses the previous value, and so that every write alternates which half
// of the slot is rewritten, spreading wear evenly across the underlying
// FRAM cells.
package counter

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/jochen0x90h/roomnode/fram"
)

// blockSize is the FRAM allocation granularity: one bit in the allocator's
// bitmap per block. It must hold the largest supported slot layout
// (2*maxValueSize + 2); 16 bytes covers value sizes up to 7, comfortably
// enough for the uint8/uint16/uint32 counters this package targets. The
// original allocator split this into two block classes (6 and 10 bytes) to
// pack smaller counters more densely; this reimplementation trades that
// density for a single allocation path, a simplification recorded in
// DESIGN.md.
const blockSize = 16

// slot layout within a block, for a value of size bytes (size <= 7):
//
//	[0, size)          copy 0 value, little-endian
//	[size]             copy 0 sequence
//	[size+1, size+1+size) copy 1 value, little-endian
//	[2*size+1]         copy 1 sequence
const maxValueSize = 7

// Manager owns a region of FRAM as a bitmap-allocated set of fixed-size
// slots, each slot backing one Counter. Mutations update the in-memory
// value immediately and mark the slot dirty; Flush performs the actual
// FRAM writes, standing in for the original's asynchronous updater task
// (spec §4.D, §4.E) — see DESIGN.md for why persistence is a pull (Flush)
// rather than counter owning a task of its own.
type Manager struct {
	dev   fram.Device
	log   *zap.Logger
	mu    sync.Mutex
	base  int
	size  int
	blocks int
	bitmap []byte

	slots []*slotState
	dirty []*slotState
}

// slotState is the manager's bookkeeping for one allocated slot,
// independent of the Go type a Counter[T] wraps it in.
type slotState struct {
	offset    int
	valueSize int
	value     []byte // current logical value, valueSize bytes, little-endian
	curCopy   int    // 0 or 1: which on-flash copy currently holds value
	seq       byte   // sequence stamped on the current copy
	isDirty   bool
}

// Config describes the FRAM region a Manager owns.
type Config struct {
	Base int // byte offset of the first allocator block
	Size int // total bytes available to the allocator
}

// NewManager creates a Manager over the given FRAM region. No FRAM is
// accessed until Allocate is called.
func NewManager(dev fram.Device, cfg Config, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	blocks := cfg.Size / blockSize
	return &Manager{
		dev:    dev,
		log:    log,
		base:   cfg.Base,
		size:   cfg.Size,
		blocks: blocks,
		bitmap: make([]byte, (blocks+7)/8),
	}
}

// allocate reserves the next free block and restores its persisted value
// (or a zero value, if the block was never written) for a counter of
// valueSize bytes.
func (m *Manager) allocate(ctx context.Context, valueSize int) (*slotState, error) {
	if valueSize < 1 || valueSize > maxValueSize {
		return nil, errors.Errorf("counter: unsupported value size %d", valueSize)
	}
	m.mu.Lock()
	block := -1
	for i := 0; i < m.blocks; i++ {
		if m.bitmap[i/8]&(1<<(i%8)) == 0 {
			block = i
			m.bitmap[i/8] |= 1 << (i % 8)
			break
		}
	}
	m.mu.Unlock()
	if block < 0 {
		return nil, errors.New("counter: FRAM allocator exhausted")
	}

	offset := m.base + block*blockSize
	s, err := m.restore(ctx, offset, valueSize)
	if err != nil {
		return nil, errors.Wrapf(err, "counter: restoring slot at 0x%x", offset)
	}
	m.mu.Lock()
	m.slots = append(m.slots, s)
	m.mu.Unlock()
	return s, nil
}

// restore reads both copies at offset and picks the newer valid one,
// following the same redundancy scheme as the allocator's slot layout
// (spec §4.D, Testable Properties 6-8).
func (m *Manager) restore(ctx context.Context, offset, size int) (*slotState, error) {
	buf := make([]byte, 2*size+2)
	if err := m.dev.Read(ctx, offset, buf); err != nil {
		return nil, err
	}
	v0, s0 := buf[:size], buf[size]
	v1, s1 := buf[size+1:size+1+size], buf[2*size+1]
	valid0 := validSeq(s0)
	valid1 := validSeq(s1)

	st := &slotState{offset: offset, valueSize: size, value: make([]byte, size)}
	switch {
	case valid0 && valid1:
		if newer(s0, s1) {
			copy(st.value, v0)
			st.curCopy, st.seq = 0, s0
		} else {
			copy(st.value, v1)
			st.curCopy, st.seq = 1, s1
		}
	case valid0:
		copy(st.value, v0)
		st.curCopy, st.seq = 0, s0
	case valid1:
		copy(st.value, v1)
		st.curCopy, st.seq = 1, s1
	default:
		// Never written (or both copies corrupt): start from a zero value.
		// seq 0 is deliberately not a "valid" gray-code sequence value;
		// the first real write advances it with nextSeq regardless.
		st.curCopy, st.seq = 1, 0
	}
	return st, nil
}

// markDirty records that s's in-memory value changed and needs persisting.
func (m *Manager) markDirty(s *slotState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.isDirty {
		return
	}
	s.isDirty = true
	m.dirty = append(m.dirty, s)
}

// Flush persists every dirty counter, writing each to whichever of its two
// copies is currently stale, stamped with the next gray-code sequence. A
// partial failure leaves the remaining dirty counters queued for the next
// Flush. Callers (typically a task-runtime driver) are expected to call
// this periodically or after a batch of mutations.
func (m *Manager) Flush(ctx context.Context) error {
	m.mu.Lock()
	pending := m.dirty
	m.dirty = nil
	m.mu.Unlock()

	for i, s := range pending {
		if err := m.writeSlot(ctx, s); err != nil {
			m.mu.Lock()
			s.isDirty = true
			m.dirty = append(m.dirty, pending[i:]...)
			m.mu.Unlock()
			return errors.Wrapf(err, "counter: flushing slot at 0x%x", s.offset)
		}
		m.mu.Lock()
		s.isDirty = false
		m.mu.Unlock()
	}
	return nil
}

func (m *Manager) writeSlot(ctx context.Context, s *slotState) error {
	staleCopy := 1 - s.curCopy
	nextSequence := nextSeq(s.seq)

	size := s.valueSize
	buf := make([]byte, size+1)
	copy(buf, s.value)
	buf[size] = nextSequence

	var copyOffset int
	if staleCopy == 0 {
		copyOffset = s.offset
	} else {
		copyOffset = s.offset + size + 1
	}
	if err := m.dev.Write(ctx, copyOffset, buf); err != nil {
		return err
	}
	s.curCopy = staleCopy
	s.seq = nextSequence
	return nil
}

// nextSeq advances a gray-code-derived sequence byte so that validSeq holds
// for every value it ever produces, and so that successive values are
// totally ordered under newer (spec's wear-levelled sequence encoding).
func nextSeq(c byte) byte {
	for bit := byte(1); bit != 0; bit <<= 2 {
		c += bit
		if c&bit != 0 {
			c &^= bit << 1
		} else {
			break
		}
	}
	return c
}

// validSeq reports whether c could have been produced by nextSeq (as
// opposed to garbage left by a torn write or an unwritten FRAM cell).
func validSeq(c byte) bool {
	return ((c ^ (c >> 1)) & 0x55) == 0x55
}

// newer reports whether sequence a is more recent than b, assuming both
// are valid and at most one nextSeq step apart in practice. The signed
// difference orders every step except the wrap from the cycle's last value
// 0xaa back to its first value 0x55, which is handled explicitly.
func newer(a, b byte) bool {
	switch {
	case a == 0x55 && b == 0xaa:
		return true
	case a == 0xaa && b == 0x55:
		return false
	}
	return int8(a-b) > 0
}
