package storage

import (
	"context"

	"github.com/pkg/errors"
)

// ramInsert replaces the RAM companion at index-table slot with content,
// growing or shrinking the arena as needed and shifting every later
// element's byte offset by the resulting delta. content is zero-padded up
// to newSize.
func (s *Storage) ramInsert(slot, newSize int, content []byte) {
	oldSize := s.ramElements[slot+1] - s.ramElements[slot]
	delta := newSize - oldSize
	if delta != 0 {
		tailStart := s.ramElements[slot+1]
		tailEnd := s.ramElements[s.elementCount]
		copy(s.ramArena[tailStart+delta:tailEnd+delta], s.ramArena[tailStart:tailEnd])
		for i := slot + 1; i <= s.elementCount; i++ {
			s.ramElements[i] += delta
		}
	}
	dst := s.ramArena[s.ramElements[slot] : s.ramElements[slot]+newSize]
	for i := range dst {
		dst[i] = 0
	}
	copy(dst, content)
}

// write appends a new log entry for the element at array-local index and
// updates the in-RAM index to match. index == a.count appends; any other
// in-range index overwrites that element in place (a fresh log entry is
// still appended; the old flash bytes become garbage reclaimed at the next
// compaction).
func (a *arrayData) write(ctx context.Context, index int, payload, ramInit []byte) error {
	s := a.s
	if index < 0 || index > a.count {
		return ErrIndexOutOfRange
	}
	ramSize := ramAlign(a.spec.ramSize(payload))
	entrySize := flashAlign(headerSize, s.info.BlockSize) +
		flashAlign(lengthPrefixSize+len(payload), s.info.BlockSize)

	appending := index == a.count
	slot := a.start + index
	var ramDelta int
	if appending {
		ramDelta = ramSize
	} else {
		oldRamSize := s.ramElements[slot+1] - s.ramElements[slot]
		ramDelta = ramSize - oldRamSize
	}

	if !s.capacityFor(entrySize, ramDelta) {
		if err := s.compact(ctx); err != nil {
			return errors.Wrap(err, "storage: compacting before write")
		}
		if !s.capacityFor(entrySize, ramDelta) {
			return ErrOutOfSpace
		}
	}

	if appending {
		if s.elementCount+1 > s.cfg.MaxElements {
			return ErrTooManyElements
		}
		s.enlarge(a, 1)
	}

	h := header{arrayIndex: byte(a.index), index: byte(index), value: 1, op: OpOverwrite}
	hb := h.encode()
	if err := s.dev.Write(ctx, s.cursor, padToAlign(hb[:], s.info.BlockSize)); err != nil {
		return errors.Wrap(err, "storage: write header")
	}
	s.cursor += flashAlign(headerSize, s.info.BlockSize)

	payloadBuf := make([]byte, lengthPrefixSize+len(payload))
	putLength(payloadBuf, len(payload))
	copy(payloadBuf[lengthPrefixSize:], payload)
	if err := s.dev.Write(ctx, s.cursor, padToAlign(payloadBuf, s.info.BlockSize)); err != nil {
		return errors.Wrap(err, "storage: write payload")
	}
	s.flashElements[slot] = s.cursor
	s.cursor += flashAlign(len(payloadBuf), s.info.BlockSize)

	s.ramInsert(slot, ramSize, ramInit)
	return nil
}

// erase removes the element at array-local index, appending an ERASE log
// entry and shifting every later element in this array down by one.
func (a *arrayData) erase(ctx context.Context, index int) error {
	s := a.s
	if index < 0 || index >= a.count {
		return ErrIndexOutOfRange
	}
	entrySize := flashAlign(headerSize, s.info.BlockSize)
	if !s.capacityFor(entrySize, 0) {
		if err := s.compact(ctx); err != nil {
			return errors.Wrap(err, "storage: compacting before erase")
		}
		if !s.capacityFor(entrySize, 0) {
			return ErrOutOfSpace
		}
	}
	h := header{arrayIndex: byte(a.index), index: byte(index), value: 1, op: OpErase}
	hb := h.encode()
	if err := s.dev.Write(ctx, s.cursor, padToAlign(hb[:], s.info.BlockSize)); err != nil {
		return errors.Wrap(err, "storage: write erase header")
	}
	s.cursor += entrySize
	s.removeElements(a, index, 1)
	return nil
}

// move rotates the element at array-local index from to to, appending a
// MOVE log entry. Every element between from and to shifts by one to make
// room.
func (a *arrayData) move(ctx context.Context, from, to int) error {
	s := a.s
	if from < 0 || from >= a.count || to < 0 || to >= a.count {
		return ErrIndexOutOfRange
	}
	if from == to {
		return nil
	}
	entrySize := flashAlign(headerSize, s.info.BlockSize)
	if !s.capacityFor(entrySize, 0) {
		if err := s.compact(ctx); err != nil {
			return errors.Wrap(err, "storage: compacting before move")
		}
		if !s.capacityFor(entrySize, 0) {
			return ErrOutOfSpace
		}
	}
	h := header{arrayIndex: byte(a.index), index: byte(from), value: byte(to), op: OpMove}
	hb := h.encode()
	if err := s.dev.Write(ctx, s.cursor, padToAlign(hb[:], s.info.BlockSize)); err != nil {
		return errors.Wrap(err, "storage: write move header")
	}
	s.cursor += entrySize
	s.moveIndex(a, from, to)
	return nil
}

func (a *arrayData) get(index int) (flashOffset int, ram []byte) {
	slot := a.start + index
	return a.s.flashElements[slot], a.s.ramArena[a.s.ramElements[slot]:a.s.ramElements[slot+1]]
}
