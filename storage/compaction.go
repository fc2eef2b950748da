package storage

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// readRawPayload reads a length-prefixed flash payload starting at offset.
func (s *Storage) readRawPayload(ctx context.Context, offset int) ([]byte, error) {
	lenBuf := make([]byte, lengthPrefixSize)
	if err := s.dev.Read(ctx, offset, lenBuf); err != nil {
		return nil, err
	}
	n := getLength(lenBuf)
	out := make([]byte, n)
	if n > 0 {
		if err := s.dev.Read(ctx, offset+lengthPrefixSize, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// compact rewrites every array's live elements into the currently-inactive
// region as one bulk OVERWRITE entry per array, switches the active region
// to it, and erases the region just vacated (spec §6.2 switchFlashRegions).
// RAM-side state (ramElements, ramArena) is untouched: compaction only
// changes where live flash payloads physically live, never their RAM
// companions or count.
func (s *Storage) compact(ctx context.Context) error {
	var newStart int
	if s.activeStart == s.regionAStart {
		newStart = s.regionBStart
	} else {
		newStart = s.regionAStart
	}

	cursor := newStart
	newFlashElements := make([]int, len(s.flashElements))
	var firstHeader []byte // written at newStart only after everything else
	for _, a := range s.arrays {
		if a.count == 0 {
			continue
		}
		h := header{arrayIndex: byte(a.index), index: 0, value: byte(a.count), op: OpOverwrite}
		hb := h.encode()
		if firstHeader == nil {
			firstHeader = padToAlign(hb[:], s.info.BlockSize)
		} else if err := s.dev.Write(ctx, cursor, padToAlign(hb[:], s.info.BlockSize)); err != nil {
			return errors.Wrap(err, "storage: compaction header write")
		}
		cursor += flashAlign(headerSize, s.info.BlockSize)

		for i := 0; i < a.count; i++ {
			slot := a.start + i
			raw, err := s.readRawPayload(ctx, s.flashElements[slot])
			if err != nil {
				return errors.Wrap(err, "storage: compaction payload read")
			}
			buf := make([]byte, lengthPrefixSize+len(raw))
			putLength(buf, len(raw))
			copy(buf[lengthPrefixSize:], raw)
			if err := s.dev.Write(ctx, cursor, padToAlign(buf, s.info.BlockSize)); err != nil {
				return errors.Wrap(err, "storage: compaction payload write")
			}
			newFlashElements[slot] = cursor
			cursor += flashAlign(len(buf), s.info.BlockSize)
		}
	}

	if cursor > newStart+s.regionSize {
		// The live set no longer fits in a single region even without log
		// overhead: callers sized MaxElements/RAMSize/region geometry
		// inconsistently. Leave state untouched and report it.
		return ErrOutOfSpace
	}

	// Until the first header's op byte is programmed the new region reads as
	// erased, so a power loss during the copy leaves the old region active.
	if firstHeader != nil {
		if err := s.dev.Write(ctx, newStart, firstHeader); err != nil {
			return errors.Wrap(err, "storage: compaction header write")
		}
	}

	oldStart := s.activeStart
	s.flashElements = newFlashElements
	s.activeStart = newStart
	s.cursor = cursor
	s.end = newStart + s.regionSize

	s.log.Debug("storage: compacted", zap.Int("oldRegion", oldStart), zap.Int("newRegion", newStart))
	return s.eraseRegionIfNotEmpty(ctx, oldStart)
}
