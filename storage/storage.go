// Package storage implements the log-structured, double-buffered flash
// storage engine (spec §4.C): a region of flash split into two halves, one
// active at a time, holding an append-only log of typed array elements plus
// a compaction ("switchFlashRegions") step that rewrites the live set into
// the other half once the active half fills up. An in-RAM index mirrors
// every element's flash offset and its mutable RAM companion so readers
// never touch flash directly.
package storage

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/jochen0x90h/roomnode/flash"
)

// rawArraySpec is the untyped registration contract: RAMSize computes the
// size of an element's RAM companion from its already-decoded flash payload
// bytes (length prefix stripped). Array[F] wraps this with Encode/Decode so
// callers work in terms of F instead of raw bytes.
type rawArraySpec struct {
	ramSize func(flashPayload []byte) int
}

// arrayData is one registered array's bookkeeping: its slice of the global
// index tables and its size functions, addressed by slice offset instead of
// pointer.
type arrayData struct {
	s     *Storage
	index int // stable 8-bit registration-order index, == arrayIndex on flash
	start int // offset into s.flashElements/s.ramElements where this array begins
	count int // number of live elements
	spec  rawArraySpec
}

// Storage owns one flash region (two halves) and the arrays registered
// against it. All operations run on the single cooperative task-runtime
// thread; no locking is required (spec §7 Non-goals).
type Storage struct {
	dev flash.Device
	log *zap.Logger
	cfg Config
	info flash.Info

	regionSize                 int
	regionCapacity             int // usable bytes before a write must trigger compaction
	regionAStart, regionBStart int
	activeStart, cursor, end   int

	arrays       []*arrayData
	elementCount int

	flashElements []int // absolute device byte offsets of each element's payload
	ramElements   []int // byte offsets into ramArena; ramElements[elementCount] is the high-water mark
	ramArena      []byte
}

// New creates a Storage bound to dev, without registering any arrays yet or
// reading the flash log. Call Register for each array, then Init.
func New(dev flash.Device, cfg Config, log *zap.Logger) (*Storage, error) {
	if cfg.PageCount%2 != 0 || cfg.PageCount == 0 {
		return nil, errors.Errorf("storage: PageCount must be a positive even number, got %d", cfg.PageCount)
	}
	info := dev.Info()
	half := cfg.PageCount / 2
	regionSize := half * info.SectorSize
	// Only 2/3 of a region's raw size is ever treated as usable: the
	// remaining 1/3 is headroom a compaction is guaranteed to fit into, since
	// compaction only ever rewrites the live set that already satisfied this
	// same bound.
	regionCapacity := half * ((info.SectorSize * 2) / 3)
	regionAStart := cfg.PageStart * info.SectorSize
	regionBStart := regionAStart + regionSize
	if log == nil {
		log = zap.NewNop()
	}
	return &Storage{
		dev:            dev,
		log:            log,
		cfg:            cfg,
		info:           info,
		regionSize:     regionSize,
		regionCapacity: regionCapacity,
		regionAStart:   regionAStart,
		regionBStart:   regionBStart,
		flashElements:  make([]int, cfg.MaxElements),
		ramElements:    make([]int, cfg.MaxElements+1),
		ramArena:       make([]byte, cfg.RAMSize),
	}, nil
}

// register allocates the next array index and returns its bookkeeping
// struct. Must be called before Init.
func (s *Storage) register(spec rawArraySpec) *arrayData {
	a := &arrayData{s: s, index: len(s.arrays), spec: spec}
	s.arrays = append(s.arrays, a)
	return a
}

// Init determines which region is active, erases the inactive one if
// needed, and replays the active region's log to rebuild the in-RAM index
// (spec §6.1, §6.2).
func (s *Storage) Init(ctx context.Context) error {
	aActive, err := s.regionHasValidHeader(ctx, s.regionAStart)
	if err != nil {
		return errors.Wrap(err, "storage: probing region A")
	}
	var inactiveStart int
	if aActive {
		s.activeStart = s.regionAStart
		inactiveStart = s.regionBStart
	} else {
		s.activeStart = s.regionBStart
		inactiveStart = s.regionAStart
	}
	s.end = s.activeStart + s.regionSize

	if err := s.eraseRegionIfNotEmpty(ctx, inactiveStart); err != nil {
		return errors.Wrap(err, "storage: erasing inactive region")
	}

	return s.replay(ctx)
}

// regionHasValidHeader reports whether the first log header in the region
// starting at start is programmed (i.e. this region holds the active log).
// An erased region reads op == 0xff at its first header.
func (s *Storage) regionHasValidHeader(ctx context.Context, start int) (bool, error) {
	buf := make([]byte, headerSize)
	if err := s.dev.Read(ctx, start, buf); err != nil {
		return false, err
	}
	h := decodeHeader(buf)
	return h.op != OpInvalid, nil
}

func (s *Storage) eraseRegionIfNotEmpty(ctx context.Context, start int) error {
	sectorsPerRegion := s.regionSize / s.info.SectorSize
	firstSector := start / s.info.SectorSize
	buf := make([]byte, s.info.SectorSize)
	for i := 0; i < sectorsPerRegion; i++ {
		sector := firstSector + i
		if err := s.dev.Read(ctx, sector*s.info.SectorSize, buf); err != nil {
			return err
		}
		empty := true
		for _, b := range buf {
			if b != 0xff {
				empty = false
				break
			}
		}
		if !empty {
			if err := s.dev.EraseSector(ctx, sector); err != nil {
				return err
			}
		}
	}
	return nil
}

// replay walks the active region's log from its start, rebuilding
// flashElements, ramElements and every array's count by re-applying each
// OVERWRITE/ERASE/MOVE entry in order (spec §6.1). Truncated writes
// (power loss mid-entry) surface as a header that doesn't decode cleanly
// and simply stop replay at the last complete entry, matching spec's
// "prefix of confirmed writes" recovery guarantee.
func (s *Storage) replay(ctx context.Context) error {
	s.cursor = s.activeStart
	s.elementCount = 0
	for _, a := range s.arrays {
		a.start = 0
		a.count = 0
	}
	s.ramElements[0] = 0

	hbuf := make([]byte, headerSize)
	for {
		if s.cursor+headerSize > s.end {
			break
		}
		if err := s.dev.Read(ctx, s.cursor, hbuf); err != nil {
			return err
		}
		h := decodeHeader(hbuf)
		if h.op == OpInvalid {
			break
		}
		if int(h.arrayIndex) >= len(s.arrays) {
			s.log.Warn("storage: corrupt log entry, stopping replay", zap.Int("cursor", s.cursor))
			break
		}
		entryStart := s.cursor
		s.cursor += flashAlign(headerSize, s.info.BlockSize)
		a := s.arrays[h.arrayIndex]

		switch h.op {
		case OpOverwrite:
			count := int(h.value)
			newEnd := int(h.index) + count
			if newEnd > a.count {
				s.enlarge(a, newEnd-a.count)
			}
			for i := 0; i < count; i++ {
				payload, err := s.readRawPayload(ctx, s.cursor)
				if err != nil {
					return err
				}
				slot := a.start + int(h.index) + i
				s.flashElements[slot] = s.cursor
				s.cursor += flashAlign(lengthPrefixSize+len(payload), s.info.BlockSize)
				ramSize := ramAlign(a.spec.ramSize(payload))
				s.ramInsert(slot, ramSize, nil)
			}
		case OpErase:
			count := int(h.value)
			s.removeElements(a, int(h.index), count)
		case OpMove:
			s.moveIndex(a, int(h.index), int(h.value))
		default:
			s.log.Warn("storage: unknown op in log, stopping replay", zap.Int("cursor", entryStart))
			return nil
		}
	}
	return nil
}

// enlarge makes room for extra new slots at the end of a's current range in
// the global index tables, shifting every following array's elements (and
// their `start`) up by extra slots. It only moves index-table entries
// (ints), never flash or RAM content — matching the original's separation
// between reserving index slots and the later byte-level ramInsert.
func (s *Storage) enlarge(a *arrayData, extra int) {
	oldTotal := s.elementCount
	insertAt := a.start + a.count
	for i := oldTotal - 1; i >= insertAt; i-- {
		s.flashElements[i+extra] = s.flashElements[i]
		s.ramElements[i+extra] = s.ramElements[i]
	}
	s.ramElements[oldTotal+extra] = s.ramElements[oldTotal]
	a.count += extra
	s.elementCount += extra
	for _, other := range s.arrays {
		if other.index > a.index {
			other.start += extra
		}
	}
}

// removeElements deletes n consecutive elements starting at array-local
// offset from: it closes the gap in both index tables and collapses the
// corresponding RAM-arena bytes, then shifts every later array's start down
// by n. Used by both Erase and replay's OpErase handling.
func (s *Storage) removeElements(a *arrayData, from, n int) {
	slot := a.start + from
	ramFrom := s.ramElements[slot]
	ramTo := s.ramElements[slot+n]
	byteLen := ramTo - ramFrom

	copy(s.ramArena[ramFrom:], s.ramArena[ramTo:s.ramElements[s.elementCount]])
	for i := slot + n; i <= s.elementCount; i++ {
		s.ramElements[i-n] = s.ramElements[i] - byteLen
	}
	for i := slot + n; i < s.elementCount; i++ {
		s.flashElements[i-n] = s.flashElements[i]
	}

	a.count -= n
	s.elementCount -= n
	for _, other := range s.arrays {
		if other.index > a.index {
			other.start -= n
		}
	}
}

func (s *Storage) moveIndex(a *arrayData, from, to int) {
	if from == to {
		return
	}
	ff := s.flashElements[a.start+from]
	rf := s.ramElements[a.start+from]
	rfEnd := s.ramElements[a.start+from+1]
	ramLen := rfEnd - rf

	moveFlash := make([]int, 1)
	moveFlash[0] = ff
	moveRAM := make([]byte, ramLen)
	copy(moveRAM, s.ramArena[rf:rfEnd])

	if from < to {
		copy(s.flashElements[a.start+from:], s.flashElements[a.start+from+1:a.start+to+1])
		copy(s.ramArena[rf:], s.ramArena[rfEnd:s.ramElements[a.start+to+1]])
		shift := ramLen
		for i := a.start + from; i < a.start+to; i++ {
			s.ramElements[i] = s.ramElements[i+1] - shift
		}
		s.ramElements[a.start+to] = s.ramElements[a.start+to+1] - shift
	} else {
		copy(s.flashElements[a.start+to+1:a.start+from+1], s.flashElements[a.start+to:a.start+from])
		copy(s.ramArena[s.ramElements[a.start+to]+ramLen:], s.ramArena[s.ramElements[a.start+to]:rf])
		shift := ramLen
		for i := a.start + from; i > a.start+to; i-- {
			s.ramElements[i] = s.ramElements[i-1] + shift
		}
	}
	s.flashElements[a.start+to] = moveFlash[0]
	copy(s.ramArena[s.ramElements[a.start+to]:s.ramElements[a.start+to]+ramLen], moveRAM)
}

// capacityFor reports whether an append/overwrite of the given total
// on-flash entry size and net RAM-arena byte delta can be satisfied by the
// active region and RAM arena as they currently stand, with no compaction.
// The flash side is checked against regionCapacity (2/3 of the region's raw
// size), not the region's physical end: that headroom is what guarantees a
// compaction triggered by this check's failure always has room to rewrite
// the live set into the other region.
func (s *Storage) capacityFor(flashEntrySize, ramDelta int) bool {
	if s.cursor-s.activeStart+flashEntrySize > s.regionCapacity {
		return false
	}
	if s.ramElements[s.elementCount]+ramDelta > len(s.ramArena) {
		return false
	}
	return true
}
