package storage

import "context"

// ArraySpec is the per-type contract supplied at registration (spec's
// "typed size functions supplied at registration", §4.C). Encode/Decode
// translate between the caller's type F and the flash wire format; RAMSize
// computes the byte size of F's mutable RAM companion.
type ArraySpec[F any] struct {
	Encode  func(v F) []byte
	Decode  func(raw []byte) F
	RAMSize func(v F) int
}

// Array is a registered, typed view over one of a Storage's arrays: flash
// elements are immutable values of type F, each paired with a mutable RAM
// companion ([]byte the caller owns the layout of).
type Array[F any] struct {
	raw  *arrayData
	spec ArraySpec[F]
}

// Register adds a new array to s, returning a typed handle. Must be called
// before Init.
func Register[F any](s *Storage, spec ArraySpec[F]) *Array[F] {
	raw := s.register(rawArraySpec{
		ramSize: func(flashPayload []byte) int {
			return spec.RAMSize(spec.Decode(flashPayload))
		},
	})
	return &Array[F]{raw: raw, spec: spec}
}

// Index is this array's stable registration-order index.
func (a *Array[F]) Index() int { return a.raw.index }

// Len is the array's current element count.
func (a *Array[F]) Len() int { return a.raw.count }

// Get reads the element at index: its decoded flash value and its mutable
// RAM companion. The returned slice aliases the storage engine's RAM arena;
// callers may mutate it in place (spec's RAM companions are scratch space
// the application owns), but must not retain it across a Write/Erase/Move
// on any array sharing this Storage, since those can move arena content.
func (a *Array[F]) Get(ctx context.Context, index int) (F, []byte, error) {
	var zero F
	if index < 0 || index >= a.raw.count {
		return zero, nil, ErrIndexOutOfRange
	}
	offset, ram := a.raw.get(index)
	raw, err := a.raw.s.readRawPayload(ctx, offset)
	if err != nil {
		return zero, nil, err
	}
	v := a.spec.Decode(raw)
	return v, ram[:a.spec.RAMSize(v)], nil
}

// Write appends (index == Len()) or overwrites the element at index, along
// with its initial RAM companion content (zero-padded/truncated to the size
// RAMSize reports for v).
func (a *Array[F]) Write(ctx context.Context, index int, v F, ramInit []byte) error {
	return a.raw.write(ctx, index, a.spec.Encode(v), ramInit)
}

// Erase removes the element at index, shifting later elements down by one.
func (a *Array[F]) Erase(ctx context.Context, index int) error {
	return a.raw.erase(ctx, index)
}

// Move relocates the element at from to to, shifting elements between them.
func (a *Array[F]) Move(ctx context.Context, from, to int) error {
	return a.raw.move(ctx, from, to)
}
