package counter

import "context"

// Value is the set of integer types a Counter can hold. Each is encoded
// little-endian into its slot.
type Value interface {
	~uint8 | ~uint16 | ~uint32 | ~int8 | ~int16 | ~int32
}

// Counter is a typed, persistent value backed by a Manager-allocated FRAM
// slot. Reads are served from memory; writes update memory immediately and
// mark the slot dirty for the next Manager.Flush.
type Counter[T Value] struct {
	m    *Manager
	slot *slotState
}

// New allocates a fresh slot sized for T and restores its persisted value
// (spec §4.D's PersistentState<T>).
func New[T Value](ctx context.Context, m *Manager) (*Counter[T], error) {
	var zero T
	slot, err := m.allocate(ctx, sizeOf(zero))
	if err != nil {
		return nil, err
	}
	return &Counter[T]{m: m, slot: slot}, nil
}

// Get returns the current in-memory value.
func (c *Counter[T]) Get() T {
	return decode[T](c.slot.value)
}

// Set assigns v, marking the slot dirty.
func (c *Counter[T]) Set(v T) {
	encode(c.slot.value, v)
	c.m.markDirty(c.slot)
}

// Inc increments the counter by 1 and returns the new value (pre-increment).
func (c *Counter[T]) Inc() T {
	v := c.Get() + 1
	c.Set(v)
	return v
}

// Dec decrements the counter by 1 and returns the new value (pre-decrement).
func (c *Counter[T]) Dec() T {
	v := c.Get() - 1
	c.Set(v)
	return v
}

// IncPost increments the counter by 1 and returns the value it held before
// the increment (post-increment).
func (c *Counter[T]) IncPost() T {
	old := c.Get()
	c.Set(old + 1)
	return old
}

// DecPost decrements the counter by 1 and returns the value it held before
// the decrement (post-decrement).
func (c *Counter[T]) DecPost() T {
	old := c.Get()
	c.Set(old - 1)
	return old
}

func sizeOf[T Value](T) int {
	var v T
	switch any(v).(type) {
	case uint8, int8:
		return 1
	case uint16, int16:
		return 2
	case uint32, int32:
		return 4
	default:
		return 4
	}
}

func encode[T Value](dst []byte, v T) {
	u := uint64(v)
	for i := range dst {
		dst[i] = byte(u >> (8 * i))
	}
}

func decode[T Value](src []byte) T {
	var u uint64
	for i, b := range src {
		u |= uint64(b) << (8 * i)
	}
	return T(u)
}
