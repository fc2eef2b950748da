package codec

// Nonce is the 13-byte CCM* nonce used by every encrypted message,
// grounded on the original's Nonce.hpp: 8 bytes of device identity, a
// 4-byte security counter, and a 1-byte security control field, all
// little-endian.
type Nonce [13]byte

// NewNonce builds a nonce for a message authenticated with a running
// security counter, the common case for any device that persists its
// counter (spec's counter package) across restarts.
func NewNonce(deviceID uint64, securityCounter uint32, securityControl byte) Nonce {
	var n Nonce
	for i := 0; i < 8; i++ {
		n[i] = byte(deviceID >> (8 * i))
	}
	for i := 0; i < 4; i++ {
		n[8+i] = byte(securityCounter >> (8 * i))
	}
	n[12] = securityControl
	return n
}

// NewSelfPoweredNonce builds a nonce for a device with no persisted
// security counter (e.g. a self-powered sensor that cannot guarantee
// monotonicity across resets): only the device identity is mixed in, the
// remaining bytes left zero. Grounded on the original's device-id-only
// Nonce constructor.
func NewSelfPoweredNonce(deviceID uint64) Nonce {
	var n Nonce
	for i := 0; i < 8; i++ {
		n[i] = byte(deviceID >> (8 * i))
	}
	return n
}
