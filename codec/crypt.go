package codec

import (
	"crypto/aes"
	"crypto/cipher"

	"github.com/pkg/errors"
)

// ErrAuthFailed is returned by Open when the computed MIC doesn't match the
// one carried in the message, i.e. the message was tampered with or used
// the wrong key/nonce.
var ErrAuthFailed = errors.New("codec: authentication failed")

// AEAD implements the CCM*-style authenticated encryption the original's
// crypt.cpp builds over AES: counter-mode encryption plus a CBC-MAC
// computed over a 2-byte-length-field ("L=2") nonce construction. Crypto
// primitive correctness is an explicit spec non-goal, so this leans on
// crypto/aes for the block cipher itself (the one piece every
// implementation, including the original's, treats as a supplied
// primitive) and implements the CCM* framing by hand, the same way
// crypt.cpp does, rather than reach for a third-party AEAD package none of
// the example repos import.
type AEAD struct {
	block cipher.Block
}

// NewAEAD creates an AEAD from a 16-byte AES-128 key.
func NewAEAD(key [16]byte) (*AEAD, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, errors.Wrap(err, "codec: aes key setup")
	}
	return &AEAD{block: block}, nil
}

// Seal encrypts message in place and returns a micLength-byte tag computed
// over header (left in the clear) and the plaintext message.
func (a *AEAD) Seal(nonce Nonce, header, message []byte, micLength int) ([]byte, error) {
	if micLength < 4 || micLength > 16 || micLength%2 != 0 {
		return nil, errors.Errorf("codec: unsupported MIC length %d", micLength)
	}
	mac := a.cbcMAC(nonce, header, message, micLength)
	s0 := a.keystreamBlock(nonce, 0)
	for i := 0; i < micLength; i++ {
		mac[i] ^= s0[i]
	}
	a.ctrXOR(nonce, message)
	return mac[:micLength], nil
}

// Open verifies mic against header and the ciphertext in message, then
// decrypts message in place. On authentication failure message is left
// decrypted (the caller must discard it) and ErrAuthFailed is returned.
func (a *AEAD) Open(nonce Nonce, header, message, mic []byte) error {
	micLength := len(mic)
	s0 := a.keystreamBlock(nonce, 0)

	a.ctrXOR(nonce, message) // message is now plaintext
	mac := a.cbcMAC(nonce, header, message, micLength)
	for i := 0; i < micLength; i++ {
		mac[i] ^= s0[i]
	}
	var diff byte
	for i := 0; i < micLength; i++ {
		diff |= mac[i] ^ mic[i]
	}
	if diff != 0 {
		return ErrAuthFailed
	}
	return nil
}

// ctrXOR XORs data in place with the AES-CTR keystream derived from nonce,
// counter blocks starting at 1 (block 0 is reserved for masking the MIC).
func (a *AEAD) ctrXOR(nonce Nonce, data []byte) {
	counter := uint16(1)
	for offset := 0; offset < len(data); offset += aes.BlockSize {
		s := a.keystreamBlock(nonce, counter)
		n := len(data) - offset
		if n > aes.BlockSize {
			n = aes.BlockSize
		}
		for i := 0; i < n; i++ {
			data[offset+i] ^= s[i]
		}
		counter++
	}
}

func (a *AEAD) keystreamBlock(nonce Nonce, counter uint16) []byte {
	var block [aes.BlockSize]byte
	block[0] = 0x01 // flags: L-1 = 1 (L=2, a 2-byte length field)
	copy(block[1:14], nonce[:])
	block[14] = byte(counter >> 8)
	block[15] = byte(counter)
	var out [aes.BlockSize]byte
	a.block.Encrypt(out[:], block[:])
	return out[:]
}

// cbcMAC computes the CCM* authentication tag's CBC-MAC over B0, the
// associated data (header), and the message, all padded to 16-byte blocks.
func (a *AEAD) cbcMAC(nonce Nonce, header, message []byte, micLength int) []byte {
	var mac [aes.BlockSize]byte
	b0 := buildB0(nonce, micLength, len(header), len(message))
	xorEncryptBlock(a.block, mac[:], b0[:])

	for _, block := range padBlocks(encodeAssociatedData(header)) {
		xorEncryptBlock(a.block, mac[:], block)
	}
	for _, block := range padBlocks(message) {
		xorEncryptBlock(a.block, mac[:], block)
	}
	return mac[:]
}

func xorEncryptBlock(block cipher.Block, mac, data []byte) {
	for i := range mac {
		mac[i] ^= data[i]
	}
	block.Encrypt(mac, mac)
}

func buildB0(nonce Nonce, micLength, headerLen, msgLen int) [aes.BlockSize]byte {
	var b [aes.BlockSize]byte
	flags := byte(0x01) // L-1 = 1
	flags |= byte(((micLength-2)/2)&0x7) << 3
	if headerLen > 0 {
		flags |= 0x40
	}
	b[0] = flags
	copy(b[1:14], nonce[:])
	b[14] = byte(msgLen >> 8)
	b[15] = byte(msgLen)
	return b
}

// encodeAssociatedData prepends the RFC 3610-style 2-byte big-endian length
// field to header, or returns nil if there is no associated data.
func encodeAssociatedData(header []byte) []byte {
	if len(header) == 0 {
		return nil
	}
	out := make([]byte, 2+len(header))
	out[0] = byte(len(header) >> 8)
	out[1] = byte(len(header))
	copy(out[2:], header)
	return out
}

// padBlocks splits data into aes.BlockSize chunks, zero-padding the last one.
func padBlocks(data []byte) [][]byte {
	if len(data) == 0 {
		return nil
	}
	n := (len(data) + aes.BlockSize - 1) / aes.BlockSize
	blocks := make([][]byte, n)
	for i := 0; i < n; i++ {
		block := make([]byte, aes.BlockSize)
		copy(block, data[i*aes.BlockSize:min(len(data), (i+1)*aes.BlockSize)])
		blocks[i] = block
	}
	return blocks
}
