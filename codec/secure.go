package codec

// DecryptReader wraps a Reader over an encrypted message: SetHeader marks
// the unencrypted prefix (associated data), Decrypt authenticates and
// decrypts the rest in place before any fields are read from it. Mirrors
// the original's DecryptReader.
type DecryptReader struct {
	*Reader
	aead   *AEAD
	nonce  Nonce
	header []byte
}

// NewDecryptReader creates a DecryptReader over buf, decrypted with aead
// under nonce.
func NewDecryptReader(buf []byte, aead *AEAD, nonce Nonce) *DecryptReader {
	return &DecryptReader{Reader: NewReader(buf), aead: aead, nonce: nonce}
}

// SetHeader marks the first n bytes of the buffer as associated data: sent
// in the clear, but covered by the MIC.
func (d *DecryptReader) SetHeader(n int) {
	d.header = d.Bytes(n)
}

// Decrypt authenticates and decrypts the remaining unread bytes in place,
// treating the last micLength of them as the MIC. After a successful call,
// subsequent Reader field reads see the plaintext, which ends before the MIC.
func (d *DecryptReader) Decrypt(micLength int) error {
	start := d.pos
	rest := d.Rest()
	if len(rest) < micLength {
		return ErrShortBuffer
	}
	message := rest[:len(rest)-micLength]
	mic := rest[len(rest)-micLength:]
	if err := d.aead.Open(d.nonce, d.header, message, mic); err != nil {
		return err
	}
	d.buf = d.buf[:start+len(message)]
	d.pos = start
	return nil
}

// EncryptWriter wraps a Writer over a message being built for encryption:
// SetHeader marks the unencrypted prefix, Encrypt authenticates and
// encrypts everything written since, appending the MIC. Mirrors the
// original's EncryptWriter.
type EncryptWriter struct {
	*Writer
	aead      *AEAD
	nonce     Nonce
	headerLen int
}

// NewEncryptWriter creates an EncryptWriter with the given buffer capacity.
func NewEncryptWriter(capacity int, aead *AEAD, nonce Nonce) *EncryptWriter {
	return &EncryptWriter{Writer: NewWriter(capacity), aead: aead, nonce: nonce}
}

// SetHeader marks the first n bytes written so far as associated data.
func (e *EncryptWriter) SetHeader(n int) {
	e.headerLen = n
}

// Encrypt encrypts every byte written after the header in place and
// appends a micLength-byte MIC.
func (e *EncryptWriter) Encrypt(micLength int) error {
	written := e.Bytes()
	if e.headerLen > len(written) {
		return ErrShortBuffer
	}
	header := written[:e.headerLen]
	message := written[e.headerLen:]
	mic, err := e.aead.Seal(e.nonce, header, message, micLength)
	if err != nil {
		return err
	}
	e.WriteBytes(mic)
	return nil
}
