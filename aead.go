package sstun

import (
	"crypto/cipher"
	"io"
)

// Chunk format of the shadowsocks AEAD protocol:
//
//	[sealed payload length][length tag][sealed payload][payload tag]
//
// Payload length is a 2-byte big-endian unsigned integer capped at 0x3FFF.
// The first seal/open uses a zero nonce; after every seal/open the nonce is
// incremented by one as if it were an unsigned little-endian integer.
const payloadSizeMask = 0x3FFF

// aeadWriter seals plaintext into discrete authenticated chunks. The local
// salt is sent in front of the first chunk.
type aeadWriter struct {
	w     io.Writer
	aead  cipher.AEAD
	nonce []byte
	buf   []byte
	salt  []byte // pending, written before the first chunk
}

func newAEADWriter(w io.Writer, ciph *Cipher, salt []byte) (*aeadWriter, error) {
	aead, err := ciph.aead.Encrypter(salt)
	if err != nil {
		return nil, err
	}
	pending := make([]byte, len(salt))
	copy(pending, salt)
	return &aeadWriter{
		w:     w,
		aead:  aead,
		nonce: make([]byte, aead.NonceSize()),
		buf:   make([]byte, 2+aead.Overhead()+payloadSizeMask+aead.Overhead()),
		salt:  pending,
	}, nil
}

func (w *aeadWriter) Write(b []byte) (n int, err error) {
	for n < len(b) {
		nn := len(b) - n
		if nn > payloadSizeMask {
			nn = payloadSizeMask
		}
		if err = w.writeChunk(b[n : n+nn]); err != nil {
			return
		}
		n += nn
	}
	return
}

func (w *aeadWriter) writeChunk(p []byte) error {
	buf := w.buf
	buf[0], buf[1] = byte(len(p)>>8), byte(len(p))
	w.aead.Seal(buf[:0], w.nonce, buf[:2], nil)
	increment(w.nonce)

	off := 2 + w.aead.Overhead()
	w.aead.Seal(buf[off:off], w.nonce, p, nil)
	increment(w.nonce)

	out := buf[:off+len(p)+w.aead.Overhead()]
	if len(w.salt) > 0 {
		// salt and first chunk go out in a single write
		combined := make([]byte, 0, len(w.salt)+len(out))
		combined = append(combined, w.salt...)
		combined = append(combined, out...)
		w.salt = nil
		_, err := w.w.Write(combined)
		return err
	}
	_, err := w.w.Write(out)
	return err
}

// aeadReader opens discrete authenticated chunks. A partial chunk is
// buffered until complete; decrypted payload that does not fit the caller's
// buffer is retained for the next read.
type aeadReader struct {
	r        io.Reader
	aead     cipher.AEAD
	nonce    []byte
	buf      []byte
	leftover []byte
}

func newAEADReader(r io.Reader, ciph *Cipher, salt []byte) (*aeadReader, error) {
	aead, err := ciph.aead.Decrypter(salt)
	if err != nil {
		return nil, err
	}
	return &aeadReader{
		r:     r,
		aead:  aead,
		nonce: make([]byte, aead.NonceSize()),
		buf:   make([]byte, payloadSizeMask+aead.Overhead()),
	}, nil
}

// read reads one chunk into r.buf and returns the payload length.
// An authentication failure is fatal to the connection, never retried.
func (r *aeadReader) read() (int, error) {
	buf := r.buf[:2+r.aead.Overhead()]
	if _, err := io.ReadFull(r.r, buf); err != nil {
		return 0, err
	}
	if _, err := r.aead.Open(buf[:0], r.nonce, buf, nil); err != nil {
		return 0, ErrAuthFailed
	}
	increment(r.nonce)

	size := (int(buf[0])<<8 + int(buf[1])) & payloadSizeMask

	buf = r.buf[:size+r.aead.Overhead()]
	if _, err := io.ReadFull(r.r, buf); err != nil {
		return 0, err
	}
	if _, err := r.aead.Open(buf[:0], r.nonce, buf, nil); err != nil {
		return 0, ErrAuthFailed
	}
	increment(r.nonce)

	return size, nil
}

func (r *aeadReader) Read(b []byte) (int, error) {
	if len(r.leftover) > 0 {
		n := copy(b, r.leftover)
		r.leftover = r.leftover[n:]
		return n, nil
	}

	n, err := r.read()
	if err != nil {
		return 0, err
	}
	m := copy(b, r.buf[:n])
	if m < n { // insufficient len(b), keep leftover for next read
		r.leftover = r.buf[m:n]
	}
	return m, nil
}

// increment a little-endian unsigned integer.
func increment(b []byte) {
	for i := range b {
		b[i]++
		if b[i] != 0 {
			return
		}
	}
}
