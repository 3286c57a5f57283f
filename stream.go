package sstun

import (
	"crypto/cipher"
	"io"
)

// streamReader decrypts with a running keystream. There is no framing, any
// read granularity is allowed.
type streamReader struct {
	r io.Reader
	s cipher.Stream
}

func newStreamReader(r io.Reader, ciph *Cipher, iv []byte) *streamReader {
	return &streamReader{
		r: r,
		s: ciph.stream.Decrypter(iv),
	}
}

func (r *streamReader) Read(b []byte) (int, error) {
	n, err := r.r.Read(b)
	if n > 0 {
		r.s.XORKeyStream(b[:n], b[:n])
	}
	return n, err
}

// streamWriter encrypts with a running keystream. The local IV is sent in
// front of the first chunk of ciphertext.
type streamWriter struct {
	w  io.Writer
	s  cipher.Stream
	iv []byte // pending, written before the first chunk
}

func newStreamWriter(w io.Writer, ciph *Cipher, iv []byte) *streamWriter {
	pending := make([]byte, len(iv))
	copy(pending, iv)
	return &streamWriter{
		w:  w,
		s:  ciph.stream.Encrypter(iv),
		iv: pending,
	}
}

func (w *streamWriter) Write(b []byte) (n int, err error) {
	buf := lPool.Get().([]byte)
	defer lPool.Put(buf)

	for n < len(b) {
		hdr := len(w.iv)
		nn := len(b) - n
		if nn > len(buf)-hdr {
			nn = len(buf) - hdr
		}

		cbuf := buf[:hdr+nn]
		copy(cbuf, w.iv)
		w.s.XORKeyStream(cbuf[hdr:], b[n:n+nn])

		if _, err = w.w.Write(cbuf); err != nil {
			return
		}
		w.iv = nil
		n += nn
	}
	return
}
