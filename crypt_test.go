package sstun

import (
	"bytes"
	"crypto/rand"
	"io"
	"testing"
)

// encrypt b into a buffer with the write-side encryptor of ciph,
// returning the raw bytes as they would appear on the wire.
func encryptToWire(t *testing.T, ciph *Cipher, iv, b []byte) []byte {
	var wire bytes.Buffer
	var w io.Writer
	var err error
	switch ciph.Category() {
	case CipherAEAD:
		w, err = newAEADWriter(&wire, ciph, iv)
		if err != nil {
			t.Fatal(err)
		}
	default:
		w = newStreamWriter(&wire, ciph, iv)
	}
	if _, err := w.Write(b); err != nil {
		t.Fatal(err)
	}
	return wire.Bytes()
}

func decryptFromWire(ciph *Cipher, wire []byte) ([]byte, error) {
	ivLen := ciph.IVLen()
	if len(wire) < ivLen {
		return nil, io.ErrUnexpectedEOF
	}
	iv, body := wire[:ivLen], wire[ivLen:]

	var r io.Reader
	var err error
	switch ciph.Category() {
	case CipherAEAD:
		r, err = newAEADReader(bytes.NewReader(body), ciph, iv)
		if err != nil {
			return nil, err
		}
	default:
		r = newStreamReader(bytes.NewReader(body), ciph, iv)
	}
	return io.ReadAll(r)
}

func TestCryptRoundtrip(t *testing.T) {
	lengths := []int{1, 16, 1000, payloadSizeMask, payloadSizeMask + 1, 3*payloadSizeMask + 100}

	for _, tc := range cipherTests {
		ciph, err := NewCipher(tc.method, "123456")
		if err != nil {
			t.Fatal(err)
		}
		for _, n := range lengths {
			data := make([]byte, n)
			if _, err := rand.Read(data); err != nil {
				t.Fatal(err)
			}

			iv, err := ciph.GenIV()
			if err != nil {
				t.Fatal(err)
			}
			wire := encryptToWire(t, ciph, iv, data)
			if !bytes.Equal(wire[:len(iv)], iv) {
				t.Fatalf("%s: wire does not start with the IV", tc.method)
			}

			got, err := decryptFromWire(ciph, wire)
			if err != nil && err != io.EOF {
				t.Fatalf("%s/%d: %v", tc.method, n, err)
			}
			if !bytes.Equal(got, data) {
				t.Fatalf("%s/%d: plaintext mismatch", tc.method, n)
			}
		}
	}
}

func TestAEADAuthFailure(t *testing.T) {
	ciph, err := NewCipher("chacha20-ietf-poly1305", "123456")
	if err != nil {
		t.Fatal(err)
	}

	data := make([]byte, 1024)
	if _, err := rand.Read(data); err != nil {
		t.Fatal(err)
	}
	iv, err := ciph.GenIV()
	if err != nil {
		t.Fatal(err)
	}
	wire := encryptToWire(t, ciph, iv, data)

	// corrupt one ciphertext byte past the salt
	for _, pos := range []int{len(iv), len(wire) - 1} {
		corrupted := make([]byte, len(wire))
		copy(corrupted, wire)
		corrupted[pos] ^= 0x01

		got, err := decryptFromWire(ciph, corrupted)
		if err != ErrAuthFailed {
			t.Errorf("corrupt byte %d: got %v, want %v", pos, err, ErrAuthFailed)
		}
		if bytes.Equal(got, data) {
			t.Errorf("corrupt byte %d: corrupted wire decrypted to original plaintext", pos)
		}
	}
}

func TestAEADNonceIncrement(t *testing.T) {
	b := []byte{0x00, 0x00}
	increment(b)
	if !bytes.Equal(b, []byte{0x01, 0x00}) {
		t.Errorf("got %v", b)
	}
	b = []byte{0xff, 0x00}
	increment(b)
	if !bytes.Equal(b, []byte{0x00, 0x01}) {
		t.Errorf("got %v", b)
	}
	b = []byte{0xff, 0xff}
	increment(b)
	if !bytes.Equal(b, []byte{0x00, 0x00}) {
		t.Errorf("got %v", b)
	}
}

func TestStreamReaderShortReads(t *testing.T) {
	ciph, err := NewCipher("aes-256-ctr", "123456")
	if err != nil {
		t.Fatal(err)
	}
	data := make([]byte, 4096)
	if _, err := rand.Read(data); err != nil {
		t.Fatal(err)
	}
	iv, err := ciph.GenIV()
	if err != nil {
		t.Fatal(err)
	}
	wire := encryptToWire(t, ciph, iv, data)

	r := newStreamReader(iotest{bytes.NewReader(wire[len(iv):]), 7}, ciph, iv)
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Fatal("plaintext mismatch over short reads")
	}
}

// iotest limits every read to at most n bytes.
type iotest struct {
	r io.Reader
	n int
}

func (r iotest) Read(b []byte) (int, error) {
	if len(b) > r.n {
		b = b[:r.n]
	}
	return r.r.Read(b)
}
