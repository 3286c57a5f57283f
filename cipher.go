package sstun

import (
	"crypto/md5"
	"crypto/rand"
	"errors"
	"sort"
	"strings"

	"github.com/shadowsocks/go-shadowsocks2/shadowaead"
	"github.com/shadowsocks/go-shadowsocks2/shadowstream"
)

// CipherCategory is the category of a cipher method.
type CipherCategory int

const (
	// CipherStream is a running keystream cipher; no framing,
	// no per-message authentication.
	CipherStream CipherCategory = iota
	// CipherAEAD is an authenticated cipher operating on sealed chunks.
	CipherAEAD
)

func (c CipherCategory) String() string {
	if c == CipherAEAD {
		return "aead"
	}
	return "stream"
}

type cipherSpec struct {
	category  CipherCategory
	keySize   int
	newStream func(key []byte) (shadowstream.Cipher, error)
	newAEAD   func(key []byte) (shadowaead.Cipher, error)
}

var cipherSpecs = map[string]*cipherSpec{
	"aes-128-ctr":   {CipherStream, 16, shadowstream.AESCTR, nil},
	"aes-192-ctr":   {CipherStream, 24, shadowstream.AESCTR, nil},
	"aes-256-ctr":   {CipherStream, 32, shadowstream.AESCTR, nil},
	"aes-128-cfb":   {CipherStream, 16, shadowstream.AESCFB, nil},
	"aes-192-cfb":   {CipherStream, 24, shadowstream.AESCFB, nil},
	"aes-256-cfb":   {CipherStream, 32, shadowstream.AESCFB, nil},
	"chacha20-ietf": {CipherStream, 32, shadowstream.Chacha20IETF, nil},
	"xchacha20":     {CipherStream, 32, shadowstream.Xchacha20, nil},

	"aes-128-gcm":            {CipherAEAD, 16, nil, shadowaead.AESGCM},
	"aes-192-gcm":            {CipherAEAD, 24, nil, shadowaead.AESGCM},
	"aes-256-gcm":            {CipherAEAD, 32, nil, shadowaead.AESGCM},
	"chacha20-ietf-poly1305": {CipherAEAD, 32, nil, shadowaead.Chacha20Poly1305},
}

// ListCiphers returns the supported cipher methods sorted alphabetically.
func ListCiphers() []string {
	var l []string
	for k := range cipherSpecs {
		l = append(l, k)
	}
	sort.Strings(l)
	return l
}

// Cipher is the cipher method and derived key shared by both directions of a
// tunnel. The key is derived from the password once and is immutable; the
// cipher method is a connection-wide constant, both endpoints must be
// configured with the same one.
type Cipher struct {
	name     string
	category CipherCategory
	key      []byte
	stream   shadowstream.Cipher
	aead     shadowaead.Cipher
}

// NewCipher creates a Cipher with the given method name, deriving the key
// from password.
func NewCipher(method, password string) (*Cipher, error) {
	name := strings.ToLower(method)
	spec, ok := cipherSpecs[name]
	if !ok {
		return nil, ErrCipherNotSupported
	}
	if password == "" {
		return nil, errors.New("empty password")
	}

	c := &Cipher{
		name:     name,
		category: spec.category,
		key:      kdf(password, spec.keySize),
	}

	var err error
	switch spec.category {
	case CipherAEAD:
		c.aead, err = spec.newAEAD(c.key)
	default:
		c.stream, err = spec.newStream(c.key)
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Name returns the cipher method name.
func (c *Cipher) Name() string {
	return c.name
}

// Category returns the cipher category.
func (c *Cipher) Category() CipherCategory {
	return c.category
}

// KeySize returns the derived key size in bytes.
func (c *Cipher) KeySize() int {
	return len(c.key)
}

// IVLen returns the length of the per-connection prefix exchanged during
// handshake: the IV size for stream ciphers, the salt size for AEAD ciphers.
func (c *Cipher) IVLen() int {
	if c.category == CipherAEAD {
		return c.aead.SaltSize()
	}
	return c.stream.IVSize()
}

// GenIV generates a fresh random IV (or salt) for the outgoing direction.
func (c *Cipher) GenIV() ([]byte, error) {
	iv := make([]byte, c.IVLen())
	if _, err := rand.Read(iv); err != nil {
		return nil, err
	}
	return iv, nil
}

// key-derivation function from original Shadowsocks
func kdf(password string, keyLen int) []byte {
	var b, prev []byte
	h := md5.New()
	for len(b) < keyLen {
		h.Write(prev)
		h.Write([]byte(password))
		b = h.Sum(b)
		prev = b[len(b)-h.Size():]
		h.Reset()
	}
	return b[:keyLen]
}
