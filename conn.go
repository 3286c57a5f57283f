package sstun

import (
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/go-gost/gosocks5"
	"github.com/go-log/log"
)

// AliveFlag is a liveness flag shared by every tunnel to one server. Once
// set dead, all pending and future operations on those tunnels fail
// immediately with ErrConnDead, without touching the transport.
type AliveFlag struct {
	v int32
}

// NewAliveFlag creates an AliveFlag in the alive state.
func NewAliveFlag() *AliveFlag {
	return &AliveFlag{v: 1}
}

// Alive reports whether the flag is still alive.
func (f *AliveFlag) Alive() bool {
	return atomic.LoadInt32(&f.v) != 0
}

// Set marks the flag alive or dead.
func (f *AliveFlag) Set(alive bool) {
	var v int32
	if alive {
		v = 1
	}
	atomic.StoreInt32(&f.v, v)
}

// handshake status of the read side
const (
	statusWaitIV = iota
	statusEstablished
)

// ShadowConn is a duplex encrypted tunnel connection. The write side is
// ready from construction; the read side is initialized lazily on the first
// read, once the peer's IV (or salt) has been received. Read and write paths
// are serialized independently and do not block each other.
type ShadowConn struct {
	net.Conn
	cipher *Cipher
	alive  *AliveFlag

	rmu    sync.Mutex // guards status, ivBuf, ivPos, dec
	status int
	ivBuf  []byte
	ivPos  int
	dec    io.Reader

	wmu sync.Mutex // guards enc
	enc io.Writer
}

func newShadowConn(conn net.Conn, ciph *Cipher, alive *AliveFlag) (*ShadowConn, error) {
	iv, err := ciph.GenIV()
	if err != nil {
		return nil, err
	}
	if Debug {
		log.Logf("[ss] generated local %s cipher IV %x", ciph.Category(), iv)
	}

	var enc io.Writer
	switch ciph.Category() {
	case CipherAEAD:
		enc, err = newAEADWriter(conn, ciph, iv)
		if err != nil {
			return nil, err
		}
	default:
		enc = newStreamWriter(conn, ciph, iv)
	}

	return &ShadowConn{
		Conn:   conn,
		cipher: ciph,
		alive:  alive,
		status: statusWaitIV,
		ivBuf:  make([]byte, ciph.IVLen()),
		enc:    enc,
	}, nil
}

// ConnectShadow wraps conn in outbound mode: it generates a local IV (or
// salt), builds the write-side encryptor, and announces the destination
// address target as the first ciphertext payload before returning. The
// first bytes delivered to the transport are the local IV followed by the
// encrypted address descriptor.
func ConnectShadow(conn net.Conn, target string, ciph *Cipher, alive *AliveFlag) (*ShadowConn, error) {
	if alive == nil {
		alive = NewAliveFlag()
	}
	sc, err := newShadowConn(conn, ciph, alive)
	if err != nil {
		return nil, err
	}

	addr, err := gosocks5.NewAddr(target)
	if err != nil {
		return nil, err
	}
	buf := sPool.Get().([]byte)
	defer sPool.Put(buf)
	n, err := addr.Encode(buf)
	if err != nil {
		return nil, err
	}
	if _, err := sc.Write(buf[:n]); err != nil {
		return nil, err
	}
	return sc, nil
}

// AcceptShadow wraps an already-accepted conn in inbound mode. No address is
// announced; the peer's destination address arrives as the first plaintext
// bytes and can be read with ReadAddr.
func AcceptShadow(conn net.Conn, ciph *Cipher) (*ShadowConn, error) {
	return newShadowConn(conn, ciph, NewAliveFlag())
}

// readHandshake fills the expected peer IV (or salt) and constructs the
// decrypted reader, transitioning to the established state exactly once.
// The fill is resumable: a partial fill, e.g. after a read deadline, picks
// up where it left off on the next read. Must be called with rmu held.
func (c *ShadowConn) readHandshake() error {
	if c.status == statusEstablished {
		return nil
	}

	for c.ivPos < len(c.ivBuf) {
		n, err := c.Conn.Read(c.ivBuf[c.ivPos:])
		c.ivPos += n
		if err != nil {
			if err == io.EOF {
				// peer closed before completing the handshake
				err = io.ErrUnexpectedEOF
			}
			return err
		}
	}
	if Debug {
		log.Logf("[ss] got peer %s cipher IV %x", c.cipher.Category(), c.ivBuf)
	}

	var err error
	switch c.cipher.Category() {
	case CipherAEAD:
		c.dec, err = newAEADReader(c.Conn, c.cipher, c.ivBuf)
	default:
		c.dec = newStreamReader(c.Conn, c.cipher, c.ivBuf)
	}
	if err != nil {
		return err
	}

	c.status = statusEstablished
	return nil
}

func (c *ShadowConn) Read(b []byte) (int, error) {
	if !c.alive.Alive() {
		return 0, ErrConnDead
	}

	c.rmu.Lock()
	defer c.rmu.Unlock()

	if err := c.readHandshake(); err != nil {
		return 0, err
	}
	return c.dec.Read(b)
}

func (c *ShadowConn) Write(b []byte) (int, error) {
	if !c.alive.Alive() {
		return 0, ErrConnDead
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()

	return c.enc.Write(b)
}

func (c *ShadowConn) Close() error {
	if !c.alive.Alive() {
		return ErrConnDead
	}
	return c.Conn.Close()
}

// ReadAddr reads the destination address descriptor announced by an
// outbound peer, the first plaintext bytes of an accepted tunnel.
func ReadAddr(r io.Reader) (*gosocks5.Addr, error) {
	buf := sPool.Get().([]byte)
	defer sPool.Put(buf)

	if _, err := io.ReadFull(r, buf[:1]); err != nil {
		return nil, err
	}

	pos := 1
	var length int
	switch buf[0] {
	case gosocks5.AddrIPv4:
		length = 1 + net.IPv4len + 2
	case gosocks5.AddrIPv6:
		length = 1 + net.IPv6len + 2
	case gosocks5.AddrDomain:
		if _, err := io.ReadFull(r, buf[1:2]); err != nil {
			return nil, err
		}
		pos = 2
		length = 2 + int(buf[1]) + 2
	default:
		return nil, fmt.Errorf("addr type %d not supported", buf[0])
	}

	if _, err := io.ReadFull(r, buf[pos:length]); err != nil {
		return nil, err
	}

	addr := &gosocks5.Addr{}
	if err := addr.Decode(buf[:length]); err != nil {
		return nil, err
	}
	return addr, nil
}
