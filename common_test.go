package sstun

import (
	"io"
	"net"
	"testing"
	"time"
)

func init() {
	// SetLogger(&LogLogger{})
	// Debug = true
	DialTimeout = 1000 * time.Millisecond
	ReadTimeout = 1000 * time.Millisecond
	WriteTimeout = 1000 * time.Millisecond
}

// ssEchoServer accepts shadowsocks tunnels, reads the announced destination
// address and echoes everything back.
type ssEchoServer struct {
	ln     net.Listener
	cipher *Cipher
	addrs  chan string // announced destination addresses
}

func newSSEchoServer(ciph *Cipher) (*ssEchoServer, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	return &ssEchoServer{
		ln:     ln,
		cipher: ciph,
		addrs:  make(chan string, 16),
	}, nil
}

func (s *ssEchoServer) Start() {
	go s.serve()
}

func (s *ssEchoServer) serve() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		go func() {
			defer conn.Close()

			sc, err := AcceptShadow(conn, s.cipher)
			if err != nil {
				return
			}
			addr, err := ReadAddr(sc)
			if err != nil {
				return
			}
			select {
			case s.addrs <- addr.String():
			default:
			}
			io.Copy(sc, sc)
		}()
	}
}

func (s *ssEchoServer) Addr() string {
	return s.ln.Addr().String()
}

func (s *ssEchoServer) Close() error {
	return s.ln.Close()
}

// dialEcho connects a tunnel to the echo server announcing target.
func dialEcho(s *ssEchoServer, target string, ciph *Cipher, alive *AliveFlag) (*ShadowConn, error) {
	conn, err := net.DialTimeout("tcp", s.Addr(), DialTimeout)
	if err != nil {
		return nil, err
	}
	sc, err := ConnectShadow(conn, target, ciph, alive)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return sc, nil
}

// waitFor polls cond until it holds or the timeout expires.
func waitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

func roundtrip(t *testing.T, method, target string, data []byte) {
	ciph, err := NewCipher(method, "123456")
	if err != nil {
		t.Fatal(err)
	}
	srv, err := newSSEchoServer(ciph)
	if err != nil {
		t.Fatal(err)
	}
	defer srv.Close()
	srv.Start()

	conn, err := dialEcho(srv, target, ciph, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	if _, err := conn.Write(data); err != nil {
		t.Fatal(err)
	}

	got := make([]byte, len(data))
	if _, err := io.ReadFull(conn, got); err != nil {
		t.Fatal(err)
	}
	for i := range got {
		if got[i] != data[i] {
			t.Fatalf("%s: data mismatch at %d", method, i)
		}
	}

	select {
	case addr := <-srv.addrs:
		if addr != target {
			t.Errorf("%s: announced address %s, want %s", method, addr, target)
		}
	case <-time.After(time.Second):
		t.Errorf("%s: no announced address", method)
	}
}
