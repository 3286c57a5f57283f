// Package sstun implements a shadowsocks tunnel client: an encrypted duplex
// stream over a raw transport connection, and a connection pool that keeps
// pre-established tunnels ready so that request latency does not include
// connect and cipher setup cost.
package sstun

import (
	"errors"
	"io"
	"net"
	"sync"
	"time"
)

// Version is the sstun version.
const Version = "0.2.0"

// Debug is a flag that enables verbose logging.
var Debug bool

var (
	// KeepAliveTime is the keep alive time period for TCP connections.
	KeepAliveTime = 180 * time.Second
	// DialTimeout is the timeout of dialing the raw transport.
	DialTimeout = 5 * time.Second
	// ReadTimeout is the timeout for reading from a tunnel.
	ReadTimeout = 90 * time.Second
	// WriteTimeout is the timeout for writing to a tunnel.
	WriteTimeout = 90 * time.Second
)

var (
	smallBufferSize = 2 * 1024  // 2KB small buffer
	largeBufferSize = 32 * 1024 // 32KB large buffer
)

var (
	sPool = sync.Pool{
		New: func() interface{} {
			return make([]byte, smallBufferSize)
		},
	}
	lPool = sync.Pool{
		New: func() interface{} {
			return make([]byte, largeBufferSize)
		},
	}
)

var (
	// ErrConnDead is returned by any operation on a tunnel whose remote
	// server has been marked dead.
	ErrConnDead = errors.New("connection is dead")
	// ErrAuthFailed is returned when an AEAD chunk fails authentication.
	// The connection must be discarded.
	ErrAuthFailed = errors.New("message authentication failed")
	// ErrCipherNotSupported is returned for an unknown cipher method.
	ErrCipherNotSupported = errors.New("cipher not supported")
	// ErrPoolClosed is returned by Get on a closed pool.
	ErrPoolClosed = errors.New("pool is closed")
)

func setKeepAlive(conn net.Conn, d time.Duration) error {
	c, ok := conn.(*net.TCPConn)
	if !ok {
		return errors.New("not a TCP connection")
	}
	if err := c.SetKeepAlive(true); err != nil {
		return err
	}
	return c.SetKeepAlivePeriod(d)
}

// Transport copies data between rw1 and rw2 in both directions,
// and returns when one direction is done.
func Transport(rw1, rw2 io.ReadWriter) error {
	errc := make(chan error, 1)
	go func() {
		buf := lPool.Get().([]byte)
		defer lPool.Put(buf)

		_, err := io.CopyBuffer(rw1, rw2, buf)
		errc <- err
	}()

	go func() {
		buf := lPool.Get().([]byte)
		defer lPool.Put(buf)

		_, err := io.CopyBuffer(rw2, rw1, buf)
		errc <- err
	}()

	err := <-errc
	if err == io.EOF {
		err = nil
	}
	return err
}
