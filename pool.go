package sstun

import (
	"net"
	"sync"
	"time"

	"github.com/go-log/log"
)

// ConnFactory creates a new ready-to-write tunnel connection. It is safe to
// call concurrently and repeatedly, and is expected to apply its own
// connect/read/write timeouts.
type ConnFactory func() (net.Conn, error)

// ConnPool keeps a bounded queue of pre-established idle tunnels so that
// request latency does not include connect and cipher setup cost. The queue
// only grows through the factory: a connection handed out by Get is not
// returned, the refill loop replaces it with a fresh one.
type ConnPool struct {
	maxIdle int
	factory ConnFactory

	mu     sync.Mutex // guards idle and closed
	idle   []net.Conn // front is the oldest, popped first
	closed bool

	signal chan struct{}
}

// NewConnPool creates a pool keeping up to maxIdle idle connections,
// created by factory. Call Run to start the refill loop.
func NewConnPool(maxIdle int, factory ConnFactory) *ConnPool {
	return &ConnPool{
		maxIdle: maxIdle,
		factory: factory,
		idle:    make([]net.Conn, 0, maxIdle),
		signal:  make(chan struct{}, 1),
	}
}

// Run tops up the idle queue to the maximum, then blocks until a refill
// signal arrives, and repeats. A failed creation attempt is logged and
// skipped, never fatal to the loop. Run returns after Close.
func (p *ConnPool) Run() {
	for {
		for i := p.Size(); i < p.maxIdle; i++ {
			conn, err := p.newConn()
			if err != nil {
				continue
			}
			if !p.put(conn) {
				conn.Close()
			}
		}
		if _, ok := <-p.signal; !ok {
			return
		}
	}
}

// Get pops the oldest idle connection, or creates one synchronously when
// the queue is empty, and signals the refill loop either way.
func (p *ConnPool) Get() (net.Conn, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	var conn net.Conn
	if len(p.idle) > 0 {
		conn = p.idle[0]
		p.idle = p.idle[1:]
	}
	p.mu.Unlock()

	var err error
	if conn == nil {
		conn, err = p.newConn()
	}
	if Debug {
		log.Logf("[pool] size: %d", p.Size())
	}
	p.wake()
	return conn, err
}

// Size returns the current idle queue length. Advisory only.
func (p *ConnPool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle)
}

// Close stops the refill loop and closes all idle connections.
func (p *ConnPool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	idle := p.idle
	p.idle = nil
	close(p.signal)
	p.mu.Unlock()

	for _, conn := range idle {
		conn.Close()
	}
	return nil
}

func (p *ConnPool) newConn() (net.Conn, error) {
	start := time.Now()
	conn, err := p.factory()
	if err != nil {
		log.Logf("[pool] new connection: %v", err)
		return nil, err
	}
	if Debug {
		log.Logf("[pool] new connection in %v", time.Since(start))
	}
	return conn, nil
}

func (p *ConnPool) put(conn net.Conn) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || len(p.idle) >= p.maxIdle {
		return false
	}
	p.idle = append(p.idle, conn)
	return true
}

// wake sends a best-effort refill signal; signals coalesce.
func (p *ConnPool) wake() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	select {
	case p.signal <- struct{}{}:
	default:
	}
}
