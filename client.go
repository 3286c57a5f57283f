package sstun

import (
	"crypto/tls"
	"net"
	"time"

	"github.com/go-log/log"
)

// Transporter dials the raw transport connection to the tunnel server.
type Transporter interface {
	Dial(addr string) (net.Conn, error)
}

// tcpTransporter is a raw TCP transporter.
type tcpTransporter struct{}

// TCPTransporter creates a raw TCP transporter.
func TCPTransporter() Transporter {
	return &tcpTransporter{}
}

func (tr *tcpTransporter) Dial(addr string) (net.Conn, error) {
	return net.DialTimeout("tcp", addr, DialTimeout)
}

// tlsTransporter is a TLS transporter.
type tlsTransporter struct {
	config *tls.Config
}

// TLSTransporter creates a TLS over TCP transporter.
func TLSTransporter(config *tls.Config) Transporter {
	return &tlsTransporter{config: config}
}

func (tr *tlsTransporter) Dial(addr string) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: DialTimeout}
	return tls.DialWithDialer(dialer, "tcp", addr, tr.config)
}

// ShadowConnector creates outbound tunnels to one shadowsocks server. All
// tunnels it creates share one liveness flag, so marking the server dead
// fails every pending and future operation on all of them at once.
type ShadowConnector struct {
	node        Node
	cipher      *Cipher
	alive       *AliveFlag
	transporter Transporter
}

// ConnectorOption allows a common way to set ShadowConnector options.
type ConnectorOption func(*ShadowConnector)

// TransporterConnectorOption specifies the raw transport used to reach the
// server. The default is plain TCP.
func TransporterConnectorOption(tr Transporter) ConnectorOption {
	return func(c *ShadowConnector) {
		c.transporter = tr
	}
}

// NewShadowConnector creates a connector for the server node. The node user
// info carries the cipher method and password as method:password.
func NewShadowConnector(node Node, opts ...ConnectorOption) (*ShadowConnector, error) {
	var method, password string
	if node.User != nil {
		method = node.User.Username()
		password, _ = node.User.Password()
	}
	ciph, err := NewCipher(method, password)
	if err != nil {
		return nil, err
	}

	c := &ShadowConnector{
		node:        node,
		cipher:      ciph,
		alive:       NewAliveFlag(),
		transporter: TCPTransporter(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// AliveFlag returns the liveness flag shared by this connector's tunnels.
func (c *ShadowConnector) AliveFlag() *AliveFlag {
	return c.alive
}

// Connect dials the server and announces the destination address target
// through a fresh tunnel. The dial is bounded by DialTimeout and the
// announcement by WriteTimeout.
func (c *ShadowConnector) Connect(target string) (net.Conn, error) {
	conn, err := c.transporter.Dial(c.node.Addr)
	if err != nil {
		log.Logf("[ss] %s : %v", c.node.Addr, err)
		return nil, err
	}

	if err := setKeepAlive(conn, KeepAliveTime); err != nil && Debug {
		log.Logf("[ss] %s : %v", c.node.Addr, err)
	}

	conn.SetWriteDeadline(time.Now().Add(WriteTimeout))
	defer conn.SetWriteDeadline(time.Time{})

	sc, err := ConnectShadow(conn, target, c.cipher, c.alive)
	if err != nil {
		conn.Close()
		log.Logf("[ss] %s -> %s : %v", c.node.Addr, target, err)
		return nil, err
	}
	return sc, nil
}

// Factory returns a ConnFactory producing ready-to-write tunnels announcing
// target, suitable for a ConnPool.
func (c *ShadowConnector) Factory(target string) ConnFactory {
	return func() (net.Conn, error) {
		return c.Connect(target)
	}
}
