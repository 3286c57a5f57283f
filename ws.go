package sstun

import (
	"crypto/tls"
	"net"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
)

// WSOptions describes the options for the websocket transporter.
type WSOptions struct {
	Path              string
	TLSConfig         *tls.Config // enables wss when set
	ReadBufferSize    int
	WriteBufferSize   int
	EnableCompression bool
}

// wsConn adapts a websocket connection to net.Conn.
type wsConn struct {
	*websocket.Conn
	rb []byte
}

func (c *wsConn) Read(b []byte) (n int, err error) {
	if len(c.rb) == 0 {
		_, c.rb, err = c.ReadMessage()
	}
	n = copy(b, c.rb)
	c.rb = c.rb[n:]
	return
}

func (c *wsConn) Write(b []byte) (n int, err error) {
	err = c.WriteMessage(websocket.BinaryMessage, b)
	n = len(b)
	return
}

func (c *wsConn) SetDeadline(t time.Time) error {
	if err := c.SetReadDeadline(t); err != nil {
		return err
	}
	return c.SetWriteDeadline(t)
}

// wsTransporter is a websocket transporter.
type wsTransporter struct {
	options *WSOptions
}

// WSTransporter creates a websocket transporter.
func WSTransporter(opts *WSOptions) Transporter {
	if opts == nil {
		opts = &WSOptions{}
	}
	return &wsTransporter{options: opts}
}

func (tr *wsTransporter) Dial(addr string) (net.Conn, error) {
	opts := tr.options

	path := opts.Path
	if path == "" {
		path = "/ws"
	}
	scheme := "ws"
	if opts.TLSConfig != nil {
		scheme = "wss"
	}
	u := url.URL{Scheme: scheme, Host: addr, Path: path}

	dialer := websocket.Dialer{
		ReadBufferSize:    opts.ReadBufferSize,
		WriteBufferSize:   opts.WriteBufferSize,
		TLSClientConfig:   opts.TLSConfig,
		HandshakeTimeout:  DialTimeout,
		EnableCompression: opts.EnableCompression,
	}

	conn, resp, err := dialer.Dial(u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp.Body.Close()

	return &wsConn{Conn: conn}, nil
}
