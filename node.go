package sstun

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Node is a shadowsocks server node.
type Node struct {
	Addr   string
	User   *url.Userinfo
	Values url.Values
}

// ParseNode parses the node info.
// The node string pattern is ss://method:password@host:port[?key=value].
func ParseNode(s string) (node Node, err error) {
	if !strings.Contains(s, "://") {
		s = "ss://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return
	}
	if u.Scheme != "ss" {
		err = fmt.Errorf("unsupported scheme %q", u.Scheme)
		return
	}

	node = Node{
		Addr:   u.Host,
		User:   u.User,
		Values: u.Query(),
	}
	return
}

func (node *Node) String() string {
	return node.Addr
}

// Get returns the node parameter specified by key.
func (node *Node) Get(key string) string {
	return node.Values.Get(key)
}

// GetInt converts the node parameter into an integer.
func (node *Node) GetInt(key string) int {
	n, _ := strconv.Atoi(node.Values.Get(key))
	return n
}

// GetDuration converts the node parameter into a time duration.
// A bare number is interpreted as seconds.
func (node *Node) GetDuration(key string) time.Duration {
	d, err := time.ParseDuration(node.Values.Get(key))
	if err != nil {
		d = time.Duration(node.GetInt(key)) * time.Second
	}
	return d
}
