package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"runtime"

	"github.com/ginuerzh/sstun"
	"github.com/go-log/log"
)

var (
	options struct {
		listenAddr  string
		forwardAddr string
		serverNode  string
		idle        int
		debugMode   bool
	}
)

func init() {
	var printVersion bool

	flag.StringVar(&options.listenAddr, "L", ":8338", "local listen address")
	flag.StringVar(&options.forwardAddr, "F", "", "forward destination address (host:port)")
	flag.StringVar(&options.serverNode, "S", "", "server node, e.g. ss://chacha20-ietf:secret@1.2.3.4:8488")
	flag.IntVar(&options.idle, "idle", 2, "number of pre-established idle tunnels")
	flag.BoolVar(&options.debugMode, "D", false, "enable debug log")
	flag.BoolVar(&printVersion, "V", false, "print version")
	flag.Parse()

	if printVersion {
		fmt.Fprintf(os.Stderr, "sstun %s (%s)\n", sstun.Version, runtime.Version())
		os.Exit(0)
	}

	if options.forwardAddr == "" || options.serverNode == "" {
		flag.PrintDefaults()
		os.Exit(0)
	}

	sstun.SetLogger(&sstun.LogLogger{})
	sstun.Debug = options.debugMode
}

func main() {
	node, err := sstun.ParseNode(options.serverNode)
	if err != nil {
		log.Log("[sstun]", err)
		os.Exit(1)
	}
	connector, err := sstun.NewShadowConnector(node)
	if err != nil {
		log.Log("[sstun]", err)
		os.Exit(1)
	}

	idle := options.idle
	if n := node.GetInt("idle"); n > 0 {
		idle = n
	}
	pool := sstun.NewConnPool(idle, connector.Factory(options.forwardAddr))
	go pool.Run()
	defer pool.Close()

	ln, err := net.Listen("tcp", options.listenAddr)
	if err != nil {
		log.Log("[sstun]", err)
		os.Exit(1)
	}
	log.Logf("[sstun] %s on %s, %s -> %s", sstun.Version, options.listenAddr, node.Addr, options.forwardAddr)

	for {
		conn, err := ln.Accept()
		if err != nil {
			log.Log("[sstun]", err)
			continue
		}
		go handle(conn, pool)
	}
}

func handle(conn net.Conn, pool *sstun.ConnPool) {
	defer conn.Close()

	tunnel, err := pool.Get()
	if err != nil {
		log.Log("[sstun]", err)
		return
	}
	defer tunnel.Close()

	if sstun.Debug {
		log.Logf("[sstun] %s <-> %s", conn.RemoteAddr(), tunnel.RemoteAddr())
	}
	if err := sstun.Transport(conn, tunnel); err != nil && sstun.Debug {
		log.Logf("[sstun] %s >-< %s : %v", conn.RemoteAddr(), tunnel.RemoteAddr(), err)
	}
}
