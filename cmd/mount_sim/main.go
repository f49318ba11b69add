// Command mount_sim serves a simulated SynScan hand controller on a TCP
// port, for use with mountd's tcp: addresses.
package main

import (
	"context"
	"flag"
	"log"
	"net"

	"github.com/openastro/mount_interface/synscan"
)

var listenAddr = flag.String("listen", "127.0.0.1:4030", "listen address")

func main() {
	flag.Parse()
	ln, err := net.Listen("tcp", *listenAddr)
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("simulator listening on %s", *listenAddr)
	for {
		conn, err := ln.Accept()
		if err != nil {
			log.Printf("failed to accept: %v", err)
			continue
		}
		log.Printf("accepted connection from %v", conn.RemoteAddr())
		sim := synscan.NewSimulatorConn(conn)
		go func() {
			if err := sim.Run(context.Background()); err != nil {
				log.Printf("simulator session ended: %v", err)
			}
		}()
	}
}
