package main

import "net"

// listenTCP is the shared listener setup every start-* daemon command uses.
func listenTCP(addr string) (net.Listener, error) {
	return net.Listen("tcp", addr)
}
