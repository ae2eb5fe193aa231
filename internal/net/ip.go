package net

import (
	"fmt"
	"log"
	"net"
)

// OutgoingIP finds the address other machines on the LAN can reach this
// host at.
func OutgoingIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		// Offline networks: fall back to the interfaces.
		return localIPFallback()
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String()
}

func localIPFallback() string {
	ip := firstIPv4()
	if ip.IsLoopback() {
		log.Println("[http] No LAN address found, share link uses loopback")
	}
	return ip.String()
}

// ShareURL is the link other devices on the network open to reach the
// server.
func ShareURL(port int) string {
	return fmt.Sprintf("http://%s/api", net.JoinHostPort(OutgoingIP(), fmt.Sprint(port)))
}
