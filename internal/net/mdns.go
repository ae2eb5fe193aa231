package net

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/hashicorp/mdns"
)

// ServiceType is the DNS-SD type SignFlow announces.
const ServiceType = "_signflow._tcp"

// Advertise announces a SignFlow server on the local network until the
// returned server is shut down.
func Advertise(instance string, port int) (*mdns.Server, error) {
	host, err := os.Hostname()
	if err != nil {
		return nil, fmt.Errorf("could not get hostname: %w", err)
	}
	if instance == "" {
		instance = host
	}

	service, err := mdns.NewMDNSService(
		instance,
		ServiceType,
		"", // .local
		"", // OS hostname
		port,
		[]net.IP{firstIPv4()},
		[]string{"SignFlow", "path=/api"},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return nil, fmt.Errorf("failed to start mDNS server: %w", err)
	}
	return server, nil
}

// Peer is a SignFlow server found on the network.
type Peer struct {
	Name string
	Addr string
}

// Browse looks for SignFlow servers for the given time and reports each
// one to found.
func Browse(timeout time.Duration, found func(Peer)) error {
	entries := make(chan *mdns.ServiceEntry, 8)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range entries {
			if addr, ok := entryAddr(e); ok {
				found(Peer{Name: e.Name, Addr: addr})
			}
		}
	}()

	params := mdns.DefaultParams(ServiceType)
	params.Entries = entries
	params.Timeout = timeout
	params.DisableIPv6 = true
	err := mdns.Query(params)
	close(entries)
	<-done
	return err
}

func entryAddr(e *mdns.ServiceEntry) (string, bool) {
	if e == nil || e.AddrV4 == nil || e.Port == 0 {
		return "", false
	}
	return net.JoinHostPort(e.AddrV4.String(), fmt.Sprint(e.Port)), true
}

// firstIPv4 returns the first address of an interface that is up and not
// loopback.
func firstIPv4() net.IP {
	ifaces, _ := net.Interfaces()
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, _ := iface.Addrs()
		for _, a := range addrs {
			if ipnet, ok := a.(*net.IPNet); ok && ipnet.IP.To4() != nil {
				return ipnet.IP.To4()
			}
		}
	}
	return net.IPv4(127, 0, 0, 1)
}
