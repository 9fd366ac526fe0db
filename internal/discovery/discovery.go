// Package discovery advertises the drawing server on the local network
// over mDNS so clients on the same LAN can find it without configuration.
package discovery

import (
	"fmt"
	"net"
	"os"

	"github.com/hashicorp/mdns"
)

const ServiceType = "_canvasroom._tcp"

// Service builds the mDNS record set for a server listening on port. An
// empty host uses the OS hostname; nil ips are looked up from the host.
func Service(instance, host string, port int, ips []net.IP) (*mdns.MDNSService, error) {
	if instance == "" {
		h, err := os.Hostname()
		if err != nil {
			return nil, fmt.Errorf("could not get hostname: %w", err)
		}
		instance = h
	}

	txt := []string{"path=/ws", fmt.Sprintf("port=%d", port)}

	service, err := mdns.NewMDNSService(instance, ServiceType, "", host, port, ips, txt)
	if err != nil {
		return nil, fmt.Errorf("create mdns service: %w", err)
	}
	return service, nil
}

// Advertise starts answering mDNS queries for the server. The caller
// shuts the returned server down.
func Advertise(instance string, port int) (*mdns.Server, error) {
	service, err := Service(instance, "", port, nil)
	if err != nil {
		return nil, err
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return nil, fmt.Errorf("start mdns server: %w", err)
	}
	return server, nil
}
