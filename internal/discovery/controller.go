package discovery

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// Controller is a UniFi console found on the local network.
type Controller struct {
	// Name is the mDNS instance name (e.g. "UDM-Pro")
	Name string

	// Hostname is the mDNS hostname (e.g. "udm-pro.local.")
	Hostname string

	// IP is the preferred address, IPv4 when available
	IP string

	// Port is the advertised port
	Port int

	// Service is the mDNS service type the console answered on
	Service string

	// Metadata contains the TXT record data
	Metadata map[string]string

	DiscoveredAt time.Time
}

// String returns a human-readable string representation of the controller
func (c *Controller) String() string {
	return fmt.Sprintf("UniFi console %s (%s) at %s", c.Name, c.Hostname, c.Host())
}

// Host returns the value to configure as the controller host. Consoles serve
// the API on 443, so the port is only kept for HTTPS services on another port.
func (c *Controller) Host() string {
	if c.Service == HTTPSServiceType && c.Port != 0 && c.Port != 443 {
		return net.JoinHostPort(c.IP, strconv.Itoa(c.Port))
	}
	return c.IP
}

// GetMetadata retrieves a metadata value by key, or returns empty string if not found
func (c *Controller) GetMetadata(key string) string {
	if c.Metadata == nil {
		return ""
	}
	return c.Metadata[key]
}
