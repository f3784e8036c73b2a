// Package discovery finds UniFi consoles on the local network over mDNS.
//
// Consoles advertise their web UI as "_http._tcp" and "_https._tcp"
// services. The scanner browses both, keeps answers whose instance name,
// hostname or TXT model carries a console marker (UDM, UDR, UCK, UCG,
// UNVR, UDW, UXG, UniFi) and returns one Controller per address.
//
// # Usage Example
//
//	controllers, err := discovery.QuickScan(ctx, 5*time.Second)
//	if err != nil {
//	    return err
//	}
//	for _, c := range controllers {
//	    fmt.Printf("%s at %s\n", c.Name, c.Host())
//	}
//
// # Network Requirements
//
// - Requires multicast support on the network interface
// - Consoles must be on the same local network segment
// - Firewall must allow mDNS (UDP port 5353)
package discovery
