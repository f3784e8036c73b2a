package discovery

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/muurk/ucd/internal/logging"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	// HTTPServiceType and HTTPSServiceType are the service types UniFi
	// consoles advertise their web UI on.
	HTTPServiceType  = "_http._tcp"
	HTTPSServiceType = "_https._tcp"

	// ServiceDomain is the mDNS domain (typically "local.")
	ServiceDomain = "local."

	// DefaultScanTimeout is the default timeout for controller discovery
	DefaultScanTimeout = 5 * time.Second
)

// consoleMarkers are the model prefixes UniFi consoles put in their
// instance names, hostnames or TXT records. Matched case-insensitively.
var consoleMarkers = []string{"udm", "udr", "uck", "ucg", "unvr", "udw", "uxg", "unifi"}

// Scanner handles mDNS controller discovery
type Scanner struct {
	// Timeout is the maximum time to wait for answers
	Timeout time.Duration

	// Services are the service types to browse
	Services []string
}

// NewScanner creates a new mDNS scanner with default settings
func NewScanner() *Scanner {
	return &Scanner{
		Timeout:  DefaultScanTimeout,
		Services: []string{HTTPServiceType, HTTPSServiceType},
	}
}

// Scan browses every configured service type until the timeout and returns
// the UniFi consoles that answered, sorted by name and de-duplicated by
// address.
func (s *Scanner) Scan(ctx context.Context) ([]*Controller, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	var (
		mu    sync.Mutex
		found = make(map[string]*Controller)
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, service := range s.Services {
		g.Go(func() error {
			resolver, err := zeroconf.NewResolver(nil)
			if err != nil {
				return fmt.Errorf("failed to create mDNS resolver: %w", err)
			}

			entries := make(chan *zeroconf.ServiceEntry)
			go func() {
				for entry := range entries {
					c := parseServiceEntry(service, entry)
					if c == nil {
						continue
					}
					mu.Lock()
					if _, dup := found[c.IP]; !dup {
						found[c.IP] = c
						logging.Debug("Found UniFi console",
							zap.String("name", c.Name),
							zap.String("ip", c.IP),
							zap.String("service", service),
						)
					}
					mu.Unlock()
				}
			}()

			if err := resolver.Browse(gctx, service, ServiceDomain, entries); err != nil {
				return fmt.Errorf("failed to browse for %s: %w", service, err)
			}
			<-gctx.Done()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	mu.Lock()
	defer mu.Unlock()
	controllers := make([]*Controller, 0, len(found))
	for _, c := range found {
		controllers = append(controllers, c)
	}
	sort.Slice(controllers, func(i, j int) bool {
		if controllers[i].Name != controllers[j].Name {
			return controllers[i].Name < controllers[j].Name
		}
		return controllers[i].IP < controllers[j].IP
	})
	return controllers, nil
}

// parseServiceEntry converts a zeroconf service entry to a Controller.
// Returns nil if the entry is not a UniFi console.
func parseServiceEntry(service string, entry *zeroconf.ServiceEntry) *Controller {
	if entry == nil {
		return nil
	}

	metadata := make(map[string]string)
	for _, txt := range entry.Text {
		parts := strings.SplitN(txt, "=", 2)
		if len(parts) == 2 {
			metadata[parts[0]] = parts[1]
		} else {
			metadata[parts[0]] = ""
		}
	}

	if !IsConsoleName(entry.Instance) && !IsConsoleName(entry.HostName) && !IsConsoleName(metadata["model"]) {
		return nil
	}

	var ip string
	if len(entry.AddrIPv4) > 0 {
		ip = entry.AddrIPv4[0].String()
	} else if len(entry.AddrIPv6) > 0 {
		ip = entry.AddrIPv6[0].String()
	}
	if ip == "" {
		return nil
	}

	name := entry.Instance
	if name == "" {
		name = strings.TrimSuffix(strings.TrimSuffix(entry.HostName, "."), ".local")
	}

	return &Controller{
		Name:         name,
		Hostname:     entry.HostName,
		IP:           ip,
		Port:         entry.Port,
		Service:      service,
		Metadata:     metadata,
		DiscoveredAt: time.Now(),
	}
}

// IsConsoleName reports whether a name carries a UniFi console marker.
func IsConsoleName(name string) bool {
	lower := strings.ToLower(name)
	for _, marker := range consoleMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// QuickScan performs a scan with the given timeout
func QuickScan(ctx context.Context, timeout time.Duration) ([]*Controller, error) {
	scanner := NewScanner()
	if timeout > 0 {
		scanner.Timeout = timeout
	}
	return scanner.Scan(ctx)
}
