// Package zeroconf publishes a device server's OSC endpoint as a DNS-SD
// service, via github.com/grandcat/zeroconf, so that applications on the
// local network can find a device without already knowing its host and
// port. Each device server publishes exactly one record and unregisters it
// on clean shutdown.
package zeroconf

import (
	"fmt"

	gozeroconf "github.com/grandcat/zeroconf"
)

// serviceType is the DNS-SD service type every device server advertises
// under. "_osc._udp" identifies the transport; instance names disambiguate
// individual devices.
const serviceType = "_osc._udp"

// Publication is a single live DNS-SD advertisement. Close unregisters it.
type Publication struct {
	server *gozeroconf.Server
}

// Publish advertises name (conventionally "<friendly> (<serial>)") as
// offering an OSC endpoint on port.
func Publish(name string, port int) (*Publication, error) {
	server, err := gozeroconf.Register(name, serviceType, "local.", port, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("zeroconf: registering %q on port %d: %w", name, port, err)
	}
	return &Publication{server: server}, nil
}

// Close unregisters the advertisement.
func (p *Publication) Close() error {
	if p == nil || p.server == nil {
		return nil
	}
	p.server.Shutdown()
	return nil
}
