package hostcmd

import (
	"fmt"
	"net"

	"github.com/grandcat/zeroconf"
)

// ServiceType is the DNS-SD service the daemon registers.
const ServiceType = "_pdaltmode._tcp"

// APIVersion is announced in the TXT record.
const APIVersion = 1

// Advertiser announces the host command server over mDNS.
type Advertiser struct {
	name      string
	port      int
	txtRecord []string

	server *zeroconf.Server
}

func NewAdvertiser(name string, port int, ports int) *Advertiser {
	if name == "" {
		name = "pdaltmode"
	}

	return &Advertiser{
		name:      name,
		port:      port,
		txtRecord: []string{fmt.Sprintf("ports=%d", ports), fmt.Sprintf("version=%d", APIVersion)},
	}
}

func (a *Advertiser) TXT() []string {
	return append([]string{}, a.txtRecord...)
}

// Start registers the service on ifaces, or on every interface when ifaces
// is empty.
func (a *Advertiser) Start(ifaces []net.Interface) error {
	a.Stop()

	server, err := zeroconf.Register(a.name, ServiceType, "local.", a.port, a.txtRecord, ifaces)
	if err != nil {
		return err
	}
	server.TTL(60)

	a.server = server
	return nil
}

// SetPorts updates the announced port count.
func (a *Advertiser) SetPorts(ports int) {
	a.txtRecord[0] = fmt.Sprintf("ports=%d", ports)

	if a.server != nil {
		a.server.SetText(a.txtRecord)
	}
}

func (a *Advertiser) Stop() {
	if a.server == nil {
		return
	}
	a.server.Shutdown()
	a.server = nil
}
