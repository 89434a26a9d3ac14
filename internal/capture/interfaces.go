package capture

import (
	"errors"
	"fmt"
	"net"

	"github.com/google/gopacket/pcap"

	"packetscope/internal/models"
)

// ErrNoDefaultInterface is returned when capture is requested without an
// interface name and no suitable default exists on the host.
var ErrNoDefaultInterface = errors.New("no active network interface found")

// Live host lookups are package-level variables so tests can swap in
// deterministic stubs without a libpcap environment or privileges.
var (
	findAllDevs   = pcap.FindAllDevs
	netInterfaces = net.Interfaces
	ifaceAddrs    = (*net.Interface).Addrs
)

// Catalog enumerates capture-capable network interfaces. It holds no
// state; every call queries the host afresh.
type Catalog struct{}

// List returns the host's capture-capable interfaces in enumeration
// order. Device metadata comes from libpcap; MAC addresses are joined
// in from the OS interface table since libpcap does not expose them.
func (Catalog) List() ([]models.Interface, error) {
	devices, err := findAllDevs()
	if err != nil {
		return nil, fmt.Errorf("enumerating capture devices: %w", err)
	}

	macs := macByName()

	ifaces := make([]models.Interface, 0, len(devices))
	for _, d := range devices {
		var ipv4 []string
		for _, a := range d.Addresses {
			if a.IP != nil && a.IP.To4() != nil {
				ipv4 = append(ipv4, a.IP.String())
			}
		}
		ifaces = append(ifaces, models.Interface{
			Name:        d.Name,
			Description: d.Description,
			MAC:         macs[d.Name],
			IPv4:        ipv4,
		})
	}
	return ifaces, nil
}

// Default picks the interface used when Start is called without a name:
// the first OS interface that is up, not loopback, and has at least one
// IPv4 address. Returns ErrNoDefaultInterface when nothing qualifies.
func (Catalog) Default() (string, error) {
	osIfaces, err := netInterfaces()
	if err != nil {
		return "", fmt.Errorf("enumerating host interfaces: %w", err)
	}

	for _, iface := range osIfaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := ifaceAddrs(&iface)
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if ipNet, ok := addr.(*net.IPNet); ok && ipNet.IP.To4() != nil {
				return iface.Name, nil
			}
		}
	}
	return "", ErrNoDefaultInterface
}

func macByName() map[string]string {
	out := make(map[string]string)
	osIfaces, err := netInterfaces()
	if err != nil {
		// MAC is cosmetic; the pcap device list still stands alone.
		return out
	}
	for _, iface := range osIfaces {
		if len(iface.HardwareAddr) > 0 {
			out[iface.Name] = iface.HardwareAddr.String()
		}
	}
	return out
}
