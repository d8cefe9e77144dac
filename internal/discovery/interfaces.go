// Package discovery lists the interfaces libpcap can capture from.
package discovery

import (
	"fmt"
	"net"
	"sort"

	"github.com/google/gopacket/pcap"
)

// List returns every interface libpcap can open, enriched with the MAC and
// index the operating system reports for it.
func List() ([]Interface, error) {
	devs, err := pcap.FindAllDevs()
	if err != nil {
		return nil, fmt.Errorf("could not list interfaces: %v", err)
	}
	return fromDevices(devs, net.InterfaceByName), nil
}

// Names returns the names of the interfaces List would return.
func Names() ([]string, error) {
	devs, err := pcap.FindAllDevs()
	if err != nil {
		return nil, fmt.Errorf("could not list interfaces: %v", err)
	}
	names := make([]string, 0, len(devs))
	for _, d := range devs {
		names = append(names, d.Name)
	}
	return names, nil
}

func fromDevices(devs []pcap.Interface, osLookup func(string) (*net.Interface, error)) []Interface {
	out := make([]Interface, 0, len(devs))
	for _, d := range devs {
		iface := Interface{
			Name:        d.Name,
			MAC:         NotAvailable,
			IPv4:        firstIPv4(d.Addresses),
			Description: d.Description,
		}
		if osIface, err := osLookup(d.Name); err == nil && osIface != nil {
			iface.Index = osIface.Index
			iface.Up = osIface.Flags&net.FlagUp != 0
			if len(osIface.HardwareAddr) > 0 {
				iface.MAC = osIface.HardwareAddr.String()
			}
		}
		out = append(out, iface)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Index == 0 || out[j].Index == 0 {
			return out[i].Index != 0
		}
		return out[i].Index < out[j].Index
	})
	return out
}

func firstIPv4(addrs []pcap.InterfaceAddress) string {
	for _, a := range addrs {
		if ip4 := a.IP.To4(); ip4 != nil {
			return ip4.String()
		}
	}
	return NotAvailable
}
