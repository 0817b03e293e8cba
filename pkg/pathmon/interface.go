package pathmon

import (
	"fmt"
	"net"
	"sort"
	"strings"
)

// Status is the operational state of a network interface.
type Status int

// Interface status values.
const (
	StatusUp      Status = 0
	StatusDown    Status = 1
	StatusUnknown Status = 2
)

// String returns a human-readable status name.
func (s Status) String() string {
	switch s {
	case StatusUp:
		return "UP"
	case StatusDown:
		return "DOWN"
	default:
		return "UNKNOWN"
	}
}

// InterfaceType classifies an interface by its transmission medium.
type InterfaceType string

// Interface types.
const (
	TypeEthernet InterfaceType = "ethernet"
	TypeWifi     InterfaceType = "wifi"
	TypeCellular InterfaceType = "cellular"
	TypeLoopback InterfaceType = "loopback"
	TypeUnknown  InterfaceType = "unknown"
)

// Interface describes one network interface.
type Interface struct {
	// Name is the system interface name (e.g. "eth0", "en0").
	Name string

	// Index is the system interface index.
	Index int

	// Addrs lists the IP addresses assigned to the interface.
	Addrs []net.IP

	// Status is the operational state.
	Status Status

	// Type is the medium classified from the interface name.
	Type InterfaceType

	// Expensive marks metered links such as cellular data.
	Expensive bool
}

// List returns the current network interfaces.
func List() ([]Interface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("failed to list interfaces: %w", err)
	}

	out := make([]Interface, 0, len(ifaces))
	for _, it := range ifaces {
		out = append(out, fromNetInterface(it))
	}
	return out, nil
}

// fromNetInterface converts a net.Interface including its addresses.
func fromNetInterface(it net.Interface) Interface {
	status := StatusDown
	if it.Flags&net.FlagUp != 0 {
		status = StatusUp
	}

	typ := detectType(it.Name)
	if it.Flags&net.FlagLoopback != 0 {
		typ = TypeLoopback
	}

	iface := Interface{
		Name:      it.Name,
		Index:     it.Index,
		Status:    status,
		Type:      typ,
		Expensive: typ == TypeCellular,
	}

	addrs, err := it.Addrs()
	if err != nil {
		return iface
	}
	for _, addr := range addrs {
		if ipnet, ok := addr.(*net.IPNet); ok {
			iface.Addrs = append(iface.Addrs, ipnet.IP)
		}
	}
	return iface
}

// detectType classifies an interface from its name.
// en0 is treated as wifi, which matches the common Darwin layout;
// other en* interfaces are wired.
func detectType(name string) InterfaceType {
	switch {
	case strings.HasPrefix(name, "lo"):
		return TypeLoopback
	case name == "en0":
		return TypeWifi
	case strings.HasPrefix(name, "eth") || strings.HasPrefix(name, "en"):
		return TypeEthernet
	case strings.HasPrefix(name, "wlan") || strings.HasPrefix(name, "wlp"):
		return TypeWifi
	case strings.HasPrefix(name, "wwan") || strings.HasPrefix(name, "pdp_ip"):
		return TypeCellular
	default:
		return TypeUnknown
	}
}

// equal reports whether two interfaces describe the same state.
// Address order is not significant.
func (i Interface) equal(other Interface) bool {
	return i.Name == other.Name &&
		i.Index == other.Index &&
		i.Status == other.Status &&
		i.Type == other.Type &&
		i.Expensive == other.Expensive &&
		ipsEqual(i.Addrs, other.Addrs)
}

// ipsEqual compares two IP lists ignoring order.
func ipsEqual(a, b []net.IP) bool {
	if len(a) != len(b) {
		return false
	}

	as := make([]string, len(a))
	bs := make([]string, len(b))
	for i := range a {
		as[i] = a[i].String()
	}
	for i := range b {
		bs[i] = b[i].String()
	}
	sort.Strings(as)
	sort.Strings(bs)

	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}
