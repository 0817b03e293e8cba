package endpoint

import (
	"net"
	"strconv"
)

// Endpoint identifies one side of a transport association. Every field is
// optional; resolution interprets whichever combination is present. A
// literal Address takes precedence over Hostname, and Service triggers
// mDNS browsing instead of DNS.
type Endpoint struct {
	Hostname  string
	Address   net.IP
	Port      uint16
	Service   string
	Interface string
}

// String renders the endpoint in host:port form for logs and errors.
func (e Endpoint) String() string {
	port := strconv.Itoa(int(e.Port))
	switch {
	case e.Address != nil:
		return net.JoinHostPort(e.Address.String(), port)
	case e.Hostname != "":
		return net.JoinHostPort(e.Hostname, port)
	case e.Service != "":
		return "_" + e.Service + "._tcp"
	default:
		return ":" + port
	}
}

// Empty reports whether no identifying field is set.
func (e Endpoint) Empty() bool {
	return e.Hostname == "" && e.Address == nil && e.Service == "" && e.Port == 0
}

// Remote specifies the peer an initiating side connects to.
type Remote struct {
	Endpoint
}

// NewRemote returns an empty remote endpoint specification.
func NewRemote() Remote {
	return Remote{}
}

// WithHostname returns a copy naming the peer by DNS hostname.
func (r Remote) WithHostname(name string) Remote {
	r.Hostname = name
	return r
}

// WithAddress returns a copy naming the peer by literal IP address.
func (r Remote) WithAddress(ip net.IP) Remote {
	r.Address = ip
	return r
}

// WithPort returns a copy with the peer transport port set.
func (r Remote) WithPort(port uint16) Remote {
	r.Port = port
	return r
}

// WithService returns a copy naming the peer by mDNS service name. The
// name is the bare service label; browsing expands it to "_<name>._tcp".
func (r Remote) WithService(name string) Remote {
	r.Service = name
	return r
}

// WithInterface returns a copy restricting resolution to one interface.
func (r Remote) WithInterface(name string) Remote {
	r.Interface = name
	return r
}

// Local specifies the addresses and port a listening side binds to, and
// the service name it advertises.
type Local struct {
	Endpoint
}

// NewLocal returns an empty local endpoint specification.
func NewLocal() Local {
	return Local{}
}

// WithHostname returns a copy with the bind hostname set.
func (l Local) WithHostname(name string) Local {
	l.Hostname = name
	return l
}

// WithAddress returns a copy with the bind IP address set.
func (l Local) WithAddress(ip net.IP) Local {
	l.Address = ip
	return l
}

// WithPort returns a copy with the bind port set. Zero lets the kernel
// pick an ephemeral port.
func (l Local) WithPort(port uint16) Local {
	l.Port = port
	return l
}

// WithService returns a copy with the mDNS service name to advertise.
func (l Local) WithService(name string) Local {
	l.Service = name
	return l
}

// WithInterface returns a copy restricting the endpoint to one interface.
func (l Local) WithInterface(name string) Local {
	l.Interface = name
	return l
}

// BindAddr renders the local endpoint as a listen address. An unset
// address yields ":port" so the listener binds all interfaces.
func (l Local) BindAddr() string {
	host := ""
	if l.Address != nil {
		host = l.Address.String()
	} else if l.Hostname != "" {
		host = l.Hostname
	}
	return net.JoinHostPort(host, strconv.Itoa(int(l.Port)))
}
