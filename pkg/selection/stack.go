package selection

import (
	"github.com/taps-protocol/taps-go/pkg/property"
)

// StackKind identifies one supported protocol stack.
type StackKind uint8

const (
	StackTCP StackKind = iota
	StackTCPTLS
	StackUDP
)

// String returns the stack name used in logs and candidate events.
func (k StackKind) String() string {
	switch k {
	case StackTCP:
		return "tcp"
	case StackTCPTLS:
		return "tcp+tls"
	case StackUDP:
		return "udp"
	default:
		return "unknown"
	}
}

// ServiceClass distinguishes byte-stream stacks from datagram stacks.
type ServiceClass uint8

const (
	ServiceStream ServiceClass = iota
	ServiceDatagram
)

// String returns the service class name.
func (c ServiceClass) String() string {
	if c == ServiceDatagram {
		return "datagram"
	}
	return "stream"
}

// ProtocolStack describes one stack the establishment engine can race:
// its identity, service class, and which selection properties it
// provides. Stacks are immutable values from the universe; applications
// never construct their own.
type ProtocolStack struct {
	Kind         StackKind
	Name         string
	ServiceClass ServiceClass

	// Secure reports whether the stack carries a TLS session.
	Secure bool

	provides capabilitySet
}

// capabilitySet records which selection property each stack provides,
// indexed by property.Kind.
type capabilitySet [property.KindActiveReadBeforeSend + 1]bool

// Provides reports whether the stack satisfies the given selection
// property. Unknown kinds report false.
func (s ProtocolStack) Provides(kind property.Kind) bool {
	if kind < 0 || int(kind) >= len(s.provides) {
		return false
	}
	return s.provides[kind]
}

// Network returns the net package network name used to dial or listen
// for this stack.
func (s ProtocolStack) Network() string {
	if s.ServiceClass == ServiceDatagram {
		return "udp"
	}
	return "tcp"
}

// String returns the stack name.
func (s ProtocolStack) String() string {
	return s.Name
}

var (
	tcpStack = ProtocolStack{
		Kind:         StackTCP,
		Name:         "tcp",
		ServiceClass: ServiceStream,
		provides: newCapabilitySet(
			property.KindReliability,
			property.KindPreserveOrder,
			property.KindCongestionControl,
			property.KindKeepAlive,
			property.KindFullChecksumSend,
			property.KindFullChecksumRecv,
			property.KindUseTemporaryLocalAddress,
			property.KindActiveReadBeforeSend,
		),
	}

	tcpTLSStack = ProtocolStack{
		Kind:         StackTCPTLS,
		Name:         "tcp+tls",
		ServiceClass: ServiceStream,
		Secure:       true,
		provides: newCapabilitySet(
			property.KindReliability,
			property.KindPreserveOrder,
			property.KindCongestionControl,
			property.KindKeepAlive,
			property.KindFullChecksumSend,
			property.KindFullChecksumRecv,
			property.KindUseTemporaryLocalAddress,
			property.KindActiveReadBeforeSend,
		),
	}

	udpStack = ProtocolStack{
		Kind:         StackUDP,
		Name:         "udp",
		ServiceClass: ServiceDatagram,
		provides: newCapabilitySet(
			property.KindPreserveMsgBoundaries,
			property.KindZeroRTTMsg,
			property.KindFullChecksumSend,
			property.KindFullChecksumRecv,
			property.KindUseTemporaryLocalAddress,
			property.KindSoftErrorNotify,
			property.KindActiveReadBeforeSend,
		),
	}
)

func newCapabilitySet(kinds ...property.Kind) capabilitySet {
	var set capabilitySet
	for _, k := range kinds {
		set[k] = true
	}
	return set
}

// Universe returns the supported protocol stacks in declaration order.
// The order is the tie-break for equally ranked candidates.
func Universe() []ProtocolStack {
	return []ProtocolStack{tcpStack, tcpTLSStack, udpStack}
}
