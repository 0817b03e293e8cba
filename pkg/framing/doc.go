// Package framing recovers message boundaries on byte-stream transports.
//
// Stream stacks (TCP, TCP+TLS) deliver a byte stream with no inherent
// message delimiters. When an application requires preserved message
// boundaries over such a stack, a Framer is layered on the connection:
// outbound messages are encapsulated and inbound bytes are decoded back
// into discrete messages. Datagram stacks carry boundaries natively and
// never use a framer.
//
// LengthPrefix is the standard framer: a 4-byte big-endian length prefix
// followed by the payload. It enforces a maximum message size in both
// directions and can emit frame events to a diagnostic logger.
package framing
