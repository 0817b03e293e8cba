// Package security turns security parameters into TLS configurations.
//
// Parameters come in mutually exclusive variants rather than flags:
// disabled (cleartext stacks only), enabled (TLS required), and
// opportunistic (TLS attempted, cleartext acceptable). The variant
// decides which protocol stacks survive selection; the remaining fields
// shape the handshake itself.
//
// Handshakes are pinned to TLS 1.3 unless MinVersion lowers the floor to
// 1.2. Key exchange prefers X25519 with P-256 as the mandatory fallback,
// and session tickets are disabled unless a pre-shared key is installed,
// in which case ticket keys are derived from the PSK via HKDF-SHA256 so
// resumption only succeeds between peers holding the same secret.
//
// Trust decisions can be overridden per application: pinned peer
// certificates replace chain verification entirely, and a trust
// verification callback runs as the final step of every handshake it is
// installed on.
package security
