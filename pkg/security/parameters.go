package security

import (
	"crypto/tls"
	"crypto/x509"
)

type mode uint8

const (
	modeDisabled mode = iota
	modeEnabled
	modeOpportunistic
)

// PreSharedKey carries an externally provisioned secret and the identity
// hint peers use to pick the right key.
type PreSharedKey struct {
	Key      []byte
	Identity string
}

// TrustVerifier overrides certificate trust evaluation. It receives the
// raw peer chain and whatever chains the standard verifier built, and
// returns nil to accept the peer. Installed via
// SetTrustVerificationCallback.
type TrustVerifier func(rawCerts [][]byte, verifiedChains [][]*x509.Certificate) error

// IdentityProvider supplies the local certificate on demand, when the
// identity is not known at configuration time. Installed via
// SetIdentityCallback.
type IdentityProvider func() (*tls.Certificate, error)

// Parameters configures the security variant of a connection. The
// zero value is not meaningful; use one of the constructors. A nil
// *Parameters behaves like NewDisabledParameters().
type Parameters struct {
	mode mode

	// MinVersion is the lowest acceptable TLS version. Zero pins the
	// handshake to TLS 1.3; tls.VersionTLS12 lowers the floor to 1.2.
	MinVersion uint16

	// ServerName overrides the peer name used for identity
	// verification. Empty derives it from the remote endpoint.
	ServerName string

	// ALPN lists the application protocols offered in the handshake.
	ALPN []string

	// Identity holds the local certificate chain presented to the peer.
	Identity []tls.Certificate

	// RootCAs verifies peer server certificates. Nil uses the system
	// pool.
	RootCAs *x509.CertPool

	// ClientCAs verifies peer client certificates on the listening
	// side. Setting it makes the listener require client certificates.
	ClientCAs *x509.CertPool

	// MaxCachedSessions bounds the client session cache used for
	// resumption when a pre-shared key is installed. Zero uses the
	// tls package default.
	MaxCachedSessions int

	pinned   []*x509.Certificate
	psk      *PreSharedKey
	verifier TrustVerifier
	provider IdentityProvider
}

// NewParameters returns parameters requiring a TLS session.
func NewParameters() *Parameters {
	return &Parameters{mode: modeEnabled}
}

// NewDisabledParameters returns parameters forbidding TLS. Only
// cleartext protocol stacks remain selectable.
func NewDisabledParameters() *Parameters {
	return &Parameters{mode: modeDisabled}
}

// NewOpportunisticParameters returns parameters that attempt TLS but
// accept a cleartext stack when no secure candidate wins.
func NewOpportunisticParameters() *Parameters {
	return &Parameters{mode: modeOpportunistic}
}

// Disabled reports whether TLS is forbidden. A nil receiver is disabled.
func (p *Parameters) Disabled() bool {
	return p == nil || p.mode == modeDisabled
}

// Opportunistic reports whether cleartext fallback is acceptable.
func (p *Parameters) Opportunistic() bool {
	return p != nil && p.mode == modeOpportunistic
}

// SetPreSharedKey installs an externally provisioned secret. Session
// resumption becomes available, keyed to the secret.
func (p *Parameters) SetPreSharedKey(key []byte, identity string) {
	p.psk = &PreSharedKey{Key: append([]byte(nil), key...), Identity: identity}
}

// SetTrustVerificationCallback installs a callback that runs as the
// final trust decision of every handshake.
func (p *Parameters) SetTrustVerificationCallback(verifier TrustVerifier) {
	p.verifier = verifier
}

// SetIdentityCallback installs a callback that supplies the local
// certificate when the peer asks for one.
func (p *Parameters) SetIdentityCallback(provider IdentityProvider) {
	p.provider = provider
}

// AddPinnedServerCertificate pins a peer certificate. When any pins are
// set, an exact match against a pinned certificate replaces chain
// verification.
func (p *Parameters) AddPinnedServerCertificate(cert *x509.Certificate) {
	p.pinned = append(p.pinned, cert)
}

// Clone returns a copy safe to mutate independently. Certificate pools
// are shared; they are read-only once populated.
func (p *Parameters) Clone() *Parameters {
	if p == nil {
		return nil
	}
	clone := *p
	clone.ALPN = append([]string(nil), p.ALPN...)
	clone.Identity = append([]tls.Certificate(nil), p.Identity...)
	clone.pinned = append([]*x509.Certificate(nil), p.pinned...)
	if p.psk != nil {
		psk := *p.psk
		psk.Key = append([]byte(nil), p.psk.Key...)
		clone.psk = &psk
	}
	return &clone
}

// minVersion returns the effective version floor.
func (p *Parameters) minVersion() uint16 {
	if p.MinVersion != 0 {
		return p.MinVersion
	}
	return tls.VersionTLS13
}
