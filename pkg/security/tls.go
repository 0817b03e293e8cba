package security

import (
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/crypto/hkdf"
)

// TLS configuration errors.
var (
	ErrSecurityDisabled     = errors.New("security parameters are disabled")
	ErrNoIdentity           = errors.New("identity certificate is required")
	ErrCertificateNotPinned = errors.New("peer certificate does not match any pinned certificate")
)

// defaultCurves are the key exchange preferences used on both sides:
// X25519 preferred, P-256 as the mandatory fallback.
var defaultCurves = []tls.CurveID{tls.X25519, tls.CurveP256}

// ClientTLSConfig builds the tls.Config an initiating connection
// handshakes with. serverName seeds SNI and identity verification unless
// the parameters override it.
func ClientTLSConfig(params *Parameters, serverName string) (*tls.Config, error) {
	if params.Disabled() {
		return nil, ErrSecurityDisabled
	}

	cfg := &tls.Config{
		MinVersion:             params.minVersion(),
		MaxVersion:             tls.VersionTLS13,
		NextProtos:             append([]string(nil), params.ALPN...),
		CurvePreferences:       defaultCurves,
		SessionTicketsDisabled: true,
		Certificates:           params.Identity,
		RootCAs:                params.RootCAs,
		ServerName:             serverName,
	}
	if params.ServerName != "" {
		cfg.ServerName = params.ServerName
	}

	if params.provider != nil {
		provider := params.provider
		cfg.GetClientCertificate = func(*tls.CertificateRequestInfo) (*tls.Certificate, error) {
			return provider()
		}
	}

	if verify := params.peerVerifier(); verify != nil {
		// Verification moves entirely into the callback: pins or the
		// trust callback replace the built-in hostname check.
		cfg.VerifyPeerCertificate = verify
		cfg.InsecureSkipVerify = true
	}

	if params.psk != nil {
		cfg.SessionTicketsDisabled = false
		cfg.ClientSessionCache = tls.NewLRUClientSessionCache(params.MaxCachedSessions)
	}

	return cfg, nil
}

// ServerTLSConfig builds the tls.Config a listener handshakes with. An
// identity certificate (or identity callback) is required.
func ServerTLSConfig(params *Parameters) (*tls.Config, error) {
	if params.Disabled() {
		return nil, ErrSecurityDisabled
	}
	if len(params.Identity) == 0 && params.provider == nil {
		return nil, ErrNoIdentity
	}

	cfg := &tls.Config{
		MinVersion:             params.minVersion(),
		MaxVersion:             tls.VersionTLS13,
		NextProtos:             append([]string(nil), params.ALPN...),
		CurvePreferences:       defaultCurves,
		SessionTicketsDisabled: true,
		Certificates:           params.Identity,
		ClientCAs:              params.ClientCAs,
		ClientAuth:             tls.NoClientCert,
	}

	if params.ClientCAs != nil {
		cfg.ClientAuth = tls.RequireAndVerifyClientCert
	}

	if params.provider != nil {
		provider := params.provider
		cfg.GetCertificate = func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
			return provider()
		}
	}

	if verify := params.peerVerifier(); verify != nil {
		cfg.VerifyPeerCertificate = verify
		if cfg.ClientAuth == tls.NoClientCert {
			// The callback is the trust decision, so a client
			// certificate must be presented for it to judge.
			cfg.ClientAuth = tls.RequireAnyClientCert
		}
	}

	if params.psk != nil {
		key, err := sessionTicketKey(params.psk)
		if err != nil {
			return nil, err
		}
		cfg.SessionTicketsDisabled = false
		cfg.SetSessionTicketKeys([][32]byte{key})
	}

	return cfg, nil
}

// peerVerifier builds the custom certificate verification callback:
// pinned certificates first, then manual chain verification against
// RootCAs, then the application trust callback. Returns nil when the
// built-in verification suffices.
func (p *Parameters) peerVerifier() func(rawCerts [][]byte, verifiedChains [][]*x509.Certificate) error {
	if len(p.pinned) == 0 && p.verifier == nil {
		return nil
	}

	pinned := p.pinned
	roots := p.RootCAs
	custom := p.verifier

	return func(rawCerts [][]byte, verifiedChains [][]*x509.Certificate) error {
		if len(rawCerts) == 0 {
			return errors.New("no certificates presented")
		}

		if len(pinned) > 0 {
			leaf, err := x509.ParseCertificate(rawCerts[0])
			if err != nil {
				return fmt.Errorf("failed to parse certificate: %w", err)
			}
			if !pinMatch(pinned, leaf) {
				return ErrCertificateNotPinned
			}
		} else if roots != nil {
			// Built-in verification is skipped, so the chain is
			// checked here against the configured roots.
			leaf, err := x509.ParseCertificate(rawCerts[0])
			if err != nil {
				return fmt.Errorf("failed to parse certificate: %w", err)
			}

			intermediates := x509.NewCertPool()
			for _, raw := range rawCerts[1:] {
				if cert, err := x509.ParseCertificate(raw); err == nil {
					intermediates.AddCert(cert)
				}
			}

			opts := x509.VerifyOptions{
				Roots:         roots,
				Intermediates: intermediates,
				CurrentTime:   time.Now(),
				KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
			}
			if _, err := leaf.Verify(opts); err != nil {
				return fmt.Errorf("certificate chain verification failed: %w", err)
			}
		}

		if custom != nil {
			return custom(rawCerts, verifiedChains)
		}
		return nil
	}
}

// pinMatch reports whether the leaf matches any pinned certificate
// byte for byte.
func pinMatch(pinned []*x509.Certificate, leaf *x509.Certificate) bool {
	for _, pin := range pinned {
		if pin.Equal(leaf) {
			return true
		}
	}
	return false
}

// sessionTicketKey derives a stable ticket key from the pre-shared key
// so resumption only succeeds between peers holding the same secret.
func sessionTicketKey(psk *PreSharedKey) ([32]byte, error) {
	var key [32]byte
	kdf := hkdf.New(sha256.New, psk.Key, nil, []byte("session-ticket:"+psk.Identity))
	if _, err := io.ReadFull(kdf, key[:]); err != nil {
		return key, fmt.Errorf("failed to derive session ticket key: %w", err)
	}
	return key, nil
}

// VerifyVersion checks the negotiated TLS version meets the minimum.
func VerifyVersion(state tls.ConnectionState, min uint16) error {
	if state.Version < min {
		return fmt.Errorf("TLS version %x below required minimum %x", state.Version, min)
	}
	return nil
}

// VerifyALPN checks the negotiated protocol is one of the offered set.
// An empty offer accepts any outcome.
func VerifyALPN(state tls.ConnectionState, offered []string) error {
	if len(offered) == 0 {
		return nil
	}
	for _, proto := range offered {
		if state.NegotiatedProtocol == proto {
			return nil
		}
	}
	return fmt.Errorf("ALPN protocol %q is not in %v", state.NegotiatedProtocol, offered)
}

// VerifyConnection runs the post-handshake checks implied by the
// parameters.
func VerifyConnection(state tls.ConnectionState, params *Parameters) error {
	if err := VerifyVersion(state, params.minVersion()); err != nil {
		return err
	}
	return VerifyALPN(state, params.ALPN)
}
