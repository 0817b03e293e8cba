// Package testcert generates ephemeral certificate hierarchies for
// tests: a CA plus server and client leaf certificates signed by it.
// Nothing here is suitable outside a test process.
package testcert

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"testing"
	"time"
)

// Bundle holds one generated certificate hierarchy.
type Bundle struct {
	CA    *x509.Certificate
	CAKey *ecdsa.PrivateKey
	Pool  *x509.CertPool

	// ServerCert is valid for localhost and 127.0.0.1.
	ServerCert tls.Certificate

	// ClientCert is a client-auth leaf signed by the same CA.
	ClientCert tls.Certificate
}

// Generate creates a fresh CA, server, and client certificate set.
func Generate(t *testing.T) *Bundle {
	t.Helper()

	caKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate CA key: %v", err)
	}

	caTemplate := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject: pkix.Name{
			CommonName: "Test CA",
		},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		IsCA:                  true,
		BasicConstraintsValid: true,
	}

	caDER, err := x509.CreateCertificate(rand.Reader, caTemplate, caTemplate, &caKey.PublicKey, caKey)
	if err != nil {
		t.Fatalf("failed to create CA certificate: %v", err)
	}
	caCert, err := x509.ParseCertificate(caDER)
	if err != nil {
		t.Fatalf("failed to parse CA certificate: %v", err)
	}

	pool := x509.NewCertPool()
	pool.AddCert(caCert)

	serverCert := issueLeaf(t, caCert, caKey, leafSpec{
		serial:     2,
		commonName: "localhost",
		dnsNames:   []string{"localhost"},
		ips:        []net.IP{net.ParseIP("127.0.0.1")},
	})
	clientCert := issueLeaf(t, caCert, caKey, leafSpec{
		serial:     3,
		commonName: "test-client",
	})

	return &Bundle{
		CA:         caCert,
		CAKey:      caKey,
		Pool:       pool,
		ServerCert: serverCert,
		ClientCert: clientCert,
	}
}

// PEM returns the PEM encodings of a generated leaf certificate and
// its private key, for code paths that load identities from bytes or
// files.
func PEM(t *testing.T, cert tls.Certificate) (certPEM, keyPEM []byte) {
	t.Helper()

	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Certificate[0]})

	keyDER, err := x509.MarshalPKCS8PrivateKey(cert.PrivateKey)
	if err != nil {
		t.Fatalf("failed to marshal private key: %v", err)
	}
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER})
	return certPEM, keyPEM
}

type leafSpec struct {
	serial     int64
	commonName string
	dnsNames   []string
	ips        []net.IP
}

func issueLeaf(t *testing.T, caCert *x509.Certificate, caKey *ecdsa.PrivateKey, spec leafSpec) tls.Certificate {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate key for %s: %v", spec.commonName, err)
	}

	template := &x509.Certificate{
		SerialNumber: big.NewInt(spec.serial),
		Subject: pkix.Name{
			CommonName: spec.commonName,
		},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		DNSNames:              spec.dnsNames,
		IPAddresses:           spec.ips,
		BasicConstraintsValid: true,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, caCert, &key.PublicKey, caKey)
	if err != nil {
		t.Fatalf("failed to create certificate for %s: %v", spec.commonName, err)
	}
	leaf, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("failed to parse certificate for %s: %v", spec.commonName, err)
	}

	return tls.Certificate{
		Certificate: [][]byte{der},
		PrivateKey:  key,
		Leaf:        leaf,
	}
}
