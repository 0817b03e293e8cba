package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taps-protocol/taps-go/internal/testcert"
	"github.com/taps-protocol/taps-go/pkg/property"
)

// setConfig swaps the package-level configuration for one test.
func setConfig(t *testing.T, c Config) {
	t.Helper()
	old := config
	config = c
	t.Cleanup(func() { config = old })
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "server.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadConfigFile(t *testing.T) {
	path := writeConfigFile(t, `
listen:
  address: 127.0.0.1
  port: 9000
  service: echo
properties:
  preserve-msg-boundaries: prefer
  congestion-control: require
security:
  mode: none
protocol-log: server.tlog
connection-limit: 16
`)

	fc, err := loadConfigFile(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", fc.Listen.Address)
	assert.Equal(t, 9000, fc.Listen.Port)
	assert.Equal(t, "echo", fc.Listen.Service)
	assert.Equal(t, "none", fc.Security.Mode)
	assert.Equal(t, "server.tlog", fc.ProtocolLog)
	assert.Equal(t, 16, fc.ConnectionLimit)
	assert.Equal(t, "prefer", fc.Properties["preserve-msg-boundaries"])
}

func TestLoadConfigFileRejectsUnknownSecurityMode(t *testing.T) {
	path := writeConfigFile(t, "security:\n  mode: quantum\n")

	_, err := loadConfigFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "security mode")
}

func TestLoadConfigFileMissing(t *testing.T) {
	_, err := loadConfigFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadConfigFileMalformedYAML(t *testing.T) {
	path := writeConfigFile(t, "listen: [not a mapping")

	_, err := loadConfigFile(path)
	require.Error(t, err)
}

func TestApplyFileConfig(t *testing.T) {
	setConfig(t, Config{Port: 9000, Boundaries: true})

	fc := &fileConfig{}
	fc.Listen.Address = "192.0.2.1"
	fc.Listen.Port = 4433
	fc.Security.Mode = "none"
	fc.ProtocolLog = "trace.tlog"
	fc.ConnectionLimit = 4
	fc.Properties = map[string]string{"keep-alive": "prefer"}

	applyFileConfig(fc)

	assert.Equal(t, "192.0.2.1", config.Address)
	assert.Equal(t, 4433, config.Port)
	assert.True(t, config.NoTLS)
	assert.Equal(t, "trace.tlog", config.ProtocolLog)
	assert.Equal(t, 4, config.ConnectionLimit)
	assert.Equal(t, "prefer", config.Properties["keep-alive"])
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr string
	}{
		{
			name:   "cleartext defaults",
			config: Config{Port: 9000, NoTLS: true},
		},
		{
			name:   "tls with cert and key",
			config: Config{Port: 9000, CertFile: "c.pem", KeyFile: "k.pem"},
		},
		{
			name:    "tls without cert",
			config:  Config{Port: 9000},
			wantErr: "TLS requires",
		},
		{
			name:    "cert without key",
			config:  Config{Port: 9000, CertFile: "c.pem"},
			wantErr: "requires -key",
		},
		{
			name:    "port out of range",
			config:  Config{Port: 70000, NoTLS: true},
			wantErr: "port",
		},
		{
			name:    "negative limit",
			config:  Config{Port: 9000, NoTLS: true, ConnectionLimit: -1},
			wantErr: "limit",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setConfig(t, tt.config)
			err := validateConfig()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestParsePreference(t *testing.T) {
	tests := []struct {
		in   string
		want property.Preference
	}{
		{"require", property.Require},
		{"Prefer", property.Prefer},
		{"no-preference", property.NoPreference},
		{"avoid", property.Avoid},
		{"PROHIBIT", property.Prohibit},
	}
	for _, tt := range tests {
		got, err := parsePreference(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := parsePreference("sometimes")
	require.Error(t, err)
}

func TestParseKindAcceptsBothSpellings(t *testing.T) {
	kind, ok := parseKind("preserve-msg-boundaries")
	require.True(t, ok)
	assert.Equal(t, property.KindPreserveMsgBoundaries, kind)

	kind, ok = parseKind("preserveMsgBoundaries")
	require.True(t, ok)
	assert.Equal(t, property.KindPreserveMsgBoundaries, kind)

	_, ok = parseKind("warp-speed")
	assert.False(t, ok)
}

func TestBuildTransportProperties(t *testing.T) {
	setConfig(t, Config{
		Boundaries: true,
		Properties: map[string]string{"congestion-control": "avoid"},
	})

	tp, err := buildTransportProperties()
	require.NoError(t, err)
	assert.Equal(t, property.Prefer, tp.PreserveMsgBoundaries)
	assert.Equal(t, property.Avoid, tp.CongestionControl)
	assert.Equal(t, property.Require, tp.Reliability)
}

func TestBuildTransportPropertiesRejectsUnknownProperty(t *testing.T) {
	setConfig(t, Config{Properties: map[string]string{"warp-speed": "require"}})

	_, err := buildTransportProperties()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "warp-speed")
}

func TestBuildTransportPropertiesRejectsBadPreference(t *testing.T) {
	setConfig(t, Config{Properties: map[string]string{"reliability": "sometimes"}})

	_, err := buildTransportProperties()
	require.Error(t, err)
}

func TestBuildSecurityParametersCleartext(t *testing.T) {
	setConfig(t, Config{NoTLS: true})

	sec, err := buildSecurityParameters()
	require.NoError(t, err)
	assert.True(t, sec.Disabled())
}

func TestBuildSecurityParametersLoadsIdentity(t *testing.T) {
	bundle := testcert.Generate(t)
	certPEM, keyPEM := testcert.PEM(t, bundle.ServerCert)

	dir := t.TempDir()
	certFile := filepath.Join(dir, "server.pem")
	keyFile := filepath.Join(dir, "server-key.pem")
	require.NoError(t, os.WriteFile(certFile, certPEM, 0644))
	require.NoError(t, os.WriteFile(keyFile, keyPEM, 0600))

	setConfig(t, Config{CertFile: certFile, KeyFile: keyFile})

	sec, err := buildSecurityParameters()
	require.NoError(t, err)
	assert.False(t, sec.Disabled())
	require.Len(t, sec.Identity, 1)
}

func TestBuildSecurityParametersBadKeyPair(t *testing.T) {
	dir := t.TempDir()
	certFile := filepath.Join(dir, "server.pem")
	keyFile := filepath.Join(dir, "server-key.pem")
	require.NoError(t, os.WriteFile(certFile, []byte("not a cert"), 0644))
	require.NoError(t, os.WriteFile(keyFile, []byte("not a key"), 0600))

	setConfig(t, Config{CertFile: certFile, KeyFile: keyFile})

	_, err := buildSecurityParameters()
	require.Error(t, err)
}
