// Command taps-server is a message echo server built on the transport
// services engine.
//
// The server listens on a local endpoint, accepts every connection the
// engine delivers, and echoes each received message back to its sender.
// It demonstrates:
//   - Preconnection configuration from flags or a YAML file
//   - TLS and cleartext listeners
//   - Message boundary preservation over stream transports
//   - mDNS service advertising
//   - Protocol event logging to a CBOR file
//
// Usage:
//
//	taps-server [flags]
//
// Flags:
//
//	-config string        Configuration file path (YAML)
//	-address string       Bind address (default: all interfaces)
//	-port int             Listen port (default 9000)
//	-interface string     Restrict the listener to one network interface
//	-service string       mDNS service name to advertise (off when empty)
//	-cert string          TLS certificate file (PEM)
//	-key string           TLS private key file (PEM)
//	-no-tls               Listen in cleartext
//	-boundaries           Preserve message boundaries (default true)
//	-limit int            Maximum concurrent connections (0 = unlimited)
//	-protocol-log string  File path for protocol event logging (CBOR)
//	-log-level string     Log level: debug, info, warn, error (default "info")
//
// Examples:
//
//	# Cleartext echo server on port 9000
//	taps-server -no-tls
//
//	# TLS echo server with an advertised mDNS service
//	taps-server -cert server.pem -key server-key.pem -service echo
//
//	# Everything from a config file, protocol trace to a .tlog file
//	taps-server -config server.yaml -protocol-log server.tlog
package main

import (
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"gopkg.in/yaml.v3"

	"github.com/taps-protocol/taps-go/pkg/endpoint"
	tapslog "github.com/taps-protocol/taps-go/pkg/log"
	"github.com/taps-protocol/taps-go/pkg/property"
	"github.com/taps-protocol/taps-go/pkg/security"
	"github.com/taps-protocol/taps-go/pkg/taps"
)

// Config holds the server configuration.
type Config struct {
	ConfigFile      string
	Address         string
	Port            int
	Interface       string
	Service         string
	CertFile        string
	KeyFile         string
	NoTLS           bool
	Boundaries      bool
	ConnectionLimit int
	ProtocolLog     string
	LogLevel        string

	// Properties holds selection property overrides from the config
	// file, keyed by property name.
	Properties map[string]string
}

var config Config

func init() {
	flag.StringVar(&config.ConfigFile, "config", "", "Configuration file path (YAML)")
	flag.StringVar(&config.Address, "address", "", "Bind address (default: all interfaces)")
	flag.IntVar(&config.Port, "port", 9000, "Listen port")
	flag.StringVar(&config.Interface, "interface", "", "Restrict the listener to one network interface")
	flag.StringVar(&config.Service, "service", "", "mDNS service name to advertise (off when empty)")
	flag.StringVar(&config.CertFile, "cert", "", "TLS certificate file (PEM)")
	flag.StringVar(&config.KeyFile, "key", "", "TLS private key file (PEM)")
	flag.BoolVar(&config.NoTLS, "no-tls", false, "Listen in cleartext")
	flag.BoolVar(&config.Boundaries, "boundaries", true, "Preserve message boundaries")
	flag.IntVar(&config.ConnectionLimit, "limit", 0, "Maximum concurrent connections (0 = unlimited)")
	flag.StringVar(&config.ProtocolLog, "protocol-log", "", "File path for protocol event logging (CBOR)")
	flag.StringVar(&config.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
}

func main() {
	flag.Parse()

	setupLogging(config.LogLevel)

	if config.ConfigFile != "" {
		fc, err := loadConfigFile(config.ConfigFile)
		if err != nil {
			log.Fatalf("Failed to load config file: %v", err)
		}
		applyFileConfig(fc)
	}

	if err := validateConfig(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	log.Println("TAPS Echo Server")
	log.Println("================")
	log.Printf("Bind: %s", bindDescription())
	if config.Service != "" {
		log.Printf("Advertising: _%s._tcp", config.Service)
	}

	pre := taps.NewPreconnection()
	pre.AddLocal(localEndpoint())

	tp, err := buildTransportProperties()
	if err != nil {
		log.Fatalf("Invalid transport properties: %v", err)
	}
	pre.SetTransportProperties(tp)

	sec, err := buildSecurityParameters()
	if err != nil {
		log.Fatalf("Invalid security configuration: %v", err)
	}
	pre.SetSecurityParameters(sec)

	if config.ConnectionLimit > 0 {
		pre.SetListenerConfig(taps.ListenerConfig{ConnectionLimit: config.ConnectionLimit})
	}

	var protocolLogger *tapslog.FileLogger
	if config.ProtocolLog != "" {
		protocolLogger, err = tapslog.NewFileLogger(config.ProtocolLog)
		if err != nil {
			log.Fatalf("Failed to create protocol logger: %v", err)
		}
		defer protocolLogger.Close()
		pre.SetLogger(protocolLogger)
		log.Printf("Protocol logging to: %s", config.ProtocolLog)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	lis, err := pre.Listen(ctx)
	if err != nil {
		log.Fatalf("Failed to listen: %v", err)
	}
	log.Printf("Listening on %s", lis.Addr())
	if config.NoTLS {
		log.Println("TLS disabled; connections are cleartext")
	}

	go acceptLoop(ctx, lis)

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	log.Printf("Received signal: %v", sig)
	log.Println("Shutting down...")

	lis.Stop()
	cancel()

	log.Println("Goodbye!")
}

func setupLogging(level string) {
	log.SetFlags(log.Ltime | log.Lmicroseconds)

	switch level {
	case "debug":
		log.SetFlags(log.Ltime | log.Lmicroseconds | log.Lshortfile)
	case "warn", "error":
		log.SetFlags(log.Ltime)
	}
}

// fileConfig mirrors the YAML configuration file layout.
type fileConfig struct {
	Listen struct {
		Address   string `yaml:"address"`
		Port      int    `yaml:"port"`
		Interface string `yaml:"interface"`
		Service   string `yaml:"service"`
	} `yaml:"listen"`
	Properties map[string]string `yaml:"properties"`
	Security   struct {
		Mode     string `yaml:"mode"`
		CertFile string `yaml:"cert-file"`
		KeyFile  string `yaml:"key-file"`
	} `yaml:"security"`
	ProtocolLog     string `yaml:"protocol-log"`
	ConnectionLimit int    `yaml:"connection-limit"`
}

func loadConfigFile(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	switch fc.Security.Mode {
	case "", "tls", "none":
	default:
		return nil, fmt.Errorf("unknown security mode %q (tls, none)", fc.Security.Mode)
	}

	return &fc, nil
}

// applyFileConfig fills configuration from the file for every value not
// set explicitly on the command line.
func applyFileConfig(fc *fileConfig) {
	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if !set["address"] && fc.Listen.Address != "" {
		config.Address = fc.Listen.Address
	}
	if !set["port"] && fc.Listen.Port != 0 {
		config.Port = fc.Listen.Port
	}
	if !set["interface"] && fc.Listen.Interface != "" {
		config.Interface = fc.Listen.Interface
	}
	if !set["service"] && fc.Listen.Service != "" {
		config.Service = fc.Listen.Service
	}
	if !set["cert"] && fc.Security.CertFile != "" {
		config.CertFile = fc.Security.CertFile
	}
	if !set["key"] && fc.Security.KeyFile != "" {
		config.KeyFile = fc.Security.KeyFile
	}
	if !set["no-tls"] && fc.Security.Mode == "none" {
		config.NoTLS = true
	}
	if !set["limit"] && fc.ConnectionLimit != 0 {
		config.ConnectionLimit = fc.ConnectionLimit
	}
	if !set["protocol-log"] && fc.ProtocolLog != "" {
		config.ProtocolLog = fc.ProtocolLog
	}
	config.Properties = fc.Properties
}

func validateConfig() error {
	if config.Port < 0 || config.Port > 65535 {
		return fmt.Errorf("port must be 0-65535, got %d", config.Port)
	}
	if !config.NoTLS && config.CertFile == "" {
		return errors.New("TLS requires -cert and -key (or pass -no-tls)")
	}
	if config.CertFile != "" && config.KeyFile == "" {
		return errors.New("-cert requires -key")
	}
	if config.ConnectionLimit < 0 {
		return fmt.Errorf("connection limit must not be negative, got %d", config.ConnectionLimit)
	}
	return nil
}

func bindDescription() string {
	host := config.Address
	if host == "" {
		host = "*"
	}
	desc := net.JoinHostPort(host, fmt.Sprintf("%d", config.Port))
	if config.Interface != "" {
		desc += " on " + config.Interface
	}
	return desc
}

func localEndpoint() endpoint.Local {
	local := endpoint.NewLocal().WithPort(uint16(config.Port))
	if config.Address != "" {
		if ip := net.ParseIP(config.Address); ip != nil {
			local = local.WithAddress(ip)
		} else {
			local = local.WithHostname(config.Address)
		}
	}
	if config.Interface != "" {
		local = local.WithInterface(config.Interface)
	}
	if config.Service != "" {
		local = local.WithService(config.Service)
	}
	return local
}

func buildTransportProperties() (property.TransportProperties, error) {
	tp := property.NewTransportProperties()
	if config.Boundaries {
		tp.PreserveMsgBoundaries = property.Prefer
	}

	for name, value := range config.Properties {
		kind, ok := parseKind(name)
		if !ok {
			return tp, fmt.Errorf("unknown property %q", name)
		}
		pref, err := parsePreference(value)
		if err != nil {
			return tp, fmt.Errorf("property %q: %w", name, err)
		}
		tp.Set(kind, pref)
	}
	return tp, nil
}

// parseKind resolves a property name to its selection property. Names
// match case-insensitively with dashes and underscores ignored, so both
// "preserve-msg-boundaries" and "preserveMsgBoundaries" work.
func parseKind(name string) (property.Kind, bool) {
	want := normalizePropertyName(name)
	for k := property.KindReliability; k <= property.KindActiveReadBeforeSend; k++ {
		if normalizePropertyName(k.String()) == want {
			return k, true
		}
	}
	return 0, false
}

func normalizePropertyName(s string) string {
	return strings.ToLower(strings.NewReplacer("-", "", "_", "").Replace(s))
}

func parsePreference(s string) (property.Preference, error) {
	switch strings.ToLower(s) {
	case "require":
		return property.Require, nil
	case "prefer":
		return property.Prefer, nil
	case "no-preference", "nopreference":
		return property.NoPreference, nil
	case "avoid":
		return property.Avoid, nil
	case "prohibit":
		return property.Prohibit, nil
	default:
		return 0, fmt.Errorf("invalid preference %q (require, prefer, no-preference, avoid, prohibit)", s)
	}
}

func buildSecurityParameters() (*security.Parameters, error) {
	if config.NoTLS {
		return security.NewDisabledParameters(), nil
	}

	cert, err := tls.LoadX509KeyPair(config.CertFile, config.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load key pair: %w", err)
	}

	sec := security.NewParameters()
	sec.Identity = []tls.Certificate{cert}
	return sec, nil
}

func acceptLoop(ctx context.Context, lis *taps.Listener) {
	for {
		conn, err := lis.Accept(ctx)
		if err != nil {
			if !errors.Is(err, taps.ErrListenerStopped) && ctx.Err() == nil {
				log.Printf("Accept error: %v", err)
			}
			return
		}
		log.Printf("[%s] connection from %s (stack %s)",
			shortID(conn.ID()), conn.RemoteAddr(), conn.Stack())
		go serveEcho(ctx, conn)
	}
}

// serveEcho echoes every received message back until the peer closes
// its sending side or the connection fails.
func serveEcho(ctx context.Context, conn *taps.Connection) {
	id := shortID(conn.ID())
	var messages, bytes int

	for {
		msg, mctx, err := conn.Receive(ctx, 0, 0)
		if err != nil {
			if !errors.Is(err, taps.ErrConnectionClosed) && ctx.Err() == nil {
				log.Printf("[%s] receive error: %v", id, err)
			}
			break
		}
		if msg.Empty() && mctx.Final {
			// Clean end of stream from the peer.
			break
		}

		messages++
		bytes += msg.Len()

		if err := conn.Send(ctx, taps.NewMessage(msg.Payload())); err != nil {
			log.Printf("[%s] echo failed: %v", id, err)
			break
		}
	}

	if err := conn.Close(); err != nil {
		conn.Abort()
	}
	log.Printf("[%s] closed after %d messages (%d bytes)", id, messages, bytes)
}

// shortID returns the first 8 characters of a connection ID.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
