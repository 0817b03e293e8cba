// Command taps-client sends messages over a connection established by
// the transport services engine and prints what comes back.
//
// Message payloads are taken from the command line arguments, or from
// standard input with -stdin (one message per line). Each payload is
// sent and the reply printed to standard output, which pairs with the
// echo behavior of taps-server.
//
// Usage:
//
//	taps-client [flags] [payload ...]
//
// Flags:
//
//	-config string        Configuration file path (YAML)
//	-host string          Remote host (IP address or name)
//	-port int             Remote port (default 9000)
//	-service string       Discover the peer via mDNS instead of host/port
//	-count int            Send the payload sequence this many times (default 1)
//	-interval duration    Delay between repetitions
//	-timeout duration     Establishment timeout (default 10s)
//	-boundaries           Preserve message boundaries (default true)
//	-no-tls               Connect in cleartext
//	-opportunistic        Attempt TLS but accept cleartext
//	-insecure             Skip peer certificate verification
//	-ca string            CA bundle for peer verification (PEM)
//	-server-name string   Override the name used for peer verification
//	-stdin                Read payload lines from standard input
//	-protocol-log string  File path for protocol event logging (CBOR)
//	-log-level string     Log level: debug, info, warn, error (default "info")
//
// Examples:
//
//	# Send one message to a cleartext server
//	taps-client -host 127.0.0.1 -no-tls "hello"
//
//	# Send three payloads twice over TLS, trusting a local CA
//	taps-client -host echo.local -ca ca.pem -count 2 one two three
//
//	# Stream stdin lines to a server discovered over mDNS
//	taps-client -service echo -insecure -stdin
package main

import (
	"bufio"
	"context"
	"crypto/x509"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/taps-protocol/taps-go/pkg/endpoint"
	tapslog "github.com/taps-protocol/taps-go/pkg/log"
	"github.com/taps-protocol/taps-go/pkg/property"
	"github.com/taps-protocol/taps-go/pkg/security"
	"github.com/taps-protocol/taps-go/pkg/taps"
)

// Config holds the client configuration.
type Config struct {
	ConfigFile    string
	Host          string
	Port          int
	Service       string
	Count         int
	Interval      time.Duration
	Timeout       time.Duration
	Boundaries    bool
	NoTLS         bool
	Opportunistic bool
	Insecure      bool
	CAFile        string
	ServerName    string
	Stdin         bool
	ProtocolLog   string
	LogLevel      string
}

var config Config

func init() {
	flag.StringVar(&config.ConfigFile, "config", "", "Configuration file path (YAML)")
	flag.StringVar(&config.Host, "host", "", "Remote host (IP address or name)")
	flag.IntVar(&config.Port, "port", 9000, "Remote port")
	flag.StringVar(&config.Service, "service", "", "Discover the peer via mDNS instead of host/port")
	flag.IntVar(&config.Count, "count", 1, "Send the payload sequence this many times")
	flag.DurationVar(&config.Interval, "interval", 0, "Delay between repetitions")
	flag.DurationVar(&config.Timeout, "timeout", 10*time.Second, "Establishment timeout")
	flag.BoolVar(&config.Boundaries, "boundaries", true, "Preserve message boundaries")
	flag.BoolVar(&config.NoTLS, "no-tls", false, "Connect in cleartext")
	flag.BoolVar(&config.Opportunistic, "opportunistic", false, "Attempt TLS but accept cleartext")
	flag.BoolVar(&config.Insecure, "insecure", false, "Skip peer certificate verification")
	flag.StringVar(&config.CAFile, "ca", "", "CA bundle for peer verification (PEM)")
	flag.StringVar(&config.ServerName, "server-name", "", "Override the name used for peer verification")
	flag.BoolVar(&config.Stdin, "stdin", false, "Read payload lines from standard input")
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

	pre := taps.NewPreconnection()
	pre.AddRemote(remoteEndpoint())

	tp := property.NewTransportProperties()
	if config.Boundaries {
		tp.PreserveMsgBoundaries = property.Prefer
	}
	pre.SetTransportProperties(tp)

	sec, err := buildSecurityParameters()
	if err != nil {
		log.Fatalf("Invalid security configuration: %v", err)
	}
	pre.SetSecurityParameters(sec)

	if config.ProtocolLog != "" {
		protocolLogger, err := tapslog.NewFileLogger(config.ProtocolLog)
		if err != nil {
			log.Fatalf("Failed to create protocol logger: %v", err)
		}
		defer protocolLogger.Close()
		pre.SetLogger(protocolLogger)
		log.Printf("Protocol logging to: %s", config.ProtocolLog)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Cancel outstanding operations on interrupt.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("Interrupted")
		cancel()
	}()

	ictx, icancel := context.WithTimeout(ctx, config.Timeout)
	conn, err := pre.Initiate(ictx)
	icancel()
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	log.Printf("Connected to %s (stack %s)", conn.RemoteAddr(), conn.Stack())

	var sent, received, sentBytes, receivedBytes int
	exchange := func(payload []byte) error {
		if err := conn.Send(ctx, taps.NewMessage(payload)); err != nil {
			return fmt.Errorf("send failed: %w", err)
		}
		sent++
		sentBytes += len(payload)

		msg, _, err := conn.Receive(ctx, 0, 0)
		if err != nil {
			return fmt.Errorf("receive failed: %w", err)
		}
		received++
		receivedBytes += msg.Len()
		fmt.Println(string(msg.Payload()))
		return nil
	}

	if config.Stdin {
		err = exchangeStdin(ctx, exchange)
	} else {
		err = exchangePayloads(ctx, payloads(), exchange)
	}
	if err != nil {
		conn.Abort()
		log.Fatalf("Exchange failed: %v", err)
	}

	if err := conn.Close(); err != nil {
		log.Printf("Close error: %v", err)
	}
	log.Printf("Sent %d messages (%d bytes), received %d messages (%d bytes)",
		sent, sentBytes, received, receivedBytes)
}

// payloads returns the message payloads from the command line, falling
// back to a single "ping".
func payloads() [][]byte {
	args := flag.Args()
	if len(args) == 0 {
		return [][]byte{[]byte("ping")}
	}
	out := make([][]byte, len(args))
	for i, a := range args {
		out[i] = []byte(a)
	}
	return out
}

func exchangePayloads(ctx context.Context, payloads [][]byte, exchange func([]byte) error) error {
	for i := 0; i < config.Count; i++ {
		for _, p := range payloads {
			if err := exchange(p); err != nil {
				return err
			}
		}
		if config.Interval > 0 && i < config.Count-1 {
			select {
			case <-time.After(config.Interval):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return nil
}

func exchangeStdin(ctx context.Context, exchange func([]byte) error) error {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := scanner.Text()
		if line == "" {
			continue
		}
		if err := exchange([]byte(line)); err != nil {
			return err
		}
	}
	return scanner.Err()
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
	Remote struct {
		Host    string `yaml:"host"`
		Port    int    `yaml:"port"`
		Service string `yaml:"service"`
	} `yaml:"remote"`
	Security struct {
		Mode       string `yaml:"mode"`
		CAFile     string `yaml:"ca-file"`
		ServerName string `yaml:"server-name"`
		Insecure   bool   `yaml:"insecure"`
	} `yaml:"security"`
	ProtocolLog string `yaml:"protocol-log"`
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
	case "", "tls", "none", "opportunistic":
	default:
		return nil, fmt.Errorf("unknown security mode %q (tls, none, opportunistic)", fc.Security.Mode)
	}

	return &fc, nil
}

// applyFileConfig fills configuration from the file for every value not
// set explicitly on the command line.
func applyFileConfig(fc *fileConfig) {
	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if !set["host"] && fc.Remote.Host != "" {
		config.Host = fc.Remote.Host
	}
	if !set["port"] && fc.Remote.Port != 0 {
		config.Port = fc.Remote.Port
	}
	if !set["service"] && fc.Remote.Service != "" {
		config.Service = fc.Remote.Service
	}
	if !set["no-tls"] && fc.Security.Mode == "none" {
		config.NoTLS = true
	}
	if !set["opportunistic"] && fc.Security.Mode == "opportunistic" {
		config.Opportunistic = true
	}
	if !set["insecure"] && fc.Security.Insecure {
		config.Insecure = true
	}
	if !set["ca"] && fc.Security.CAFile != "" {
		config.CAFile = fc.Security.CAFile
	}
	if !set["server-name"] && fc.Security.ServerName != "" {
		config.ServerName = fc.Security.ServerName
	}
	if !set["protocol-log"] && fc.ProtocolLog != "" {
		config.ProtocolLog = fc.ProtocolLog
	}
}

func validateConfig() error {
	if config.Host == "" && config.Service == "" {
		return errors.New("a remote is required (-host or -service)")
	}
	if config.Host != "" && config.Service != "" {
		return errors.New("-host and -service are mutually exclusive")
	}
	if config.Port < 0 || config.Port > 65535 {
		return fmt.Errorf("port must be 0-65535, got %d", config.Port)
	}
	if config.NoTLS && config.Opportunistic {
		return errors.New("-no-tls and -opportunistic are mutually exclusive")
	}
	if config.NoTLS && (config.Insecure || config.CAFile != "") {
		return errors.New("-insecure and -ca have no effect with -no-tls")
	}
	if config.Count < 1 {
		return fmt.Errorf("count must be at least 1, got %d", config.Count)
	}
	return nil
}

func remoteEndpoint() endpoint.Remote {
	remote := endpoint.NewRemote()
	if config.Service != "" {
		return remote.WithService(config.Service)
	}
	if ip := net.ParseIP(config.Host); ip != nil {
		remote = remote.WithAddress(ip)
	} else {
		remote = remote.WithHostname(config.Host)
	}
	return remote.WithPort(uint16(config.Port))
}

func buildSecurityParameters() (*security.Parameters, error) {
	if config.NoTLS {
		return security.NewDisabledParameters(), nil
	}

	sec := security.NewParameters()
	if config.Opportunistic {
		sec = security.NewOpportunisticParameters()
	}
	if config.ServerName != "" {
		sec.ServerName = config.ServerName
	}
	if config.Insecure {
		sec.SetTrustVerificationCallback(func([][]byte, [][]*x509.Certificate) error {
			return nil
		})
	}
	if config.CAFile != "" {
		pem, err := os.ReadFile(config.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA bundle: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", config.CAFile)
		}
		sec.RootCAs = pool
	}
	return sec, nil
}
