// Command taps-shell is an interactive console for the transport
// services engine.
//
// The shell establishes connections and listeners from typed commands,
// sends and receives messages on them, and inspects connection state
// and properties. It is the quickest way to poke at a running
// taps-server or to wire two shells together on one machine.
//
// Usage:
//
//	taps-shell [flags]
//
// Flags:
//
//	-history string       Command history file (default ~/.taps-shell-history)
//	-protocol-log string  File path for protocol event logging (CBOR)
//	-log-level string     Log level: debug, info, warn, error (default "info")
//
// Commands (type "help" in the shell):
//
//	connect <host> <port> [tls|notls|opportunistic|insecure]
//	listen <address> <port>
//	send <id> <text...>
//	recv <id>
//	state <id>
//	props <id>
//	close <id>
//	abort <id>
//	interfaces
//	conns
//	quit
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/taps-protocol/taps-go/cmd/taps-shell/interactive"
	tapslog "github.com/taps-protocol/taps-go/pkg/log"
)

// Config holds the shell configuration.
// It implements interactive.ShellConfig.
type Config struct {
	HistoryFileValue string
	ProtocolLog      string
	LogLevel         string
}

// HistoryFile implements interactive.ShellConfig.
func (c *Config) HistoryFile() string {
	return c.HistoryFileValue
}

var config Config

func init() {
	flag.StringVar(&config.HistoryFileValue, "history", "", "Command history file (default ~/.taps-shell-history)")
	flag.StringVar(&config.ProtocolLog, "protocol-log", "", "File path for protocol event logging (CBOR)")
	flag.StringVar(&config.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
}

func main() {
	flag.Parse()

	setupLogging(config.LogLevel)

	if config.HistoryFileValue == "" {
		config.HistoryFileValue = defaultHistoryFile()
	}

	var protocolLogger *tapslog.FileLogger
	if config.ProtocolLog != "" {
		var err error
		protocolLogger, err = tapslog.NewFileLogger(config.ProtocolLog)
		if err != nil {
			log.Fatalf("Failed to create protocol logger: %v", err)
		}
		defer protocolLogger.Close()
	}

	sh, err := interactive.New(&config, protocolLogger)
	if err != nil {
		log.Fatalf("Failed to create shell: %v", err)
	}
	// Redirect log output through readline to avoid interfering with input
	log.SetOutput(sh.Stdout())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go sh.Run(ctx, cancel)

	// Wait for shutdown signal or the quit command
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("Received signal: %v", sig)
	case <-ctx.Done():
	}

	log.Println("Shutting down...")
	sh.Shutdown()
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

func defaultHistoryFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".taps-shell-history")
	}
	return filepath.Join(home, ".taps-shell-history")
}
