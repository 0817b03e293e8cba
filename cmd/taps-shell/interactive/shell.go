// Package interactive provides the interactive command loop for
// taps-shell.
package interactive

import (
	"context"
	"crypto/x509"
	"fmt"
	"io"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chzyer/readline"

	"github.com/taps-protocol/taps-go/pkg/endpoint"
	tapslog "github.com/taps-protocol/taps-go/pkg/log"
	"github.com/taps-protocol/taps-go/pkg/pathmon"
	"github.com/taps-protocol/taps-go/pkg/property"
	"github.com/taps-protocol/taps-go/pkg/security"
	"github.com/taps-protocol/taps-go/pkg/taps"
)

// Operation timeouts for interactive commands.
const (
	connectTimeout = 15 * time.Second
	sendTimeout    = 10 * time.Second
	recvTimeout    = 5 * time.Second
)

// ShellConfig provides configuration information to the interactive
// shell. This interface allows the interactive layer to access settings
// without depending on the main package's config structure.
type ShellConfig interface {
	// HistoryFile returns the path of the command history file.
	HistoryFile() string
}

var completer = readline.NewPrefixCompleter(
	readline.PcItem("connect"),
	readline.PcItem("listen"),
	readline.PcItem("send"),
	readline.PcItem("recv"),
	readline.PcItem("state"),
	readline.PcItem("props"),
	readline.PcItem("close"),
	readline.PcItem("abort"),
	readline.PcItem("interfaces"),
	readline.PcItem("conns"),
	readline.PcItem("help"),
	readline.PcItem("quit"),
)

// listenerEntry tracks one active listener and its accept loop.
type listenerEntry struct {
	lis    *taps.Listener
	cancel context.CancelFunc
}

// Shell handles interactive mode for taps-shell.
type Shell struct {
	rl     *readline.Instance
	logger tapslog.Logger

	mu        sync.Mutex
	conns     map[int]*taps.Connection
	listeners map[int]*listenerEntry
	nextID    int
}

// New creates a new interactive shell handler. logger may be nil; when
// set it receives the protocol events of every connection the shell
// creates.
func New(cfg ShellConfig, logger *tapslog.FileLogger) (*Shell, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "taps> ",
		HistoryFile:     cfg.HistoryFile(),
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}

	s := &Shell{
		rl:        rl,
		conns:     make(map[int]*taps.Connection),
		listeners: make(map[int]*listenerEntry),
	}
	// Only set logger when non-nil to avoid typed-nil interface issue
	if logger != nil {
		s.logger = logger
	}
	return s, nil
}

// Stdout returns a writer that properly coordinates with the readline
// input. Use this for log output to avoid interfering with the prompt.
func (s *Shell) Stdout() io.Writer {
	return s.rl.Stdout()
}

// Stderr returns a writer that properly coordinates with the readline
// input.
func (s *Shell) Stderr() io.Writer {
	return s.rl.Stderr()
}

// Run starts the interactive command loop.
func (s *Shell) Run(ctx context.Context, cancel context.CancelFunc) {
	defer s.rl.Close()

	s.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := s.rl.Readline()
		if err != nil {
			// EOF or interrupt
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(s.rl.Stdout(), "Exiting...")
			cancel()
			return
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		parts := strings.Fields(input)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "help", "?":
			s.printHelp()

		case "connect", "c":
			s.cmdConnect(args)

		case "listen", "l":
			s.cmdListen(args)

		case "send", "s":
			s.cmdSend(args)

		case "recv", "r":
			s.cmdRecv(args)

		case "state", "st":
			s.cmdState(args)

		case "props", "p":
			s.cmdProps(args)

		case "close":
			s.cmdClose(args)

		case "abort":
			s.cmdAbort(args)

		case "interfaces", "if":
			s.cmdInterfaces()

		case "conns", "ls":
			s.cmdList()

		case "quit", "exit", "q":
			fmt.Fprintln(s.rl.Stdout(), "Exiting...")
			cancel()
			return

		default:
			fmt.Fprintf(s.rl.Stdout(), "Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}
}

// Shutdown aborts every connection and stops every listener.
func (s *Shell) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, conn := range s.conns {
		conn.Abort()
	}
	s.conns = make(map[int]*taps.Connection)

	for _, entry := range s.listeners {
		entry.cancel()
		entry.lis.Stop()
	}
	s.listeners = make(map[int]*listenerEntry)
}

func (s *Shell) printHelp() {
	fmt.Fprintln(s.rl.Stdout(), `
TAPS Shell Commands:
  Establishment:
    connect <host> <port> [mode]  - Connect to a peer. Modes: tls (default),
                                    notls, opportunistic, insecure
    listen <address> <port>       - Start a cleartext listener; accepted
                                    connections are registered automatically

  Messaging:
    send <id> <text...>  - Send a message on a connection
    recv <id>            - Receive one message (5s timeout)

  Inspection:
    state <id>           - Show connection or listener state
    props <id>           - Show connection properties
    conns                - List connections and listeners
    interfaces           - List network interfaces

  Teardown:
    close <id>           - Close a connection gracefully (or stop a listener)
    abort <id>           - Abort a connection immediately

  General:
    help                 - Show this help
    quit                 - Exit shell`)
}

// register stores an object under the next free ID.
func (s *Shell) registerConn(conn *taps.Connection) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.conns[s.nextID] = conn
	return s.nextID
}

func (s *Shell) registerListener(entry *listenerEntry) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.listeners[s.nextID] = entry
	return s.nextID
}

// lookupConn resolves a connection argument, printing the problem when
// it cannot.
func (s *Shell) lookupConn(arg string) (int, *taps.Connection) {
	id, err := strconv.Atoi(arg)
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Invalid ID: %s\n", arg)
		return 0, nil
	}

	s.mu.Lock()
	conn := s.conns[id]
	s.mu.Unlock()

	if conn == nil {
		fmt.Fprintf(s.rl.Stdout(), "No connection with ID %d (use 'conns' to list)\n", id)
		return 0, nil
	}
	return id, conn
}

// cmdConnect handles the connect command.
func (s *Shell) cmdConnect(args []string) {
	if len(args) < 2 {
		fmt.Fprintln(s.rl.Stdout(), "Usage: connect <host> <port> [tls|notls|opportunistic|insecure]")
		return
	}

	port, err := strconv.ParseUint(args[1], 10, 16)
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Invalid port: %s\n", args[1])
		return
	}

	mode := "tls"
	if len(args) >= 3 {
		mode = strings.ToLower(args[2])
	}

	sec, err := securityForMode(mode)
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "%v\n", err)
		return
	}

	remote := endpoint.NewRemote().WithPort(uint16(port))
	if ip := net.ParseIP(args[0]); ip != nil {
		remote = remote.WithAddress(ip)
	} else {
		remote = remote.WithHostname(args[0])
	}

	pre := taps.NewPreconnection()
	pre.AddRemote(remote)
	pre.SetTransportProperties(shellProperties())
	pre.SetSecurityParameters(sec)
	if s.logger != nil {
		pre.SetLogger(s.logger)
	}

	fmt.Fprintf(s.rl.Stdout(), "Connecting to %s:%d (%s)...\n", args[0], port, mode)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	conn, err := pre.Initiate(ctx)
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Connect failed: %v\n", err)
		return
	}

	id := s.registerConn(conn)
	fmt.Fprintf(s.rl.Stdout(), "Connection %d ready: %s -> %s (stack %s)\n",
		id, conn.LocalAddr(), conn.RemoteAddr(), conn.Stack())
}

// cmdListen handles the listen command.
func (s *Shell) cmdListen(args []string) {
	if len(args) < 2 {
		fmt.Fprintln(s.rl.Stdout(), "Usage: listen <address> <port>")
		fmt.Fprintln(s.rl.Stdout(), "  Example: listen 127.0.0.1 9000 (port 0 picks a free port)")
		return
	}

	port, err := strconv.ParseUint(args[1], 10, 16)
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Invalid port: %s\n", args[1])
		return
	}

	local := endpoint.NewLocal().WithPort(uint16(port))
	if ip := net.ParseIP(args[0]); ip != nil {
		local = local.WithAddress(ip)
	} else if args[0] != "*" {
		local = local.WithHostname(args[0])
	}

	pre := taps.NewPreconnection()
	pre.AddLocal(local)
	pre.SetTransportProperties(shellProperties())
	pre.SetSecurityParameters(security.NewDisabledParameters())
	if s.logger != nil {
		pre.SetLogger(s.logger)
	}

	ctx, cancel := context.WithCancel(context.Background())
	lis, err := pre.Listen(ctx)
	if err != nil {
		cancel()
		fmt.Fprintf(s.rl.Stdout(), "Listen failed: %v\n", err)
		return
	}

	id := s.registerListener(&listenerEntry{lis: lis, cancel: cancel})
	go s.acceptLoop(ctx, id, lis)

	fmt.Fprintf(s.rl.Stdout(), "Listener %d active on %s (cleartext; connect with 'notls')\n",
		id, lis.Addr())
}

// acceptLoop registers connections delivered by a listener and
// announces them above the prompt.
func (s *Shell) acceptLoop(ctx context.Context, lid int, lis *taps.Listener) {
	for {
		conn, err := lis.Accept(ctx)
		if err != nil {
			return
		}
		id := s.registerConn(conn)
		fmt.Fprintf(s.rl.Stdout(), "\n[listener %d] accepted connection %d from %s\n",
			lid, id, conn.RemoteAddr())
		s.rl.Refresh()
	}
}

// cmdSend handles the send command.
func (s *Shell) cmdSend(args []string) {
	if len(args) < 2 {
		fmt.Fprintln(s.rl.Stdout(), "Usage: send <id> <text...>")
		return
	}

	id, conn := s.lookupConn(args[0])
	if conn == nil {
		return
	}

	payload := strings.Join(args[1:], " ")

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	if err := conn.Send(ctx, taps.NewMessageString(payload)); err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Send failed: %v\n", err)
		return
	}
	fmt.Fprintf(s.rl.Stdout(), "Sent %d bytes on connection %d\n", len(payload), id)
}

// cmdRecv handles the recv command.
func (s *Shell) cmdRecv(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(s.rl.Stdout(), "Usage: recv <id>")
		return
	}

	id, conn := s.lookupConn(args[0])
	if conn == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), recvTimeout)
	defer cancel()

	msg, mctx, err := conn.Receive(ctx, 0, 0)
	if err != nil {
		if ctx.Err() != nil {
			fmt.Fprintf(s.rl.Stdout(), "Nothing received within %s\n", recvTimeout)
		} else {
			fmt.Fprintf(s.rl.Stdout(), "Receive failed: %v\n", err)
		}
		return
	}

	if msg.Empty() && mctx.Final {
		fmt.Fprintf(s.rl.Stdout(), "Connection %d: end of stream\n", id)
		return
	}
	fmt.Fprintf(s.rl.Stdout(), "Received %d bytes: %q\n", msg.Len(), string(msg.Payload()))
}

// cmdState handles the state command.
func (s *Shell) cmdState(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(s.rl.Stdout(), "Usage: state <id>")
		return
	}

	id, err := strconv.Atoi(args[0])
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Invalid ID: %s\n", args[0])
		return
	}

	s.mu.Lock()
	conn := s.conns[id]
	entry := s.listeners[id]
	s.mu.Unlock()

	switch {
	case conn != nil:
		fmt.Fprintf(s.rl.Stdout(), "Connection %d: %s\n", id, conn.State())
		fmt.Fprintf(s.rl.Stdout(), "  Stack:  %s\n", conn.Stack())
		fmt.Fprintf(s.rl.Stdout(), "  Local:  %s\n", conn.LocalAddr())
		fmt.Fprintf(s.rl.Stdout(), "  Remote: %s\n", conn.RemoteAddr())
		if err := conn.CloseError(); err != nil {
			fmt.Fprintf(s.rl.Stdout(), "  Cause:  %v\n", err)
		}
	case entry != nil:
		status := "stopped"
		if entry.lis.IsRunning() {
			status = "active"
		}
		fmt.Fprintf(s.rl.Stdout(), "Listener %d: %s on %s\n", id, status, entry.lis.Addr())
	default:
		fmt.Fprintf(s.rl.Stdout(), "No connection or listener with ID %d\n", id)
	}
}

// cmdProps handles the props command.
func (s *Shell) cmdProps(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(s.rl.Stdout(), "Usage: props <id>")
		return
	}

	_, conn := s.lookupConn(args[0])
	if conn == nil {
		return
	}

	tp := conn.TransportProperties()
	fmt.Fprintln(s.rl.Stdout(), "Selection properties:")
	fmt.Fprintf(s.rl.Stdout(), "  reliability:           %s\n", tp.Reliability)
	fmt.Fprintf(s.rl.Stdout(), "  preserveMsgBoundaries: %s\n", tp.PreserveMsgBoundaries)
	fmt.Fprintf(s.rl.Stdout(), "  preserveOrder:         %s\n", tp.PreserveOrder)
	fmt.Fprintf(s.rl.Stdout(), "  congestionControl:     %s\n", tp.CongestionControl)
	fmt.Fprintf(s.rl.Stdout(), "  keepAlive:             %s\n", tp.KeepAlive)
	fmt.Fprintf(s.rl.Stdout(), "  multipath:             %s\n", tp.Multipath)
	fmt.Fprintf(s.rl.Stdout(), "  direction:             %s\n", tp.Direction)

	props := conn.Properties().All()
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Fprintln(s.rl.Stdout(), "Connection properties:")
	for _, k := range keys {
		fmt.Fprintf(s.rl.Stdout(), "  %-32s %v\n", k+":", props[k])
	}
}

// cmdClose handles the close command. Connections close gracefully;
// listener IDs stop the listener.
func (s *Shell) cmdClose(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(s.rl.Stdout(), "Usage: close <id>")
		return
	}

	id, err := strconv.Atoi(args[0])
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Invalid ID: %s\n", args[0])
		return
	}

	s.mu.Lock()
	conn := s.conns[id]
	entry := s.listeners[id]
	delete(s.conns, id)
	delete(s.listeners, id)
	s.mu.Unlock()

	switch {
	case conn != nil:
		if err := conn.Close(); err != nil {
			fmt.Fprintf(s.rl.Stdout(), "Close failed: %v\n", err)
			return
		}
		fmt.Fprintf(s.rl.Stdout(), "Connection %d closed\n", id)
	case entry != nil:
		entry.cancel()
		entry.lis.Stop()
		fmt.Fprintf(s.rl.Stdout(), "Listener %d stopped\n", id)
	default:
		fmt.Fprintf(s.rl.Stdout(), "No connection or listener with ID %d\n", id)
	}
}

// cmdAbort handles the abort command.
func (s *Shell) cmdAbort(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(s.rl.Stdout(), "Usage: abort <id>")
		return
	}

	id, conn := s.lookupConn(args[0])
	if conn == nil {
		return
	}

	s.mu.Lock()
	delete(s.conns, id)
	s.mu.Unlock()

	conn.Abort()
	fmt.Fprintf(s.rl.Stdout(), "Connection %d aborted\n", id)
}

// cmdInterfaces handles the interfaces command.
func (s *Shell) cmdInterfaces() {
	ifaces, err := pathmon.List()
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Failed to list interfaces: %v\n", err)
		return
	}

	fmt.Fprintf(s.rl.Stdout(), "\nNetwork Interfaces (%d):\n", len(ifaces))
	fmt.Fprintln(s.rl.Stdout(), "-------------------------------------------")
	for _, it := range ifaces {
		fmt.Fprintf(s.rl.Stdout(), "  %-8s idx=%-3d %-4s %-9s", it.Name, it.Index, it.Status, it.Type)
		if it.Expensive {
			fmt.Fprint(s.rl.Stdout(), " expensive")
		}
		fmt.Fprintln(s.rl.Stdout())
		for _, addr := range it.Addrs {
			fmt.Fprintf(s.rl.Stdout(), "           %s\n", addr)
		}
	}
	fmt.Fprintln(s.rl.Stdout())
}

// cmdList handles the conns command.
func (s *Shell) cmdList() {
	s.mu.Lock()
	connIDs := make([]int, 0, len(s.conns))
	for id := range s.conns {
		connIDs = append(connIDs, id)
	}
	lisIDs := make([]int, 0, len(s.listeners))
	for id := range s.listeners {
		lisIDs = append(lisIDs, id)
	}
	conns := make(map[int]*taps.Connection, len(s.conns))
	for id, c := range s.conns {
		conns[id] = c
	}
	listeners := make(map[int]*listenerEntry, len(s.listeners))
	for id, e := range s.listeners {
		listeners[id] = e
	}
	s.mu.Unlock()

	sort.Ints(connIDs)
	sort.Ints(lisIDs)

	if len(connIDs) == 0 && len(lisIDs) == 0 {
		fmt.Fprintln(s.rl.Stdout(), "No connections or listeners")
		return
	}

	if len(connIDs) > 0 {
		fmt.Fprintf(s.rl.Stdout(), "\nConnections (%d):\n", len(connIDs))
		for _, id := range connIDs {
			c := conns[id]
			fmt.Fprintf(s.rl.Stdout(), "  %-3d %-13s %s -> %s\n",
				id, c.State(), c.LocalAddr(), c.RemoteAddr())
		}
	}
	if len(lisIDs) > 0 {
		fmt.Fprintf(s.rl.Stdout(), "\nListeners (%d):\n", len(lisIDs))
		for _, id := range lisIDs {
			e := listeners[id]
			status := "stopped"
			if e.lis.IsRunning() {
				status = "active"
			}
			fmt.Fprintf(s.rl.Stdout(), "  %-3d %-13s %s\n", id, status, e.lis.Addr())
		}
	}
	fmt.Fprintln(s.rl.Stdout())
}

// shellProperties returns the transport properties every shell
// connection uses: the stream defaults with message boundaries
// preferred, so send and recv line up one to one.
func shellProperties() property.TransportProperties {
	tp := property.NewTransportProperties()
	tp.PreserveMsgBoundaries = property.Prefer
	return tp
}

// securityForMode maps a connect mode argument to security parameters.
func securityForMode(mode string) (*security.Parameters, error) {
	switch mode {
	case "tls":
		return security.NewParameters(), nil
	case "notls":
		return security.NewDisabledParameters(), nil
	case "opportunistic":
		return security.NewOpportunisticParameters(), nil
	case "insecure":
		sec := security.NewParameters()
		sec.SetTrustVerificationCallback(func([][]byte, [][]*x509.Certificate) error {
			return nil
		})
		return sec, nil
	default:
		return nil, fmt.Errorf("unknown mode: %s (tls, notls, opportunistic, insecure)", mode)
	}
}
