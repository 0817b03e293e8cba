package taps

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/taps-protocol/taps-go/pkg/endpoint"
	"github.com/taps-protocol/taps-go/pkg/log"
	"github.com/taps-protocol/taps-go/pkg/security"
	"github.com/taps-protocol/taps-go/pkg/selection"
)

// candidate is one establishment attempt: a protocol stack paired with
// a resolved remote address. Candidates are ordered stack rank first,
// resolution order second; index is the position in that order and
// scales the attempt stagger.
type candidate struct {
	stack      selection.ProtocolStack
	addr       endpoint.Resolved
	remote     endpoint.Remote
	serverName string
	index      int
}

// raceResult is what one attempt goroutine reports back.
type raceResult struct {
	conn    net.Conn
	tlsConn *tls.Conn
	cand    candidate
	err     error
	elapsed time.Duration
}

// establisher runs one establishment: resolve the remote endpoints,
// build the candidate set, and race the attempts until the first one
// completes its full handshake.
type establisher struct {
	config   EstablishConfig
	resolver *endpoint.Resolver
	security *security.Parameters
	local    endpoint.Local
	logger   log.Logger
	connID   string
}

// establish resolves, races, and returns the winning transport. A nil
// error guarantees a usable conn; any failure is reported as an
// *EstablishmentError.
func (e *establisher) establish(ctx context.Context, remotes []endpoint.Remote, stacks []selection.ProtocolStack) (net.Conn, *tls.Conn, candidate, error) {
	remoteDesc := remoteDescription(remotes)

	e.logEstablishmentState("IDLE", "RESOLVING", "")
	cands, err := e.gather(ctx, remotes, stacks)
	if err != nil {
		e.logEstablishmentState("RESOLVING", "FAILED", err.Error())
		return nil, nil, candidate{}, &EstablishmentError{
			Remote: remoteDesc,
			Reason: fmt.Sprintf("resolution failed: %v", err),
		}
	}

	e.logEstablishmentState("RESOLVING", "RACING", "")
	conn, tlsConn, won, attempts := e.race(ctx, cands)
	if conn == nil {
		e.logEstablishmentState("RACING", "FAILED", "")
		return nil, nil, candidate{}, &EstablishmentError{
			Remote:   remoteDesc,
			Attempts: attempts,
		}
	}

	e.logEstablishmentState("RACING", "ESTABLISHED", won.stack.Name)
	return conn, tlsConn, won, nil
}

// gather resolves every remote endpoint and crosses the addresses with
// the ranked stacks. Individual resolution failures are tolerated as
// long as one endpoint yields addresses. Duplicate addresses keep their
// first position.
func (e *establisher) gather(ctx context.Context, remotes []endpoint.Remote, stacks []selection.ProtocolStack) ([]candidate, error) {
	type resolvedAddr struct {
		addr       endpoint.Resolved
		remote     endpoint.Remote
		serverName string
	}

	var (
		addrs    []resolvedAddr
		firstErr error
	)
	seen := make(map[string]bool)

	for _, remote := range remotes {
		resolved, err := e.resolver.Resolve(ctx, remote)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		for _, addr := range resolved {
			key := addr.Addr()
			if seen[key] {
				continue
			}
			seen[key] = true
			addrs = append(addrs, resolvedAddr{addr: addr, remote: remote, serverName: remote.Hostname})
		}
	}

	if len(addrs) == 0 {
		if firstErr != nil {
			return nil, firstErr
		}
		return nil, endpoint.ErrNotFound
	}

	cands := make([]candidate, 0, len(stacks)*len(addrs))
	for _, stack := range stacks {
		for _, ra := range addrs {
			cands = append(cands, candidate{
				stack:      stack,
				addr:       ra.addr,
				remote:     ra.remote,
				serverName: ra.serverName,
				index:      len(cands),
			})
		}
	}
	return cands, nil
}

// race launches every candidate with a staggered start and returns the
// first one whose full handshake completes. Late successes are closed
// and logged as lost; the shared context is cancelled as soon as a
// winner exists.
func (e *establisher) race(ctx context.Context, cands []candidate) (net.Conn, *tls.Conn, candidate, []AttemptError) {
	raceCtx, cancel := context.WithTimeout(ctx, e.config.EstablishTimeout)
	defer cancel()

	results := make(chan raceResult, len(cands))
	sem := make(chan struct{}, e.config.MaxParallelAttempts)

	for _, cand := range cands {
		go e.attempt(raceCtx, cand, sem, results)
	}

	var attempts []AttemptError
	for received := 0; received < len(cands); received++ {
		res := <-results
		if res.err == nil {
			e.logCandidate(res.cand, log.OutcomeWon, res.elapsed, "")
			cancel()
			go e.drainLosers(results, len(cands)-received-1)
			return res.conn, res.tlsConn, res.cand, nil
		}
		e.logCandidate(res.cand, log.OutcomeFailed, res.elapsed, res.err.Error())
		attempts = append(attempts, AttemptError{
			Stack:   res.cand.stack.Name,
			Address: res.cand.addr.Addr(),
			Err:     res.err,
		})
	}
	return nil, nil, candidate{}, attempts
}

// attempt dials one candidate after its stagger delay, bounded by the
// parallelism semaphore. It always reports exactly one result.
func (e *establisher) attempt(ctx context.Context, cand candidate, sem chan struct{}, results chan<- raceResult) {
	if delay := time.Duration(cand.index) * e.config.AttemptDelay; delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			results <- raceResult{cand: cand, err: ctx.Err()}
			return
		}
	}

	select {
	case sem <- struct{}{}:
		defer func() { <-sem }()
	case <-ctx.Done():
		results <- raceResult{cand: cand, err: ctx.Err()}
		return
	}

	e.logCandidate(cand, log.OutcomeStarted, 0, "")
	start := time.Now()
	conn, tlsConn, err := e.dial(ctx, cand)
	results <- raceResult{
		conn:    conn,
		tlsConn: tlsConn,
		cand:    cand,
		err:     err,
		elapsed: time.Since(start),
	}
}

// dial performs the full handshake for one candidate: transport connect
// plus, for secure stacks, the TLS handshake and verification. A
// candidate only wins with everything complete.
func (e *establisher) dial(ctx context.Context, cand candidate) (net.Conn, *tls.Conn, error) {
	dialer := &net.Dialer{LocalAddr: e.localAddr(cand.stack)}

	conn, err := dialer.DialContext(ctx, cand.stack.Network(), cand.addr.Addr())
	if err != nil {
		return nil, nil, fmt.Errorf("dial failed: %w", err)
	}

	if !cand.stack.Secure {
		return conn, nil, nil
	}

	tlsCfg, err := security.ClientTLSConfig(e.security, cand.serverName)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	tlsConn := tls.Client(conn, tlsCfg)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("TLS handshake failed: %w", err)
	}
	if err := security.VerifyConnection(tlsConn.ConnectionState(), e.security); err != nil {
		tlsConn.Close()
		return nil, nil, fmt.Errorf("connection verification failed: %w", err)
	}
	return conn, tlsConn, nil
}

// localAddr translates the local endpoint specification into a dialer
// bind address. Nil means the kernel chooses.
func (e *establisher) localAddr(stack selection.ProtocolStack) net.Addr {
	if e.local.Address == nil && e.local.Port == 0 {
		return nil
	}
	ip := e.local.Address
	port := int(e.local.Port)
	if stack.ServiceClass == selection.ServiceDatagram {
		return &net.UDPAddr{IP: ip, Port: port}
	}
	return &net.TCPAddr{IP: ip, Port: port}
}

// drainLosers consumes the remaining results after a winner was picked,
// closing any connection that completed too late.
func (e *establisher) drainLosers(results <-chan raceResult, n int) {
	for i := 0; i < n; i++ {
		res := <-results
		if res.err != nil {
			continue
		}
		if res.tlsConn != nil {
			res.tlsConn.Close()
		} else if res.conn != nil {
			res.conn.Close()
		}
		e.logCandidate(res.cand, log.OutcomeLost, res.elapsed, "")
	}
}

func (e *establisher) logCandidate(cand candidate, outcome log.CandidateOutcome, elapsed time.Duration, reason string) {
	e.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: e.connID,
		Direction:    log.DirectionOut,
		Layer:        log.LayerEngine,
		Category:     log.CategoryCandidate,
		LocalRole:    log.RoleInitiator,
		RemoteAddr:   cand.addr.Addr(),
		Candidate: &log.CandidateEvent{
			Stack:   cand.stack.Name,
			Address: cand.addr.Addr(),
			Outcome: outcome,
			Elapsed: elapsed,
			Reason:  reason,
		},
	})
}

func (e *establisher) logEstablishmentState(old, new, reason string) {
	e.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: e.connID,
		Layer:        log.LayerEngine,
		Category:     log.CategoryState,
		LocalRole:    log.RoleInitiator,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityEstablishment,
			OldState: old,
			NewState: new,
			Reason:   reason,
		},
	})
}

// remoteDescription renders the remote endpoint set for error messages.
func remoteDescription(remotes []endpoint.Remote) string {
	if len(remotes) == 0 {
		return "<none>"
	}
	parts := make([]string, len(remotes))
	for i, r := range remotes {
		parts[i] = r.String()
	}
	return strings.Join(parts, ", ")
}
