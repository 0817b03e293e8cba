package endpoint

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/enbility/zeroconf/v3"
)

const (
	// Domain is the mDNS domain services are registered under.
	Domain = "local"

	// DefaultResolveTimeout bounds a Resolve call when the caller's
	// context carries no deadline.
	DefaultResolveTimeout = 5 * time.Second

	// DefaultBrowseWindow is how long service browsing keeps collecting
	// answers after the first instance appears, so addresses reported on
	// other interfaces can be merged.
	DefaultBrowseWindow = 500 * time.Millisecond
)

var (
	// ErrNoTarget reports a remote endpoint with no host, address, or
	// service to resolve.
	ErrNoTarget = errors.New("no host, address, or service to resolve")

	// ErrNotFound reports that resolution produced no usable address.
	ErrNotFound = errors.New("no addresses found")
)

// Resolved is one concrete address produced by resolution. Establishment
// races one attempt per Resolved.
type Resolved struct {
	IP   net.IP
	Port uint16
	Zone string // IPv6 scope, e.g. "eth0" for link-local addresses
}

// Addr renders the address in dialable host:port form.
func (r Resolved) Addr() string {
	host := r.IP.String()
	if r.Zone != "" {
		host += "%" + r.Zone
	}
	return net.JoinHostPort(host, strconv.Itoa(int(r.Port)))
}

// ResolverConfig controls endpoint resolution.
type ResolverConfig struct {
	// Timeout bounds a single Resolve call when the caller's context has
	// no deadline. Zero means DefaultResolveTimeout.
	Timeout time.Duration

	// BrowseWindow is the settle time after the first mDNS answer.
	// Zero means DefaultBrowseWindow.
	BrowseWindow time.Duration
}

// DefaultResolverConfig returns the default resolution settings.
func DefaultResolverConfig() ResolverConfig {
	return ResolverConfig{
		Timeout:      DefaultResolveTimeout,
		BrowseWindow: DefaultBrowseWindow,
	}
}

// Resolver turns remote endpoint specifications into concrete addresses.
// Literal IP addresses pass through, hostnames go through the system DNS
// resolver, and service names are browsed over mDNS.
type Resolver struct {
	config   ResolverConfig
	resolver *net.Resolver
}

// NewResolver creates a resolver with the given configuration.
func NewResolver(config ResolverConfig) *Resolver {
	if config.Timeout == 0 {
		config.Timeout = DefaultResolveTimeout
	}
	if config.BrowseWindow == 0 {
		config.BrowseWindow = DefaultBrowseWindow
	}
	return &Resolver{
		config:   config,
		resolver: net.DefaultResolver,
	}
}

// Resolve produces the candidate addresses for one remote endpoint.
func (r *Resolver) Resolve(ctx context.Context, remote Remote) ([]Resolved, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.Timeout)
		defer cancel()
	}

	switch {
	case remote.Address != nil:
		return []Resolved{{IP: remote.Address, Port: remote.Port}}, nil
	case remote.Service != "":
		return r.browseService(ctx, remote)
	case remote.Hostname != "":
		return r.lookupHost(ctx, remote)
	default:
		return nil, ErrNoTarget
	}
}

// ResolveAll resolves every remote endpoint and concatenates the results
// in endpoint order, dropping duplicate addresses. Individual endpoint
// failures are tolerated as long as at least one endpoint resolves.
func (r *Resolver) ResolveAll(ctx context.Context, remotes []Remote) ([]Resolved, error) {
	if len(remotes) == 0 {
		return nil, ErrNoTarget
	}

	var (
		results  []Resolved
		firstErr error
	)
	seen := make(map[string]bool)

	for _, remote := range remotes {
		addrs, err := r.Resolve(ctx, remote)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		for _, addr := range addrs {
			key := addr.Addr()
			if !seen[key] {
				seen[key] = true
				results = append(results, addr)
			}
		}
	}

	if len(results) == 0 {
		if firstErr != nil {
			return nil, firstErr
		}
		return nil, ErrNotFound
	}
	return results, nil
}

// lookupHost resolves a DNS hostname to its addresses.
func (r *Resolver) lookupHost(ctx context.Context, remote Remote) ([]Resolved, error) {
	addrs, err := r.resolver.LookupIPAddr(ctx, remote.Hostname)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %q: %w", remote.Hostname, err)
	}

	results := make([]Resolved, 0, len(addrs))
	for _, addr := range addrs {
		results = append(results, Resolved{IP: addr.IP, Port: remote.Port, Zone: addr.Zone})
	}
	if len(results) == 0 {
		return nil, ErrNotFound
	}
	return results, nil
}

// browseService discovers a service over mDNS. Addresses are aggregated
// across the entries reported per interface; browsing stops once answers
// settle or the context expires.
func (r *Resolver) browseService(ctx context.Context, remote Remote) ([]Resolved, error) {
	serviceType := "_" + remote.Service + "._tcp"

	browseCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)

	browseErr := make(chan error, 1)
	go func() {
		browseErr <- zeroconf.Browse(browseCtx, serviceType, Domain, entries, removed, browserOptions(remote.Interface)...)
	}()

	var (
		results []Resolved
		settle  <-chan time.Time
	)
	seen := make(map[string]bool)

	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				entries = nil
				continue
			}
			for _, addr := range entryAddresses(entry, remote.Port) {
				key := addr.Addr()
				if !seen[key] {
					seen[key] = true
					results = append(results, addr)
				}
			}
			if settle == nil && len(results) > 0 {
				timer := time.NewTimer(r.config.BrowseWindow)
				defer timer.Stop()
				settle = timer.C
			}

		case <-removed:
			// Resolution is a snapshot; removals only matter for
			// long-lived browsing.

		case <-settle:
			return results, nil

		case err := <-browseErr:
			if len(results) > 0 {
				return results, nil
			}
			if err != nil {
				return nil, fmt.Errorf("failed to browse %s: %w", serviceType, err)
			}
			return nil, ErrNotFound

		case <-ctx.Done():
			if len(results) > 0 {
				return results, nil
			}
			return nil, fmt.Errorf("failed to browse %s: %w", serviceType, ErrNotFound)
		}
	}
}

// browserOptions returns zeroconf client options for an optional
// interface restriction.
func browserOptions(ifaceName string) []zeroconf.ClientOption {
	var opts []zeroconf.ClientOption
	if ifaceName != "" {
		iface, err := net.InterfaceByName(ifaceName)
		if err == nil {
			opts = append(opts, zeroconf.SelectIfaces([]net.Interface{*iface}))
		}
	}
	return opts
}

// entryAddresses collects the addresses from one zeroconf entry. The
// advertised port wins over the fallback from the endpoint spec.
func entryAddresses(entry *zeroconf.ServiceEntry, fallbackPort uint16) []Resolved {
	port := uint16(entry.Port)
	if port == 0 {
		port = fallbackPort
	}

	out := make([]Resolved, 0, len(entry.AddrIPv4)+len(entry.AddrIPv6))
	for _, ip := range entry.AddrIPv4 {
		out = append(out, Resolved{IP: ip, Port: port})
	}
	for _, ip := range entry.AddrIPv6 {
		out = append(out, Resolved{IP: ip, Port: port})
	}
	return out
}
