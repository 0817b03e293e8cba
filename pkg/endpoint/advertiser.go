package endpoint

import (
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/enbility/zeroconf/v3"
)

// ErrNotAdvertising reports an operation on an advertiser with no active
// registration.
var ErrNotAdvertising = errors.New("not advertising")

// AdvertiserConfig controls mDNS service registration.
type AdvertiserConfig struct {
	// Instance is the mDNS instance name. Empty derives one from the
	// host name and port.
	Instance string

	// TTL overrides the record time-to-live. Zero keeps the zeroconf
	// default.
	TTL time.Duration

	// Interface restricts advertising to one interface. Empty uses all.
	Interface string

	// Text holds optional TXT metadata records.
	Text []string
}

// Advertiser registers a service instance over mDNS so peers can resolve
// it by service name.
type Advertiser struct {
	config AdvertiserConfig

	mu     sync.Mutex
	server *zeroconf.Server
}

// NewAdvertiser creates an advertiser with the given configuration.
func NewAdvertiser(config AdvertiserConfig) *Advertiser {
	return &Advertiser{config: config}
}

// Advertise registers "_<service>._tcp" for the given port, replacing any
// previous registration.
func (a *Advertiser) Advertise(service string, port int) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}

	instance := a.config.Instance
	if instance == "" {
		host, err := os.Hostname()
		if err != nil || host == "" {
			host = "taps"
		}
		instance = fmt.Sprintf("%s-%d", host, port)
	}

	var opts []zeroconf.ServerOption
	if a.config.TTL > 0 {
		opts = append(opts, zeroconf.TTL(uint32(a.config.TTL.Seconds())))
	}

	server, err := zeroconf.Register(
		instance,
		"_"+service+"._tcp",
		Domain,
		port,
		a.config.Text,
		a.interfaces(),
		opts...,
	)
	if err != nil {
		return fmt.Errorf("failed to register service %q: %w", service, err)
	}

	a.server = server
	return nil
}

// SetText replaces the TXT metadata on the active registration.
func (a *Advertiser) SetText(text []string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server == nil {
		return ErrNotAdvertising
	}
	a.config.Text = text
	a.server.SetText(text)
	return nil
}

// Stop withdraws the advertisement. Stopping an idle advertiser is a
// no-op.
func (a *Advertiser) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}
}

// interfaces returns the interfaces to advertise on. Nil means all.
func (a *Advertiser) interfaces() []net.Interface {
	if a.config.Interface == "" {
		return nil
	}
	iface, err := net.InterfaceByName(a.config.Interface)
	if err != nil {
		return nil
	}
	return []net.Interface{*iface}
}
