package pathmon

import (
	"context"
	"sort"
	"sync"
	"time"
)

// DefaultPollInterval is the default interval between interface polls.
const DefaultPollInterval = 2 * time.Second

// ChangeKind identifies the kind of interface change.
type ChangeKind int

// Change kinds.
const (
	ChangeAdded       ChangeKind = 0
	ChangeRemoved     ChangeKind = 1
	ChangeModified    ChangeKind = 2
	ChangePathChanged ChangeKind = 3
)

// String returns a human-readable change kind name.
func (k ChangeKind) String() string {
	switch k {
	case ChangeAdded:
		return "ADDED"
	case ChangeRemoved:
		return "REMOVED"
	case ChangeModified:
		return "MODIFIED"
	case ChangePathChanged:
		return "PATH_CHANGED"
	default:
		return "UNKNOWN"
	}
}

// ChangeEvent describes one observed interface change.
type ChangeEvent struct {
	// Kind is the kind of change.
	Kind ChangeKind

	// Interface is the interface after the change. For Removed events
	// it is the last observed state.
	Interface Interface

	// Previous is the state before the change, set for Modified events.
	Previous *Interface

	// Description carries free-form path information for PathChanged
	// events.
	Description string
}

// ChangeHandler receives interface change events.
type ChangeHandler func(ChangeEvent)

// MonitorConfig configures interface monitoring.
type MonitorConfig struct {
	// PollInterval is the interval between interface polls.
	PollInterval time.Duration
}

// DefaultMonitorConfig returns the default monitor configuration.
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		PollInterval: DefaultPollInterval,
	}
}

// Monitor watches the interface table and reports changes.
type Monitor struct {
	config  MonitorConfig
	handler ChangeHandler

	// listFn is swapped in tests.
	listFn func() ([]Interface, error)

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	prev    map[string]Interface
}

// NewMonitor creates a monitor that reports changes to handler.
func NewMonitor(config MonitorConfig, handler ChangeHandler) *Monitor {
	if config.PollInterval == 0 {
		config.PollInterval = DefaultPollInterval
	}

	return &Monitor{
		config:  config,
		handler: handler,
		listFn:  List,
		stopCh:  make(chan struct{}),
	}
}

// Start begins polling for interface changes.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.stopCh = make(chan struct{})
	m.mu.Unlock()

	go m.loop(ctx)
}

// Stop stops polling.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	m.running = false
	close(m.stopCh)
}

// IsRunning returns true if the monitor is active.
func (m *Monitor) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// loop is the main polling loop.
func (m *Monitor) loop(ctx context.Context) {
	ticker := time.NewTicker(m.config.PollInterval)
	defer ticker.Stop()

	// Baseline snapshot so the first tick reports changes, not the
	// whole table.
	m.snapshot()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.poll()
		}
	}
}

// snapshot records the current interface table without emitting events.
func (m *Monitor) snapshot() {
	ifaces, err := m.listFn()
	if err != nil {
		return
	}

	m.mu.Lock()
	m.prev = byName(ifaces)
	m.mu.Unlock()
}

// poll lists interfaces, diffs against the previous snapshot, and
// delivers one event per change.
func (m *Monitor) poll() {
	ifaces, err := m.listFn()
	if err != nil {
		// Transient listing failure, keep the previous snapshot.
		return
	}

	current := byName(ifaces)

	m.mu.Lock()
	prev := m.prev
	m.prev = current
	handler := m.handler
	m.mu.Unlock()

	if handler == nil {
		return
	}

	for _, event := range diff(prev, current) {
		handler(event)
	}
}

// byName indexes interfaces by name.
func byName(ifaces []Interface) map[string]Interface {
	out := make(map[string]Interface, len(ifaces))
	for _, iface := range ifaces {
		out[iface.Name] = iface
	}
	return out
}

// diff computes change events between two snapshots in a stable order:
// current-table names sorted (added and modified), then removed names
// sorted.
func diff(prev, current map[string]Interface) []ChangeEvent {
	var events []ChangeEvent

	for _, name := range sortedNames(current) {
		iface := current[name]
		old, ok := prev[name]
		if !ok {
			events = append(events, ChangeEvent{Kind: ChangeAdded, Interface: iface})
			continue
		}
		if !old.equal(iface) {
			previous := old
			events = append(events, ChangeEvent{
				Kind:      ChangeModified,
				Interface: iface,
				Previous:  &previous,
			})
		}
	}

	for _, name := range sortedNames(prev) {
		if _, ok := current[name]; !ok {
			events = append(events, ChangeEvent{Kind: ChangeRemoved, Interface: prev[name]})
		}
	}

	return events
}

func sortedNames(ifaces map[string]Interface) []string {
	names := make([]string, 0, len(ifaces))
	for name := range ifaces {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
