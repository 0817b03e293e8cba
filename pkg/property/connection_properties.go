package property

import (
	"errors"
	"sync"
	"time"
)

// ErrReadOnlyProperty is returned when setting a property the connection
// maintains itself.
var ErrReadOnlyProperty = errors.New("property is read-only")

// Keys for generic connection properties.
const (
	KeyRecvChecksumLen     = "recvChecksumLen"
	KeyConnPriority        = "connPriority"
	KeyConnTimeout         = "connTimeout"
	KeyKeepAliveTimeout    = "keepAliveTimeout"
	KeyConnScheduler       = "connScheduler"
	KeyConnCapacityProfile = "connCapacityProfile"
	KeyMultipathPolicy     = "multipathPolicy"
	KeyMinSendRate         = "minSendRate"
	KeyMaxSendRate         = "maxSendRate"
	KeyMinRecvRate         = "minRecvRate"
	KeyMaxRecvRate         = "maxRecvRate"
	KeyGroupConnLimit      = "groupConnLimit"
	KeyIsolateSession      = "isolateSession"
)

// Keys for read-only connection properties.
const (
	KeyConnState                     = "connState"
	KeyCanSend                       = "canSend"
	KeyCanReceive                    = "canReceive"
	KeySingularTransmissionMsgMaxLen = "singularTransmissionMsgMaxLen"
	KeySendMsgMaxLen                 = "sendMsgMaxLen"
	KeyRecvMsgMaxLen                 = "recvMsgMaxLen"
)

// Keys for TCP-specific connection properties.
const (
	KeyTCPUserTimeoutValue      = "tcp.userTimeoutValue"
	KeyTCPUserTimeoutEnabled    = "tcp.userTimeoutEnabled"
	KeyTCPUserTimeoutChangeable = "tcp.userTimeoutChangeable"
)

// readOnlyKeys reject Set; the connection refreshes them itself.
var readOnlyKeys = map[string]struct{}{
	KeyConnState:                     {},
	KeyCanSend:                       {},
	KeyCanReceive:                    {},
	KeySingularTransmissionMsgMaxLen: {},
	KeySendMsgMaxLen:                 {},
	KeyRecvMsgMaxLen:                 {},
}

// ChecksumCoverage is the minimum number of bytes of a received message
// that must be covered by a checksum.
type ChecksumCoverage int

// FullCoverage requires the whole message to be covered.
const FullCoverage ChecksumCoverage = -1

// Scheduler selects how connections in a group share capacity.
type Scheduler uint8

const (
	SchedulerWeightedFairQueueing Scheduler = iota
	SchedulerFIFO
	SchedulerRoundRobin
	SchedulerProportionalRate
)

// String returns the scheduler name.
func (s Scheduler) String() string {
	switch s {
	case SchedulerWeightedFairQueueing:
		return "WEIGHTED_FAIR_QUEUEING"
	case SchedulerFIFO:
		return "FIFO"
	case SchedulerRoundRobin:
		return "ROUND_ROBIN"
	case SchedulerProportionalRate:
		return "PROPORTIONAL_RATE"
	default:
		return "UNKNOWN"
	}
}

// CapacityProfile describes the desired network treatment for the
// connection's traffic.
type CapacityProfile uint8

const (
	ProfileDefault CapacityProfile = iota
	ProfileLowLatencyInteractive
	ProfileLowLatencyNonInteractive
	ProfileConstantRateStreaming
	ProfileCapacitySeeking
)

// String returns the capacity profile name.
func (c CapacityProfile) String() string {
	switch c {
	case ProfileDefault:
		return "DEFAULT"
	case ProfileLowLatencyInteractive:
		return "LOW_LATENCY_INTERACTIVE"
	case ProfileLowLatencyNonInteractive:
		return "LOW_LATENCY_NON_INTERACTIVE"
	case ProfileConstantRateStreaming:
		return "CONSTANT_RATE_STREAMING"
	case ProfileCapacitySeeking:
		return "CAPACITY_SEEKING"
	default:
		return "UNKNOWN"
	}
}

// MultipathPolicy is the local policy for spreading data across paths
// once multipath is negotiated.
type MultipathPolicy uint8

const (
	// PolicyHandover uses one path at a time, failing over when needed.
	PolicyHandover MultipathPolicy = iota

	// PolicyActive uses multiple paths simultaneously.
	PolicyActive

	// PolicyRedundant duplicates data across paths.
	PolicyRedundant
)

// String returns the multipath policy name.
func (m MultipathPolicy) String() string {
	switch m {
	case PolicyHandover:
		return "HANDOVER"
	case PolicyActive:
		return "ACTIVE"
	case PolicyRedundant:
		return "REDUNDANT"
	default:
		return "UNKNOWN"
	}
}

// Rate is a transfer rate bound in bits per second.
type Rate uint64

// UnlimitedRate places no bound on the rate.
const UnlimitedRate Rate = 0

// UnlimitedConnections places no bound on group membership.
const UnlimitedConnections = -1

// DisabledTimeout marks a timeout property as disabled.
const DisabledTimeout time.Duration = 0

// ConnectionProperties holds the string-keyed runtime properties of a
// connection. Unlike TransportProperties these stay mutable for the
// connection's lifetime; read-only keys are maintained by the connection
// itself and reject Set.
type ConnectionProperties struct {
	mu     sync.RWMutex
	values map[string]any
}

// NewConnectionProperties returns connection properties populated with
// defaults.
func NewConnectionProperties() *ConnectionProperties {
	return &ConnectionProperties{
		values: map[string]any{
			KeyRecvChecksumLen:          FullCoverage,
			KeyConnPriority:             uint32(100),
			KeyConnTimeout:              DisabledTimeout,
			KeyKeepAliveTimeout:         DisabledTimeout,
			KeyConnScheduler:            SchedulerWeightedFairQueueing,
			KeyConnCapacityProfile:      ProfileDefault,
			KeyMultipathPolicy:          PolicyHandover,
			KeyMinSendRate:              UnlimitedRate,
			KeyMaxSendRate:              UnlimitedRate,
			KeyMinRecvRate:              UnlimitedRate,
			KeyMaxRecvRate:              UnlimitedRate,
			KeyGroupConnLimit:           UnlimitedConnections,
			KeyIsolateSession:           false,
			KeyTCPUserTimeoutEnabled:    false,
			KeyTCPUserTimeoutChangeable: true,
		},
	}
}

// Set assigns a value to key. Read-only keys return ErrReadOnlyProperty.
func (cp *ConnectionProperties) Set(key string, value any) error {
	if _, ok := readOnlyKeys[key]; ok {
		return ErrReadOnlyProperty
	}

	cp.mu.Lock()
	defer cp.mu.Unlock()
	cp.values[key] = value
	return nil
}

// Get returns the value stored for key.
func (cp *ConnectionProperties) Get(key string) (any, bool) {
	cp.mu.RLock()
	defer cp.mu.RUnlock()
	v, ok := cp.values[key]
	return v, ok
}

// Has reports whether key is present.
func (cp *ConnectionProperties) Has(key string) bool {
	cp.mu.RLock()
	defer cp.mu.RUnlock()
	_, ok := cp.values[key]
	return ok
}

// All returns a snapshot of all properties.
func (cp *ConnectionProperties) All() map[string]any {
	cp.mu.RLock()
	defer cp.mu.RUnlock()

	out := make(map[string]any, len(cp.values))
	for k, v := range cp.values {
		out[k] = v
	}
	return out
}

// Clone returns an independent copy.
func (cp *ConnectionProperties) Clone() *ConnectionProperties {
	return &ConnectionProperties{values: cp.All()}
}

// UpdateReadOnly refreshes the state-derived read-only properties.
// Called by the connection on every state transition.
func (cp *ConnectionProperties) UpdateReadOnly(state any, canSend, canReceive bool) {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	cp.values[KeyConnState] = state
	cp.values[KeyCanSend] = canSend
	cp.values[KeyCanReceive] = canReceive
}

// UpdateMessageLimits records the message size limits of the chosen
// protocol stack. Called once after establishment.
func (cp *ConnectionProperties) UpdateMessageLimits(singular, send, recv int) {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	cp.values[KeySingularTransmissionMsgMaxLen] = singular
	cp.values[KeySendMsgMaxLen] = send
	cp.values[KeyRecvMsgMaxLen] = recv
}

// Priority returns the connection priority, lower meaning more important.
func (cp *ConnectionProperties) Priority() uint32 {
	cp.mu.RLock()
	defer cp.mu.RUnlock()
	if v, ok := cp.values[KeyConnPriority].(uint32); ok {
		return v
	}
	return 100
}

// KeepAliveTimeout returns the keep-alive interval, or DisabledTimeout
// when keep-alives are off.
func (cp *ConnectionProperties) KeepAliveTimeout() time.Duration {
	cp.mu.RLock()
	defer cp.mu.RUnlock()
	if v, ok := cp.values[KeyKeepAliveTimeout].(time.Duration); ok {
		return v
	}
	return DisabledTimeout
}

// ConnTimeout returns how long to wait before declaring an unresponsive
// connection failed, or DisabledTimeout when unset.
func (cp *ConnectionProperties) ConnTimeout() time.Duration {
	cp.mu.RLock()
	defer cp.mu.RUnlock()
	if v, ok := cp.values[KeyConnTimeout].(time.Duration); ok {
		return v
	}
	return DisabledTimeout
}

// UserTimeout returns the TCP user timeout value and whether the option
// is enabled.
func (cp *ConnectionProperties) UserTimeout() (time.Duration, bool) {
	cp.mu.RLock()
	defer cp.mu.RUnlock()

	enabled, _ := cp.values[KeyTCPUserTimeoutEnabled].(bool)
	value, ok := cp.values[KeyTCPUserTimeoutValue].(time.Duration)
	if !ok {
		return DisabledTimeout, enabled
	}
	return value, enabled
}
