// Package property defines the transport property model.
//
// Applications declare what they need from a transport (reliability,
// ordering, message boundaries, ...) as preferences rather than naming a
// protocol. Protocol selection turns a TransportProperties snapshot into
// a ranked list of candidate stacks; the property values themselves carry
// no behavior beyond validation and defaults.
//
// # Preference Semantics
//
// Each selection property holds one of five preference levels:
//
//	Require      hard constraint - stacks without it are eliminated
//	Prefer       soft constraint - biases ranking upward
//	NoPreference no effect on selection
//	Avoid        soft constraint - biases ranking downward
//	Prohibit     hard constraint - stacks with it are eliminated
//
// Defaults describe a reliable, ordered, congestion-controlled stream, so
// a zero-configuration application gets TCP-like behavior.
//
// # Connection Properties
//
// ConnectionProperties are the string-keyed runtime knobs of an
// established connection (priority, timeouts, capacity profile). Unlike
// TransportProperties they are mutable for the connection's lifetime,
// except for keys marked read-only.
package property
