// Package selection maps transport properties to the protocol stacks
// that can satisfy them.
//
// The candidate universe is a fixed, ordered list of supported stacks
// (TCP, TCP+TLS, UDP). Select evaluates every selection property against
// each stack's capability set: a stack is eliminated when it cannot
// satisfy a Require or intrinsically provides a Prohibit, and the
// survivors are ranked by how many Prefer properties they satisfy minus
// how many Avoid properties they provide anyway. Ties keep the universe
// declaration order.
//
// Selection is pure and total: it performs no I/O and always returns,
// with an empty result signalling that the property combination is
// unsatisfiable. Callers report that as a configuration error before
// attempting any network operation.
package selection
