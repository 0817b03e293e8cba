// Package taps implements the Transport Services engine defined by
// RFC 9622: Preconnections capture endpoints, transport properties and
// security parameters before any network activity; Initiate and Listen
// turn them into Connections by racing protocol stack candidates and
// accepting peers respectively.
//
// A Connection is a message-oriented, bidirectional transport session
// with an explicit state machine (Establishing, Ready, Closing, Closed,
// Failed). Applications interact with it through Send and Receive plus
// an optional EventHandler for asynchronous notifications.
package taps
