// Package pathmon tracks network interfaces and path changes.
//
// List reports the current interfaces with their addresses, status, and
// a type classified from the interface name (ethernet, wifi, cellular,
// loopback). Monitor polls the interface table and emits ChangeEvents
// when interfaces appear, disappear, or change addresses or status.
// Connections use these events to surface path changes to applications
// without terminating the connection.
package pathmon
