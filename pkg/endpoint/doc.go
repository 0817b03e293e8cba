// Package endpoint models local and remote endpoint specifications and
// resolves them to concrete network addresses.
//
// An Endpoint names a communication peer by any combination of hostname,
// IP address, port, mDNS service name, and network interface. Endpoints
// are immutable-by-copy: the With* setters return modified copies, so a
// Preconnection can hand the same endpoint to multiple establishment
// attempts without aliasing.
//
// # Resolution
//
// A Resolver turns a Remote endpoint into the concrete addresses that
// establishment races:
//
//   - literal IP addresses pass through unchanged
//   - hostnames are resolved via the system DNS resolver
//   - service names are browsed via mDNS ("_<service>._tcp") with
//     addresses aggregated across interfaces
//
// Partial failure is tolerated; resolution fails only when no endpoint
// yields any address.
//
// # Advertising
//
// An Advertiser registers a listener's service name over mDNS so that
// peers can resolve it by service rather than by address.
package endpoint
