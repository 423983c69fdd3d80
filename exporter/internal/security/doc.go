// Package security inspects the TLS certificate of the Pi-hole web
// interface. Check returns nil for plain-HTTP upstreams. Watch runs Check
// periodically and reports each result to a callback, which main uses to set
// the upstream certificate gauge.
package security
