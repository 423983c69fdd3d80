// pihole-exporter serves Pi-hole statistics in the Prometheus text format.
//
// Every GET of the metrics path polls the Pi-hole api.php once and merges the
// result into a process-wide registry, so series that vanish upstream are
// exported as 0 instead of disappearing.
//
// Usage:
//
//	# Scrape pi.hole, token read from /etc/pihole/setupVars.conf
//	pihole-exporter
//
//	# Explicit host, port and token
//	pihole-exporter -o 192.168.1.2 -p 9311 -a "$PIHOLE_TOKEN"
//
//	# Config file with hot reload of log level and token
//	pihole-exporter --config /etc/pihole-exporter/config.yaml
package main

func main() {
	Execute()
}
