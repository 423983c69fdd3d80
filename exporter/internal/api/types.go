package api

import "github.com/piholestack/pihole-exporter/exporter/internal/collector"

// HealthResponse is the payload for GET /healthz.
type HealthResponse struct {
	// Status is "ok" when every endpoint is healthy and "degraded" otherwise.
	Status    string                     `json:"status"`
	Series    int                        `json:"series"`
	Metrics   int                        `json:"metrics"`
	Endpoints []collector.EndpointHealth `json:"endpoints"`
}

type errorResponse struct {
	Error string `json:"error"`
}
