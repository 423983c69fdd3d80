// Package api implements the exporter's HTTP surface.
//
// New(collector, registry, gatherer, metricsPath) returns an http.Handler that
// serves:
//
//	GET <metricsPath>  scrape Pi-hole now, answer the text exposition
//	GET /              same as <metricsPath>
//	GET /healthz       JSON: overall status, series and metric counts,
//	                   per-endpoint health
//
// Exposition endpoints answer text/plain; version=0.0.4 and 500 when the
// scrape fails. /healthz answers application/json. Every endpoint answers 405
// for methods other than GET and HEAD.
package api
