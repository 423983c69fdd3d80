package api

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/piholestack/pihole-exporter/exporter/internal/collector"
	"github.com/piholestack/pihole-exporter/exporter/internal/exposition"
	"github.com/piholestack/pihole-exporter/exporter/internal/registry"
)

// Collector runs a scrape and reports endpoint health.
type Collector interface {
	Collect(ctx context.Context) ([]registry.Descriptor, error)
	Health() []collector.EndpointHealth
}

// Stats reports registry sizes.
type Stats interface {
	Len() int
	Count() int
}

// Handler serves the exposition and health endpoints.
type Handler struct {
	collector Collector
	stats     Stats
	gatherer  prometheus.Gatherer
	mux       *http.ServeMux
}

// New creates a Handler and registers all routes. gatherer supplies the
// exporter's own metrics and may be nil.
func New(c Collector, stats Stats, gatherer prometheus.Gatherer, metricsPath string) http.Handler {
	h := &Handler{collector: c, stats: stats, gatherer: gatherer, mux: http.NewServeMux()}

	h.mux.HandleFunc("/healthz", h.health)
	h.mux.HandleFunc("/", h.root)
	if metricsPath != "/" {
		h.mux.HandleFunc(metricsPath, h.metrics)
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// root serves the exposition on "/" only; "/" is also the mux fallback.
func (h *Handler) root(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	h.metrics(w, r)
}

// metrics runs one synchronous scrape and writes the text exposition.
func (h *Handler) metrics(w http.ResponseWriter, r *http.Request) {
	if !allowed(w, r) {
		return
	}

	descs, err := h.collector.Collect(r.Context())
	if err != nil {
		slog.Error("api: scrape failed", "err", err)
		http.Error(w, "scrape failed: "+err.Error(), http.StatusInternalServerError)
		return
	}
	families := exposition.Families(descs)

	if h.gatherer != nil {
		self, err := h.gatherer.Gather()
		if err != nil {
			slog.Warn("api: gather self metrics", "err", err)
		}
		families = exposition.Merge(families, self)
	} else {
		families = exposition.Merge(families)
	}

	var buf bytes.Buffer
	if err := exposition.Write(&buf, families); err != nil {
		slog.Error("api: encode exposition", "err", err)
		http.Error(w, "encode failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", exposition.ContentType)
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	_, _ = w.Write(buf.Bytes())
}

// health returns GET /healthz. It never scrapes.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	resp := HealthResponse{
		Status:    "ok",
		Series:    h.stats.Len(),
		Metrics:   h.stats.Count(),
		Endpoints: h.collector.Health(),
	}
	for _, e := range resp.Endpoints {
		if e.State != collector.StateHealthy {
			resp.Status = "degraded"
			break
		}
	}
	jsonResp(w, http.StatusOK, resp)
}

// --- helpers ----------------------------------------------------------------

func allowed(w http.ResponseWriter, r *http.Request) bool {
	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		return true
	}
	w.Header().Set("Allow", "GET, HEAD")
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	return false
}

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
