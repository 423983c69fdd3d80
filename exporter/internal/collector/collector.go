package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/piholestack/pihole-exporter/exporter/internal/normalize"
	"github.com/piholestack/pihole-exporter/exporter/internal/registry"
	"github.com/piholestack/pihole-exporter/exporter/internal/schema"
	"github.com/piholestack/pihole-exporter/exporter/internal/scraper"
	"github.com/piholestack/pihole-exporter/exporter/internal/telemetry"
)

// Options configures a Collector.
type Options struct {
	// StrictArity makes Collect fail when any observation conflicts with a
	// metric's registered label set.
	StrictArity bool
}

// Collector ties the scraper, normalizer and registry together.
//
// Collect may run concurrently. Each registry merge is atomic, so concurrent
// scrapes never expose a half-merged metric.
type Collector struct {
	scraper    scraper.Scraper
	normalizer *normalize.Normalizer
	registry   *registry.Registry
	metrics    *telemetry.Metrics
	health     *tracker
	strict     bool
}

// New returns a Collector. All collaborators are required.
func New(s scraper.Scraper, n *normalize.Normalizer, r *registry.Registry, m *telemetry.Metrics, opts Options) *Collector {
	return &Collector{
		scraper:    s,
		normalizer: n,
		registry:   r,
		metrics:    m,
		health:     newTracker(),
		strict:     opts.StrictArity,
	}
}

// Collect performs one synchronous scrape and returns the registry contents
// after the merge, sorted by metric name.
func (c *Collector) Collect(ctx context.Context) ([]registry.Descriptor, error) {
	start := time.Now()
	log := slog.With("scrape_id", uuid.NewString())

	res, err := c.scraper.Scrape(ctx)
	if err != nil {
		c.metrics.Scrapes.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("collector: %w", err)
	}

	var conflicts []error
	for _, ep := range endpointOrder(res) {
		if ferr := res.Errors[ep]; ferr != nil {
			c.record(ep, ferr)
			log.Warn("collector: endpoint skipped, keeping last state", "endpoint", ep, "err", ferr)
			continue
		}
		snap, err := c.normalizer.Normalize(ep, res.Payloads[ep])
		if err != nil {
			c.record(ep, err)
			log.Warn("collector: normalize failed, keeping last state", "endpoint", ep, "err", err)
			continue
		}
		c.record(ep, nil)
		conflicts = append(conflicts, c.observe(ep, snap)...)
	}

	c.metrics.Series.Set(float64(c.registry.Len()))
	c.metrics.RegistryMetrics.Set(float64(c.registry.Count()))
	c.metrics.ArityConflicts.Add(float64(len(conflicts)))

	if err := errors.Join(conflicts...); err != nil {
		if c.strict {
			c.metrics.Scrapes.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("collector: %w", err)
		}
		log.Error("collector: arity conflicts, affected metrics keep their last state", "err", err)
	}

	elapsed := time.Since(start)
	c.metrics.ScrapeDuration.Observe(elapsed.Seconds())
	c.metrics.Scrapes.WithLabelValues("success").Inc()
	log.Debug("collector: scrape done",
		"scraped_at", res.ScrapedAt, "endpoints", len(res.Payloads), "failed", len(res.Errors),
		"endpoint_errors", res.Err(), "duration", elapsed)
	return c.registry.Descriptors(), nil
}

// Health returns the recent outcome summary of every endpoint seen so far.
func (c *Collector) Health() []EndpointHealth {
	return c.health.snapshot()
}

// observe merges one endpoint snapshot and zeroes the endpoint's registered
// metrics that the snapshot no longer carries.
func (c *Collector) observe(endpoint string, snap normalize.Snapshot) []error {
	var errs []error
	names := make([]string, 0, len(snap))
	for name := range snap {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		f := snap[name]
		if err := c.registry.Observe(f.Name, f.Help, endpoint, f.LabelNames, f.Tree); err != nil {
			errs = append(errs, err)
		}
	}
	for _, name := range c.registry.Names(endpoint) {
		if _, ok := snap[name]; ok {
			continue
		}
		d, ok := c.registry.Get(name)
		if !ok {
			continue
		}
		if err := c.registry.Observe(name, d.Help, endpoint, d.LabelNames, nil); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func (c *Collector) record(endpoint string, err error) {
	h := c.health.record(endpoint, err)
	up := 0.0
	if err == nil {
		up = 1
	} else {
		c.metrics.EndpointErrors.WithLabelValues(endpoint).Inc()
	}
	c.metrics.EndpointUp.WithLabelValues(endpoint).Set(up)
	c.metrics.EndpointUptime.WithLabelValues(endpoint).Set(h.UptimePct / 100)
}

// endpointOrder lists the endpoints present in res in scrape order.
func endpointOrder(res *scraper.ScrapeResult) []string {
	var out []string
	for _, ep := range schema.Endpoints {
		_, ok := res.Payloads[ep]
		_, failed := res.Errors[ep]
		if ok || failed {
			out = append(out, ep)
		}
	}
	return out
}
