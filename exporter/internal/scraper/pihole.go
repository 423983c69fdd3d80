package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/piholestack/pihole-exporter/exporter/internal/schema"
)

// maxBodyBytes caps a single api.php response. getAllQueries on a busy
// resolver is the largest by far.
const maxBodyBytes = 64 << 20

// Options configures a Client.
type Options struct {
	// BaseURL is the api.php URL without a query string.
	BaseURL string

	// Timeout bounds each request. Zero means 10s.
	Timeout time.Duration

	// TopItems is N for topItems=N and getQuerySources=N.
	TopItems int

	// ExtendedMetrics adds the getAllQueries endpoint.
	ExtendedMetrics bool

	InsecureSkipVerify bool

	// Token is the initial API token. Empty means unauthenticated.
	Token string
}

// Client polls the Pi-hole api.php endpoints.
type Client struct {
	base      string
	endpoints []endpoint
	client    *http.Client
	token     atomic.Pointer[string]
	now       func() time.Time
}

type endpoint struct {
	id    string
	query string
}

// New returns a Client for opts. The HTTP client is built once and reused
// across scrapes.
func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("scraper: base url is required")
	}
	top := opts.TopItems
	if top <= 0 {
		top = 100
	}
	n := strconv.Itoa(top)
	eps := []endpoint{
		{schema.EndpointSummary, "summaryRaw"},
		{schema.EndpointTopItems, "topItems=" + n},
		{schema.EndpointTopSources, "getQuerySources=" + n},
		{schema.EndpointForwardDestinations, "getForwardDestinations"},
		{schema.EndpointQueryTypes, "getQueryTypes"},
	}
	if opts.ExtendedMetrics {
		eps = append(eps, endpoint{schema.EndpointAllQueries, "getAllQueries"})
	}

	c := &Client{
		base:      opts.BaseURL,
		endpoints: eps,
		now:       func() time.Time { return time.Now().UTC() },
	}
	c.SetToken(opts.Token)
	c.client = buildHTTPClient(opts, &c.token)
	return c, nil
}

// SetToken replaces the API token used by subsequent requests.
func (c *Client) SetToken(token string) {
	c.token.Store(&token)
}

// Endpoints returns the endpoint ids this client polls, in scrape order.
func (c *Client) Endpoints() []string {
	ids := make([]string, len(c.endpoints))
	for i, ep := range c.endpoints {
		ids[i] = ep.id
	}
	return ids
}

// Scrape fetches every endpoint once. Per-endpoint failures are recorded on
// the result. The returned error is non-nil only when ctx is done.
func (c *Client) Scrape(ctx context.Context) (*ScrapeResult, error) {
	res := &ScrapeResult{
		ScrapedAt: c.now(),
		Payloads:  make(map[string]map[string]any, len(c.endpoints)),
		Errors:    make(map[string]error),
	}
	for _, ep := range c.endpoints {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("scraper: %w", err)
		}
		payload, err := c.fetch(ctx, ep)
		if err != nil {
			res.Errors[ep.id] = err
			slog.Warn("scraper: fetch failed", "endpoint", ep.id, "err", err)
			continue
		}
		res.Payloads[ep.id] = payload
	}
	return res, nil
}

func (c *Client) fetch(ctx context.Context, ep endpoint) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"?"+ep.query, nil)
	if err != nil {
		return nil, fmt.Errorf("scraper %s: build request: %w", ep.id, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("scraper %s: %w", ep.id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("scraper %s: unexpected status %d", ep.id, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("scraper %s: read body: %w", ep.id, err)
	}
	return decode(ep.id, body)
}

// decode parses body as a JSON object. Numbers are kept as json.Number so
// large counters survive unchanged.
func decode(id string, body []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("scraper %s: decode JSON: %w", id, err)
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w from %s", ErrNoData, id)
	}
	return obj, nil
}
