package scraper

import (
	"context"
	"crypto/tls"
	"errors"
	"net/http"
	"net/url"
	"sort"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const defaultScrapeTimeout = 10 * time.Second

// ErrNoData is recorded for an endpoint that answered 200 with something
// other than a JSON object. Pi-hole answers [] when the token is missing or
// wrong.
var ErrNoData = errors.New("scraper: no data")

// ScrapeResult is the raw output of one scrape cycle.
type ScrapeResult struct {
	ScrapedAt time.Time

	// Payloads holds the decoded JSON object per endpoint id for every
	// endpoint that answered.
	Payloads map[string]map[string]any

	// Errors holds the failure per endpoint id. An endpoint appears in
	// exactly one of Payloads and Errors.
	Errors map[string]error
}

// Err joins the per-endpoint errors in endpoint order, or returns nil.
func (r *ScrapeResult) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	ids := make([]string, 0, len(r.Errors))
	for id := range r.Errors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	errs := make([]error, 0, len(ids))
	for _, id := range ids {
		errs = append(errs, r.Errors[id])
	}
	return errors.Join(errs...)
}

// Scraper is implemented by Client. The collector depends on this interface
// so tests can feed it canned results.
type Scraper interface {
	Scrape(ctx context.Context) (*ScrapeResult, error)
}

// tokenRoundTripper appends the auth query parameter to every outgoing
// request. The token is read on each request so SetToken takes effect
// without rebuilding the client.
type tokenRoundTripper struct {
	base  http.RoundTripper
	token *atomic.Pointer[string]
}

func (t *tokenRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	tok := t.token.Load()
	if tok == nil || *tok == "" {
		return t.base.RoundTrip(req)
	}
	req = req.Clone(req.Context())
	q := req.URL.RawQuery
	if q != "" {
		q += "&"
	}
	req.URL.RawQuery = q + "auth=" + url.QueryEscape(*tok)
	return t.base.RoundTrip(req)
}

// buildHTTPClient constructs the upstream http.Client. otelhttp wraps the
// token transport, so span attributes carry the URL without the token.
func buildHTTPClient(opts Options, token *atomic.Pointer[string]) *http.Client {
	tlsCfg := &tls.Config{
		InsecureSkipVerify: opts.InsecureSkipVerify, //nolint:gosec // user-configured
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultScrapeTimeout
	}
	transport := &tokenRoundTripper{
		base:  &http.Transport{TLSClientConfig: tlsCfg, Proxy: http.ProxyFromEnvironment},
		token: token,
	}
	return &http.Client{
		Transport: otelhttp.NewTransport(transport),
		Timeout:   timeout,
	}
}
