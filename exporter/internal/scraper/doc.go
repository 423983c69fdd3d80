// Package scraper fetches one raw snapshot from the Pi-hole api.php.
//
// A scrape issues one GET per endpoint (summaryRaw, topItems, getQuerySources,
// getForwardDestinations, getQueryTypes and, with extended metrics,
// getAllQueries) and returns a ScrapeResult holding the decoded JSON object of
// every endpoint that answered and the error of every endpoint that did not.
// A failed endpoint never aborts the scrape: the collector skips it so its
// metrics keep their last state.
//
// The API token is appended as the auth query parameter by tokenRoundTripper
// in base.go. SetToken swaps it at runtime when the config file is reloaded.
// Requests go through an otelhttp transport so each upstream call is a span.
package scraper
