// Package collector runs one scrape cycle: fetch every upstream endpoint,
// normalize each payload into snapshot fragments, and merge the fragments
// into the registry.
//
// collector.go provides Collector.Collect. An endpoint that failed to fetch
// or normalize is skipped entirely so its metrics keep their last state. For
// an endpoint that succeeded, every metric it registered before but did not
// report this time is merged with an empty fragment, which zeroes it.
//
// health.go tracks the recent outcomes of each endpoint and maps the success
// share to a health state: healthy >=85%, degraded 60-84%, critical <60%.
package collector
