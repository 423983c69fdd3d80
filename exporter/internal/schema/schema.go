// Package schema is the single table that says, for every exported Pi-hole
// metric, which upstream endpoint feeds it, how its payload is normalized,
// and which labels it carries. The normalizer reads it to build snapshot
// fragments and the registry reads it to check label arity.
package schema

import (
	"fmt"
	"slices"
	"strings"
)

// Upstream endpoint identifiers. Each maps to one api.php query.
const (
	EndpointSummary             = "summary"
	EndpointTopItems            = "top_items"
	EndpointTopSources          = "top_sources"
	EndpointForwardDestinations = "forward_destinations"
	EndpointQueryTypes          = "query_types"
	EndpointAllQueries          = "all_queries"
)

// Endpoints lists the endpoint identifiers in scrape order.
var Endpoints = []string{
	EndpointSummary,
	EndpointTopItems,
	EndpointTopSources,
	EndpointForwardDestinations,
	EndpointQueryTypes,
	EndpointAllQueries,
}

// Kind selects the normalization applied to a payload field.
type Kind int

const (
	// Scalar is a number (or numeric string) exported as a zero-label gauge.
	Scalar Kind = iota
	// Status maps "enabled" to 1 and anything else to 0.
	Status
	// Absolute extracts the "absolute" member of a nested timestamp object.
	Absolute
	// Category is an object of label value → number, exported with one label.
	Category
	// ClientQueries counts all_queries records grouped by client and domain,
	// plus the answer type in labeled mode.
	ClientQueries
	// BlockedClientQueries counts only the blocked all_queries records.
	BlockedClientQueries
)

func (k Kind) String() string {
	switch k {
	case Scalar:
		return "scalar"
	case Status:
		return "status"
	case Absolute:
		return "absolute"
	case Category:
		return "category"
	case ClientQueries:
		return "client_queries"
	case BlockedClientQueries:
		return "blocked_client_queries"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Client query aggregation modes.
const (
	// ModeLabeled exports pihole_client_queries{hostname,domain,answer_type}.
	ModeLabeled = "labeled"
	// ModeSplit exports pihole_client_queries{hostname,domain} and a separate
	// pihole_client_queries_blocked{hostname,domain}.
	ModeSplit = "split"
)

// MetricPrefix is prepended to every payload field name.
const MetricPrefix = "pihole_"

// SummaryKeyLabel labels the members of a nested summary object that is not
// a timestamp.
const SummaryKeyLabel = "key"

// Rule describes one exported metric.
type Rule struct {
	Metric     string
	Endpoint   string
	Field      string
	Kind       Kind
	LabelNames []string
	Help       string
}

// Options select the optional parts of the table.
type Options struct {
	// ClientQueriesMode is ModeLabeled or ModeSplit. Empty means ModeLabeled.
	ClientQueriesMode string
}

// Table is the immutable metric table. It is safe for concurrent use.
type Table struct {
	byMetric   map[string]Rule
	byEndpoint map[string][]Rule
	mode       string
}

// New builds the table for the given options.
func New(opts Options) (*Table, error) {
	mode := opts.ClientQueriesMode
	if mode == "" {
		mode = ModeLabeled
	}

	rules := []Rule{
		{Metric: "pihole_status", Endpoint: EndpointSummary, Field: "status", Kind: Status,
			Help: "Whether Pi-hole blocking is enabled (1) or disabled (0)."},
		{Metric: "pihole_gravity_last_updated", Endpoint: EndpointSummary, Field: "gravity_last_updated", Kind: Absolute,
			Help: "Unix time of the last gravity list update."},
		{Metric: "pihole_top_queries", Endpoint: EndpointTopItems, Field: "top_queries", Kind: Category,
			LabelNames: []string{"domain"}, Help: "Query count of the most queried domains."},
		{Metric: "pihole_top_ads", Endpoint: EndpointTopItems, Field: "top_ads", Kind: Category,
			LabelNames: []string{"domain"}, Help: "Query count of the most blocked domains."},
		{Metric: "pihole_top_sources", Endpoint: EndpointTopSources, Field: "top_sources", Kind: Category,
			LabelNames: []string{"client"}, Help: "Query count of the most active clients."},
		{Metric: "pihole_forward_destinations", Endpoint: EndpointForwardDestinations, Field: "forward_destinations", Kind: Category,
			LabelNames: []string{"resolver"}, Help: "Share of queries sent to each upstream resolver, in percent."},
		{Metric: "pihole_query_type", Endpoint: EndpointQueryTypes, Field: "querytypes", Kind: Category,
			LabelNames: []string{"query_type"}, Help: "Share of queries per DNS record type, in percent."},
	}

	switch mode {
	case ModeLabeled:
		rules = append(rules, Rule{Metric: "pihole_client_queries", Endpoint: EndpointAllQueries, Field: "data", Kind: ClientQueries,
			LabelNames: []string{"hostname", "domain", "answer_type"},
			Help:       "Queries per client, domain and answer type in the current query log."})
	case ModeSplit:
		rules = append(rules,
			Rule{Metric: "pihole_client_queries", Endpoint: EndpointAllQueries, Field: "data", Kind: ClientQueries,
				LabelNames: []string{"hostname", "domain"},
				Help:       "Queries per client and domain in the current query log."},
			Rule{Metric: "pihole_client_queries_blocked", Endpoint: EndpointAllQueries, Field: "data", Kind: BlockedClientQueries,
				LabelNames: []string{"hostname", "domain"},
				Help:       "Blocked queries per client and domain in the current query log."},
		)
	default:
		return nil, fmt.Errorf("schema: unknown client queries mode %q", mode)
	}

	t := &Table{
		byMetric:   make(map[string]Rule, len(rules)),
		byEndpoint: make(map[string][]Rule),
		mode:       mode,
	}
	for _, r := range rules {
		t.byMetric[r.Metric] = r
		t.byEndpoint[r.Endpoint] = append(t.byEndpoint[r.Endpoint], r)
	}
	return t, nil
}

// Mode returns the client query aggregation mode.
func (t *Table) Mode() string { return t.mode }

// Lookup returns the declared rule for metric.
func (t *Table) Lookup(metric string) (Rule, bool) {
	r, ok := t.byMetric[metric]
	return r, ok
}

// ForEndpoint returns the declared rules fed by endpoint, in table order.
func (t *Table) ForEndpoint(endpoint string) []Rule {
	return slices.Clone(t.byEndpoint[endpoint])
}

// Resolve returns the rule for a payload field of endpoint. Fields the table
// does not declare fall back to a rule inferred from the endpoint: summary
// fields become Scalar gauges (Absolute if the value is a timestamp object)
// and top_items fields become one-label Category gauges keyed by domain.
// The boolean is false when the field cannot be exported at all.
func (t *Table) Resolve(endpoint, field string, value any) (Rule, bool) {
	for _, r := range t.byEndpoint[endpoint] {
		if r.Field == field {
			return r, true
		}
	}

	metric := MetricName(field)
	switch endpoint {
	case EndpointSummary:
		if obj, ok := value.(map[string]any); ok {
			if _, ok := obj["absolute"]; ok {
				return Rule{Metric: metric, Endpoint: endpoint, Field: field, Kind: Absolute,
					Help: "Pi-hole summary value " + field + "."}, true
			}
			// A nested object keeps its shape so the registry sees the
			// label arity it implies.
			return Rule{Metric: metric, Endpoint: endpoint, Field: field, Kind: Category,
				LabelNames: []string{SummaryKeyLabel}, Help: "Pi-hole summary breakdown " + field + "."}, true
		}
		return Rule{Metric: metric, Endpoint: endpoint, Field: field, Kind: Scalar,
			Help: "Pi-hole summary value " + field + "."}, true
	case EndpointTopItems:
		return Rule{Metric: metric, Endpoint: endpoint, Field: field, Kind: Category,
			LabelNames: []string{"domain"}, Help: "Pi-hole top item list " + field + "."}, true
	}
	return Rule{}, false
}

// LabelNames returns the declared label names for metric, if the table knows it.
func (t *Table) LabelNames(metric string) ([]string, bool) {
	r, ok := t.Lookup(metric)
	if !ok {
		return nil, false
	}
	return slices.Clone(r.LabelNames), true
}

// MetricName turns an upstream field name into an exported metric name.
func MetricName(field string) string {
	var b strings.Builder
	b.WriteString(MetricPrefix)
	for _, r := range strings.ToLower(field) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
