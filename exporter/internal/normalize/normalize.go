// Package normalize turns the decoded JSON payload of one Pi-hole endpoint
// into snapshot fragments: one value tree per exported metric, holding only
// the label paths seen in the current poll.
//
// The shape of each fragment is dictated by the schema table. Nothing is
// zero-filled here; series that disappeared since the last poll are zeroed
// by the merge in the registry.
package normalize

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/piholestack/pihole-exporter/exporter/internal/schema"
	"github.com/piholestack/pihole-exporter/pkg/tree"
)

// ErrMalformed is returned when a payload does not carry the fields its
// endpoint is expected to return.
var ErrMalformed = errors.New("normalize: malformed payload")

// DefaultBlockedStatuses are the FTL query status codes that mean the query
// was blocked (gravity, regex, blacklist, upstream and CNAME variants).
var DefaultBlockedStatuses = []string{"1", "4", "5", "6", "7", "8", "9", "10", "11"}

// all_queries record layout: [timestamp, type, domain, client, status, ...].
const (
	recDomain = 2
	recClient = 3
	recStatus = 4
)

// Fragment is one metric's value tree for a single poll.
type Fragment struct {
	Name       string
	Help       string
	LabelNames []string
	Tree       tree.Tree
}

// Snapshot maps metric name to its fragment.
type Snapshot map[string]Fragment

// Normalizer applies the schema table to endpoint payloads.
type Normalizer struct {
	table   *schema.Table
	blocked map[string]bool
}

// New returns a Normalizer for table. blockedStatuses selects the all_queries
// records counted by the blocked client query metric; nil means
// DefaultBlockedStatuses.
func New(table *schema.Table, blockedStatuses []string) *Normalizer {
	if blockedStatuses == nil {
		blockedStatuses = DefaultBlockedStatuses
	}
	blocked := make(map[string]bool, len(blockedStatuses))
	for _, s := range blockedStatuses {
		blocked[s] = true
	}
	return &Normalizer{table: table, blocked: blocked}
}

// Normalize builds the snapshot fragments for one endpoint payload.
func (n *Normalizer) Normalize(endpoint string, payload map[string]any) (Snapshot, error) {
	switch endpoint {
	case schema.EndpointSummary:
		return n.summary(payload)
	case schema.EndpointAllQueries:
		return n.allQueries(payload)
	case schema.EndpointTopItems, schema.EndpointTopSources,
		schema.EndpointForwardDestinations, schema.EndpointQueryTypes:
		return n.categories(endpoint, payload)
	default:
		return nil, fmt.Errorf("normalize: unknown endpoint %q", endpoint)
	}
}

func (n *Normalizer) summary(payload map[string]any) (Snapshot, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: empty summary", ErrMalformed)
	}
	fields := make([]string, 0, len(payload))
	for field := range payload {
		fields = append(fields, field)
	}
	// Sorted so that when two fields map to one metric name the lexically
	// first wins on every scrape.
	sort.Strings(fields)

	snap := make(Snapshot, len(payload))
	owner := make(map[string]string, len(payload))
	for _, field := range fields {
		raw := payload[field]
		rule, ok := n.table.Resolve(schema.EndpointSummary, field, raw)
		if !ok {
			slog.Debug("normalize: skipping summary field", "field", field)
			continue
		}
		if first, taken := owner[rule.Metric]; taken {
			slog.Warn("normalize: summary fields collide, keeping the first",
				"metric", rule.Metric, "kept", first, "dropped", field)
			continue
		}

		if rule.Kind == schema.Category {
			// A nested object is passed through whole, even when empty, so a
			// metric registered as a scalar fails its arity check.
			node := make(tree.Node)
			if obj, isObj := raw.(map[string]any); isObj {
				for key, value := range obj {
					if f, ok := number(value); ok {
						node[key] = tree.Leaf(f)
					}
				}
			}
			owner[rule.Metric] = field
			snap[rule.Metric] = Fragment{Name: rule.Metric, Help: rule.Help, LabelNames: rule.LabelNames, Tree: node}
			continue
		}

		var (
			v     float64
			valid bool
		)
		switch rule.Kind {
		case schema.Status:
			v, valid = statusValue(raw), true
		case schema.Absolute:
			if obj, isObj := raw.(map[string]any); isObj {
				v, valid = number(obj["absolute"])
			}
		default:
			v, valid = number(raw)
		}
		if !valid {
			slog.Debug("normalize: non-numeric summary field", "field", field, "value", raw)
			continue
		}
		owner[rule.Metric] = field
		snap[rule.Metric] = Fragment{Name: rule.Metric, Help: rule.Help, Tree: tree.Leaf(v)}
	}
	return snap, nil
}

func (n *Normalizer) categories(endpoint string, payload map[string]any) (Snapshot, error) {
	snap := make(Snapshot)
	found := false
	for field, raw := range payload {
		rule, ok := n.table.Resolve(endpoint, field, raw)
		if !ok || rule.Kind != schema.Category {
			slog.Debug("normalize: skipping field", "endpoint", endpoint, "field", field)
			continue
		}
		found = true

		var t tree.Tree
		switch v := raw.(type) {
		case map[string]any:
			node := make(tree.Node, len(v))
			for label, value := range v {
				if f, ok := number(value); ok {
					node[label] = tree.Leaf(f)
				}
			}
			if len(node) > 0 {
				t = node
			}
		case []any:
			// PHP encodes an empty object as [].
			if len(v) > 0 {
				slog.Debug("normalize: list where object expected", "endpoint", endpoint, "field", field)
			}
		default:
			// A scalar where a label map is declared is passed through so the
			// registry can reject the arity change.
			if f, ok := number(v); ok {
				t = tree.Leaf(f)
			}
		}
		if t != nil {
			snap[rule.Metric] = Fragment{Name: rule.Metric, Help: rule.Help, LabelNames: rule.LabelNames, Tree: t}
		}
	}

	if !found && len(n.table.ForEndpoint(endpoint)) > 0 {
		return nil, fmt.Errorf("%w: %s carries none of its declared fields", ErrMalformed, endpoint)
	}
	return snap, nil
}

func (n *Normalizer) allQueries(payload map[string]any) (Snapshot, error) {
	raw, ok := payload["data"]
	if !ok {
		return nil, fmt.Errorf("%w: all_queries without data", ErrMalformed)
	}
	records, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: all_queries data is %T", ErrMalformed, raw)
	}

	snap := make(Snapshot)
	for _, rule := range n.table.ForEndpoint(schema.EndpointAllQueries) {
		counts := make(tree.Node)
		for _, rec := range records {
			fields, ok := rec.([]any)
			if !ok || len(fields) <= recStatus {
				continue
			}
			domain, ok1 := label(fields[recDomain])
			client, ok2 := label(fields[recClient])
			status, ok3 := label(fields[recStatus])
			if !ok1 || !ok2 || !ok3 {
				continue
			}

			path := []string{client, domain}
			switch {
			case rule.Kind == schema.BlockedClientQueries && !n.blocked[status]:
				continue
			case len(rule.LabelNames) == 3:
				path = append(path, status)
			}
			increment(counts, path)
		}
		if len(counts) > 0 {
			snap[rule.Metric] = Fragment{Name: rule.Metric, Help: rule.Help, LabelNames: rule.LabelNames, Tree: counts}
		}
	}
	return snap, nil
}

// increment adds one to the leaf at path, creating nodes on the way.
func increment(n tree.Node, path []string) {
	for _, label := range path[:len(path)-1] {
		child, ok := n[label].(tree.Node)
		if !ok {
			child = make(tree.Node)
			n[label] = child
		}
		n = child
	}
	last := path[len(path)-1]
	leaf, _ := n[last].(tree.Leaf)
	n[last] = leaf + 1
}

func statusValue(v any) float64 {
	if s, ok := v.(string); ok && s == "enabled" {
		return 1
	}
	return 0
}

// number converts a decoded JSON scalar to float64.
func number(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// label converts a decoded JSON scalar to a label value.
func label(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case json.Number:
		return x.String(), true
	}
	return "", false
}
