package normalize

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/piholestack/pihole-exporter/exporter/internal/schema"
	"github.com/piholestack/pihole-exporter/pkg/tree"
)

const summaryRawJSON = `{
  "domains_being_blocked": 126711,
  "dns_queries_today": 20412,
  "ads_blocked_today": 2311,
  "ads_percentage_today": 11.32,
  "unique_domains": 2851,
  "privacy_level": 0,
  "status": "enabled",
  "gravity_last_updated": {
    "file_exists": true,
    "absolute": 1700000000,
    "relative": {"days": 2, "hours": 4, "minutes": 11}
  },
  "reply_types": {"A": 120, "AAAA": 30}
}`

func newNormalizer(t *testing.T, mode string) *Normalizer {
	t.Helper()
	tbl, err := schema.New(schema.Options{ClientQueriesMode: mode})
	if err != nil {
		t.Fatalf("schema.New: %v", err)
	}
	return New(tbl, nil)
}

func decode(t *testing.T, s string) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		t.Fatalf("unmarshal fixture: %v", err)
	}
	return m
}

// trees strips a snapshot down to metric → tree for comparison.
func trees(s Snapshot) map[string]tree.Tree {
	out := make(map[string]tree.Tree, len(s))
	for name, f := range s {
		out[name] = f.Tree
	}
	return out
}

func TestNormalize_Summary(t *testing.T) {
	n := newNormalizer(t, "")
	snap, err := n.Normalize(schema.EndpointSummary, decode(t, summaryRawJSON))
	if err != nil {
		t.Fatalf("Normalize error: %v", err)
	}

	want := map[string]tree.Tree{
		"pihole_domains_being_blocked": tree.Leaf(126711),
		"pihole_dns_queries_today":     tree.Leaf(20412),
		"pihole_ads_blocked_today":     tree.Leaf(2311),
		"pihole_ads_percentage_today":  tree.Leaf(11.32),
		"pihole_unique_domains":        tree.Leaf(2851),
		"pihole_privacy_level":         tree.Leaf(0),
		"pihole_status":                tree.Leaf(1),
		"pihole_gravity_last_updated":  tree.Leaf(1700000000),
		"pihole_reply_types":           tree.Node{"A": tree.Leaf(120), "AAAA": tree.Leaf(30)},
	}
	if diff := cmp.Diff(want, trees(snap)); diff != "" {
		t.Errorf("summary mismatch (-want +got):\n%s", diff)
	}
	for name, f := range snap {
		if name == "pihole_reply_types" {
			continue
		}
		if len(f.LabelNames) != 0 {
			t.Errorf("%s has labels %v, want none", name, f.LabelNames)
		}
	}
}

func TestNormalize_SummaryNestedObjectKeepsShape(t *testing.T) {
	n := newNormalizer(t, "")
	tests := []struct {
		name string
		raw  any
		want tree.Tree
	}{
		{"numeric members", map[string]any{"CNAME": 3.0, "IP": "4", "note": "x"},
			tree.Node{"CNAME": tree.Leaf(3), "IP": tree.Leaf(4)}},
		{"no numeric members", map[string]any{"note": "x"}, tree.Node{}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			snap, err := n.Normalize(schema.EndpointSummary, map[string]any{"reply_types": tc.raw})
			if err != nil {
				t.Fatalf("Normalize error: %v", err)
			}
			f, ok := snap["pihole_reply_types"]
			if !ok {
				t.Fatal("reply_types fragment missing")
			}
			if diff := cmp.Diff(tc.want, f.Tree); diff != "" {
				t.Errorf("tree mismatch (-want +got):\n%s", diff)
			}
			if !cmp.Equal(f.LabelNames, []string{schema.SummaryKeyLabel}) {
				t.Errorf("labels = %v, want [%s]", f.LabelNames, schema.SummaryKeyLabel)
			}
		})
	}
}

func TestNormalize_SummaryCollisionKeepsLexicallyFirst(t *testing.T) {
	n := newNormalizer(t, "")
	payload := map[string]any{
		"dns_queries": 2.0,
		"dns-queries": 1.0,
		"dns.queries": 3.0,
	}
	// Map iteration order varies between calls, so repeat to catch a
	// nondeterministic winner.
	for i := 0; i < 20; i++ {
		snap, err := n.Normalize(schema.EndpointSummary, payload)
		if err != nil {
			t.Fatalf("Normalize error: %v", err)
		}
		if len(snap) != 1 {
			t.Fatalf("got %d fragments, want 1: %v", len(snap), trees(snap))
		}
		if v, _ := tree.Lookup(snap["pihole_dns_queries"].Tree); v != 1 {
			t.Fatalf("run %d: pihole_dns_queries = %v, want 1 from dns-queries", i, v)
		}
	}
}

func TestNormalize_StatusMapping(t *testing.T) {
	n := newNormalizer(t, "")
	tests := []struct {
		status string
		want   float64
	}{
		{"enabled", 1},
		{"disabled", 0},
		{"unknown", 0},
		{"", 0},
	}
	for _, tc := range tests {
		t.Run(tc.status, func(t *testing.T) {
			snap, err := n.Normalize(schema.EndpointSummary, map[string]any{"status": tc.status})
			if err != nil {
				t.Fatalf("Normalize error: %v", err)
			}
			got, ok := tree.Lookup(snap["pihole_status"].Tree)
			if !ok || got != tc.want {
				t.Errorf("pihole_status = %v (%v), want %v", got, ok, tc.want)
			}
		})
	}
}

func TestNormalize_SummarySkipsNonNumeric(t *testing.T) {
	n := newNormalizer(t, "")
	snap, err := n.Normalize(schema.EndpointSummary, map[string]any{
		"dns_queries_today": "1234",
		"version":           "v5.18",
	})
	if err != nil {
		t.Fatalf("Normalize error: %v", err)
	}
	if _, ok := snap["pihole_version"]; ok {
		t.Error("non-numeric string must be skipped")
	}
	if v, _ := tree.Lookup(snap["pihole_dns_queries_today"].Tree); v != 1234 {
		t.Errorf("numeric string = %v, want 1234", v)
	}
}

func TestNormalize_EmptySummaryIsMalformed(t *testing.T) {
	n := newNormalizer(t, "")
	_, err := n.Normalize(schema.EndpointSummary, map[string]any{})
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("err = %v, want ErrMalformed", err)
	}
}

func TestNormalize_TopItems(t *testing.T) {
	n := newNormalizer(t, "")
	payload := decode(t, `{
	  "top_queries": {"a.com": 5, "b.com": 3},
	  "top_ads": {"ads.example": 7}
	}`)
	snap, err := n.Normalize(schema.EndpointTopItems, payload)
	if err != nil {
		t.Fatalf("Normalize error: %v", err)
	}
	want := map[string]tree.Tree{
		"pihole_top_queries": tree.Node{"a.com": tree.Leaf(5), "b.com": tree.Leaf(3)},
		"pihole_top_ads":     tree.Node{"ads.example": tree.Leaf(7)},
	}
	if diff := cmp.Diff(want, trees(snap)); diff != "" {
		t.Errorf("top items mismatch (-want +got):\n%s", diff)
	}
	if got := snap["pihole_top_ads"].LabelNames; !cmp.Equal(got, []string{"domain"}) {
		t.Errorf("top_ads labels = %v", got)
	}
}

func TestNormalize_EmptyListContributesNothing(t *testing.T) {
	n := newNormalizer(t, "")
	snap, err := n.Normalize(schema.EndpointTopItems, decode(t, `{"top_queries": [], "top_ads": {"x.com": 1}}`))
	if err != nil {
		t.Fatalf("Normalize error: %v", err)
	}
	if _, ok := snap["pihole_top_queries"]; ok {
		t.Error("empty list must not produce a fragment")
	}
	if _, ok := snap["pihole_top_ads"]; !ok {
		t.Error("top_ads fragment missing")
	}
}

func TestNormalize_CategoryEndpoints(t *testing.T) {
	n := newNormalizer(t, "")
	tests := []struct {
		endpoint, body, metric, label string
		want                          tree.Tree
	}{
		{
			schema.EndpointTopSources, `{"top_sources": {"laptop|192.168.1.10": 40}}`,
			"pihole_top_sources", "client",
			tree.Node{"laptop|192.168.1.10": tree.Leaf(40)},
		},
		{
			schema.EndpointForwardDestinations, `{"forward_destinations": {"blocklist|blocklist": 11.5, "dns.google#53|8.8.8.8#53": 60.2}}`,
			"pihole_forward_destinations", "resolver",
			tree.Node{"blocklist|blocklist": tree.Leaf(11.5), "dns.google#53|8.8.8.8#53": tree.Leaf(60.2)},
		},
		{
			schema.EndpointQueryTypes, `{"querytypes": {"A (IPv4)": 70.1, "AAAA (IPv6)": 20.3}}`,
			"pihole_query_type", "query_type",
			tree.Node{"A (IPv4)": tree.Leaf(70.1), "AAAA (IPv6)": tree.Leaf(20.3)},
		},
	}
	for _, tc := range tests {
		t.Run(tc.endpoint, func(t *testing.T) {
			snap, err := n.Normalize(tc.endpoint, decode(t, tc.body))
			if err != nil {
				t.Fatalf("Normalize error: %v", err)
			}
			f, ok := snap[tc.metric]
			if !ok {
				t.Fatalf("fragment %s missing", tc.metric)
			}
			if diff := cmp.Diff(tc.want, f.Tree); diff != "" {
				t.Errorf("tree mismatch (-want +got):\n%s", diff)
			}
			if !cmp.Equal(f.LabelNames, []string{tc.label}) {
				t.Errorf("labels = %v, want [%s]", f.LabelNames, tc.label)
			}
		})
	}
}

func TestNormalize_MissingDeclaredFieldIsMalformed(t *testing.T) {
	n := newNormalizer(t, "")
	_, err := n.Normalize(schema.EndpointForwardDestinations, decode(t, `{"something": 1}`))
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("err = %v, want ErrMalformed", err)
	}
}

func TestNormalize_ScalarInCategoryPassesThrough(t *testing.T) {
	n := newNormalizer(t, "")
	snap, err := n.Normalize(schema.EndpointTopSources, decode(t, `{"top_sources": 12}`))
	if err != nil {
		t.Fatalf("Normalize error: %v", err)
	}
	if _, ok := snap["pihole_top_sources"].Tree.(tree.Leaf); !ok {
		t.Errorf("scalar top_sources = %#v, want a leaf for the registry to reject", snap["pihole_top_sources"].Tree)
	}
}

func TestNormalize_AllQueriesSplitCountsDuplicates(t *testing.T) {
	n := newNormalizer(t, schema.ModeSplit)
	payload := decode(t, `{"data": [
	  ["1700000000", "A", "x.com", "host1", "2"],
	  ["1700000001", "A", "x.com", "host1", "2"]
	]}`)
	snap, err := n.Normalize(schema.EndpointAllQueries, payload)
	if err != nil {
		t.Fatalf("Normalize error: %v", err)
	}

	want := tree.Node{"host1": tree.Node{"x.com": tree.Leaf(2)}}
	if diff := cmp.Diff(tree.Tree(want), snap["pihole_client_queries"].Tree); diff != "" {
		t.Errorf("client queries mismatch (-want +got):\n%s", diff)
	}
	if _, ok := snap["pihole_client_queries_blocked"]; ok {
		t.Error("status 2 (forwarded) must not count as blocked")
	}
}

func TestNormalize_AllQueriesSplitBlocked(t *testing.T) {
	n := newNormalizer(t, schema.ModeSplit)
	payload := decode(t, `{"data": [
	  ["1", "A", "ads.com", "host1", "1"],
	  ["2", "A", "ads.com", "host1", "1"],
	  ["3", "A", "ok.com", "host1", "3"],
	  ["4", "AAAA", "ads.com", "host2", 5]
	]}`)
	snap, err := n.Normalize(schema.EndpointAllQueries, payload)
	if err != nil {
		t.Fatalf("Normalize error: %v", err)
	}

	wantAll := tree.Node{
		"host1": tree.Node{"ads.com": tree.Leaf(2), "ok.com": tree.Leaf(1)},
		"host2": tree.Node{"ads.com": tree.Leaf(1)},
	}
	wantBlocked := tree.Node{
		"host1": tree.Node{"ads.com": tree.Leaf(2)},
		"host2": tree.Node{"ads.com": tree.Leaf(1)},
	}
	if diff := cmp.Diff(tree.Tree(wantAll), snap["pihole_client_queries"].Tree); diff != "" {
		t.Errorf("all mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(tree.Tree(wantBlocked), snap["pihole_client_queries_blocked"].Tree); diff != "" {
		t.Errorf("blocked mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalize_AllQueriesLabeled(t *testing.T) {
	n := newNormalizer(t, schema.ModeLabeled)
	payload := decode(t, `{"data": [
	  ["1", "A", "x.com", "host1", "2"],
	  ["2", "A", "x.com", "host1", "2"],
	  ["3", "A", "x.com", "host1", "3"],
	  ["4", "A", "y.com", "host2", "1"],
	  ["short", "record"]
	]}`)
	snap, err := n.Normalize(schema.EndpointAllQueries, payload)
	if err != nil {
		t.Fatalf("Normalize error: %v", err)
	}

	want := tree.Node{
		"host1": tree.Node{"x.com": tree.Node{"2": tree.Leaf(2), "3": tree.Leaf(1)}},
		"host2": tree.Node{"y.com": tree.Node{"1": tree.Leaf(1)}},
	}
	f := snap["pihole_client_queries"]
	if diff := cmp.Diff(tree.Tree(want), f.Tree); diff != "" {
		t.Errorf("labeled mismatch (-want +got):\n%s", diff)
	}
	if d, _ := tree.Depth(f.Tree); d != len(f.LabelNames) {
		t.Errorf("depth %d does not match labels %v", d, f.LabelNames)
	}
}

func TestNormalize_AllQueriesOrderIndependent(t *testing.T) {
	n := newNormalizer(t, schema.ModeLabeled)
	a := decode(t, `{"data": [["1","A","x.com","h1","2"],["2","A","y.com","h2","3"],["3","A","x.com","h1","2"]]}`)
	b := decode(t, `{"data": [["3","A","x.com","h1","2"],["1","A","x.com","h1","2"],["2","A","y.com","h2","3"]]}`)

	sa, _ := n.Normalize(schema.EndpointAllQueries, a)
	sb, _ := n.Normalize(schema.EndpointAllQueries, b)
	if diff := cmp.Diff(trees(sa), trees(sb)); diff != "" {
		t.Errorf("record order changed the result:\n%s", diff)
	}
}

func TestNormalize_AllQueriesWithoutData(t *testing.T) {
	n := newNormalizer(t, "")
	_, err := n.Normalize(schema.EndpointAllQueries, map[string]any{"foo": 1.0})
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("err = %v, want ErrMalformed", err)
	}
}

func TestNormalize_UnknownEndpoint(t *testing.T) {
	n := newNormalizer(t, "")
	if _, err := n.Normalize("bogus", map[string]any{}); err == nil {
		t.Fatal("expected error for unknown endpoint")
	}
}
