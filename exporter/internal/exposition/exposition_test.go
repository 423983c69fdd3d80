package exposition

import (
	"bytes"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piholestack/pihole-exporter/exporter/internal/registry"
	"github.com/piholestack/pihole-exporter/pkg/tree"
)

func sampleDescriptors() []registry.Descriptor {
	return []registry.Descriptor{
		{Name: "pihole_dns_queries_today", Help: "Pi-hole summary value dns_queries_today.", Tree: tree.Leaf(28391)},
		{Name: "pihole_top_queries", Help: "Query count of the most queried domains.", LabelNames: []string{"domain"},
			Tree: tree.Node{"b.com": tree.Leaf(3), "a.com": tree.Leaf(0)}},
		{Name: "pihole_client_queries", LabelNames: []string{"hostname", "domain", "answer_type"},
			Tree: tree.Node{"laptop": tree.Node{"a.com": tree.Node{"2": tree.Leaf(2)}}}},
	}
}

func encode(t *testing.T, descs []registry.Descriptor) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, Families(descs)))
	return buf.String()
}

func TestWrite_TextFormat(t *testing.T) {
	out := encode(t, sampleDescriptors())

	for _, line := range []string{
		"# HELP pihole_dns_queries_today Pi-hole summary value dns_queries_today.",
		"# TYPE pihole_dns_queries_today gauge",
		"pihole_dns_queries_today 28391",
		`pihole_top_queries{domain="a.com"} 0`,
		`pihole_top_queries{domain="b.com"} 3`,
		`pihole_client_queries{hostname="laptop",domain="a.com",answer_type="2"} 2`,
	} {
		assert.Contains(t, out, line+"\n")
	}
	assert.Less(t, strings.Index(out, `domain="a.com"} 0`), strings.Index(out, `domain="b.com"} 3`),
		"series must be ordered by label value")
}

func TestWrite_Deterministic(t *testing.T) {
	assert.Equal(t, encode(t, sampleDescriptors()), encode(t, sampleDescriptors()))
}

func TestWrite_RoundTripsThroughParser(t *testing.T) {
	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(strings.NewReader(encode(t, sampleDescriptors())))
	require.NoError(t, err)

	require.Contains(t, mfs, "pihole_top_queries")
	assert.Len(t, mfs["pihole_top_queries"].GetMetric(), 2)
	assert.Equal(t, 2.0, mfs["pihole_client_queries"].GetMetric()[0].GetGauge().GetValue())
}

func TestFamilies_SkipsEmptyTrees(t *testing.T) {
	fams := Families([]registry.Descriptor{{Name: "pihole_top_ads", LabelNames: []string{"domain"}, Tree: tree.Node{}}})
	assert.Empty(t, fams)
}

func TestMerge_SortsAndDeduplicates(t *testing.T) {
	reg := prometheus.NewRegistry()
	g := prometheus.NewGauge(prometheus.GaugeOpts{Name: "pihole_exporter_series", Help: "x"})
	reg.MustRegister(g)
	self, err := reg.Gather()
	require.NoError(t, err)

	fams := Merge(Families(sampleDescriptors()), self, Families(sampleDescriptors()[:1]))
	names := make([]string, len(fams))
	for i, mf := range fams {
		names[i] = mf.GetName()
	}
	assert.Equal(t, []string{
		"pihole_client_queries",
		"pihole_dns_queries_today",
		"pihole_exporter_series",
		"pihole_top_queries",
	}, names)
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "text/plain; version=0.0.4; charset=utf-8", ContentType)
}
