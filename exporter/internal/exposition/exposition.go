// Package exposition turns registry descriptors into Prometheus metric
// families and writes them in the text exposition format.
package exposition

import (
	"fmt"
	"io"
	"sort"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"

	"github.com/piholestack/pihole-exporter/exporter/internal/registry"
	"github.com/piholestack/pihole-exporter/pkg/tree"
)

// ContentType is the Content-Type of the text exposition.
var ContentType = string(expfmt.NewFormat(expfmt.TypeTextPlain))

// Families converts descriptors to gauge families. Label pairs follow the
// descriptor's label name order and metrics follow tree.Walk order, so equal
// registries encode to identical bytes.
func Families(descs []registry.Descriptor) []*dto.MetricFamily {
	out := make([]*dto.MetricFamily, 0, len(descs))
	for _, d := range descs {
		mf := &dto.MetricFamily{
			Name: proto.String(d.Name),
			Type: dto.MetricType_GAUGE.Enum(),
		}
		if d.Help != "" {
			mf.Help = proto.String(d.Help)
		}
		tree.Walk(d.Tree, func(labels []string, v float64) {
			m := &dto.Metric{Gauge: &dto.Gauge{Value: proto.Float64(v)}}
			for i, value := range labels {
				m.Label = append(m.Label, &dto.LabelPair{
					Name:  proto.String(d.LabelNames[i]),
					Value: proto.String(value),
				})
			}
			mf.Metric = append(mf.Metric, m)
		})
		if len(mf.Metric) > 0 {
			out = append(out, mf)
		}
	}
	return out
}

// Merge appends extra families to families and sorts the result by name.
// A name present in both keeps the first occurrence.
func Merge(families []*dto.MetricFamily, extra ...[]*dto.MetricFamily) []*dto.MetricFamily {
	seen := make(map[string]bool, len(families))
	out := make([]*dto.MetricFamily, 0, len(families))
	for _, group := range append([][]*dto.MetricFamily{families}, extra...) {
		for _, mf := range group {
			if seen[mf.GetName()] {
				continue
			}
			seen[mf.GetName()] = true
			out = append(out, mf)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GetName() < out[j].GetName() })
	return out
}

// Write encodes families to w in the text exposition format.
func Write(w io.Writer, families []*dto.MetricFamily) error {
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("exposition: encode %s: %w", mf.GetName(), err)
		}
	}
	return nil
}
