package registry

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/piholestack/pihole-exporter/pkg/tree"
)

// ErrArityConflict is returned when a write disagrees with the label set a
// metric was first registered with.
var ErrArityConflict = errors.New("registry: label arity conflict")

// Schema supplies the declared label names of known metrics.
type Schema interface {
	LabelNames(metric string) ([]string, bool)
}

// Descriptor is one metric's live state: its identity and the merged value
// tree of every label path ever observed for it.
type Descriptor struct {
	Name       string
	Help       string
	LabelNames []string
	// Source is the upstream endpoint the metric was first seen on.
	Source    string
	Tree      tree.Tree
	UpdatedAt time.Time
}

// Registry is the process-wide table of exported metrics. It is created once
// at startup and shared by every scrape. Entries are never removed.
//
// All exported methods are safe for concurrent use.
type Registry struct {
	mu     sync.Mutex
	schema Schema
	series map[string]*Descriptor
	now    func() time.Time // injectable for deterministic tests
}

// New creates an empty Registry. schema may be nil, in which case label
// names are only checked against the first observation.
func New(schema Schema) *Registry {
	return &Registry{
		schema: schema,
		series: make(map[string]*Descriptor),
		now:    time.Now,
	}
}

// Observe merges fragment into the stored tree of metric name. A nil fragment
// zeroes every known series of the metric. The first write that carries data
// registers the metric and fixes its label names; later writes with other
// label names, or with a tree of a different depth, fail with
// ErrArityConflict and leave the stored tree untouched.
//
// The registry lock is held for the whole merge.
func (r *Registry) Observe(name, help, source string, labelNames []string, fragment tree.Tree) error {
	if declared, ok := r.declared(name); ok && !slices.Equal(declared, labelNames) {
		return fmt.Errorf("%w: %s declared with labels %v, written with %v", ErrArityConflict, name, declared, labelNames)
	}
	if err := checkDepth(name, labelNames, fragment); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.series[name]
	if !ok {
		if _, known := tree.Depth(fragment); !known {
			// Nothing to expose yet and nothing to zero.
			return nil
		}
		r.series[name] = &Descriptor{
			Name:       name,
			Help:       help,
			LabelNames: slices.Clone(labelNames),
			Source:     source,
			Tree:       tree.Clone(fragment),
			UpdatedAt:  r.now(),
		}
		return nil
	}

	if !slices.Equal(d.LabelNames, labelNames) {
		return fmt.Errorf("%w: %s registered with labels %v, written with %v", ErrArityConflict, name, d.LabelNames, labelNames)
	}
	merged, err := tree.Merge(d.Tree, fragment)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrArityConflict, name, err)
	}
	d.Tree = merged
	d.UpdatedAt = r.now()
	if help != "" {
		d.Help = help
	}
	return nil
}

// Get returns a copy of the descriptor for name.
func (r *Registry) Get(name string) (Descriptor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.series[name]
	if !ok {
		return Descriptor{}, false
	}
	return d.copy(), true
}

// Descriptors returns copies of every registered metric, sorted by name,
// ready for encoding.
func (r *Registry) Descriptors() []Descriptor {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Descriptor, 0, len(r.series))
	for _, d := range r.series {
		out = append(out, d.copy())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns the sorted names of metrics first seen on source.
func (r *Registry) Names(source string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for name, d := range r.series {
		if d.Source == source {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Count returns the number of registered metrics.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.series)
}

// Len returns the number of exposed series across all metrics.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, d := range r.series {
		n += tree.Len(d.Tree)
	}
	return n
}

func (r *Registry) declared(name string) ([]string, bool) {
	if r.schema == nil {
		return nil, false
	}
	return r.schema.LabelNames(name)
}

// checkDepth rejects a fragment whose depth does not match its label names.
func checkDepth(name string, labelNames []string, fragment tree.Tree) error {
	if err := tree.Validate(fragment); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrArityConflict, name, err)
	}
	if depth, ok := tree.Depth(fragment); ok && depth != len(labelNames) {
		return fmt.Errorf("%w: %s has %d labels %v, snapshot has depth %d",
			ErrArityConflict, name, len(labelNames), labelNames, depth)
	}
	return nil
}

func (d *Descriptor) copy() Descriptor {
	out := *d
	out.LabelNames = slices.Clone(d.LabelNames)
	out.Tree = tree.Clone(d.Tree)
	return out
}
