package collector

import (
	"slices"
	"sync"
	"time"

	"github.com/piholestack/pihole-exporter/exporter/internal/schema"
)

// uptimeWindow is the number of recent outcomes tracked per endpoint.
const uptimeWindow = 20

// Health states.
const (
	StateHealthy  = "healthy"
	StateDegraded = "degraded"
	StateCritical = "critical"
)

// Thresholds on the uptime percentage.
const (
	ThresholdHealthy  = 85.0
	ThresholdDegraded = 60.0
)

// EndpointHealth summarizes the recent scrapes of one endpoint.
type EndpointHealth struct {
	Endpoint    string    `json:"endpoint"`
	State       string    `json:"state"`
	UptimePct   float64   `json:"uptime_pct"`
	LastError   string    `json:"last_error,omitempty"`
	LastSuccess time.Time `json:"last_success"`
}

type endpointState struct {
	history     []bool // newest last
	lastErr     error
	lastSuccess time.Time
}

type tracker struct {
	mu     sync.Mutex
	states map[string]*endpointState
	now    func() time.Time
}

func newTracker() *tracker {
	return &tracker{
		states: make(map[string]*endpointState),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// record appends one outcome for endpoint and returns its updated summary.
func (t *tracker) record(endpoint string, err error) EndpointHealth {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.states[endpoint]
	if !ok {
		st = &endpointState{}
		t.states[endpoint] = st
	}
	if len(st.history) >= uptimeWindow {
		st.history = st.history[1:]
	}
	st.history = append(st.history, err == nil)
	st.lastErr = err
	if err == nil {
		st.lastSuccess = t.now()
	}
	return st.summary(endpoint)
}

func (t *tracker) snapshot() []EndpointHealth {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]EndpointHealth, 0, len(t.states))
	for ep, st := range t.states {
		out = append(out, st.summary(ep))
	}
	slices.SortFunc(out, func(a, b EndpointHealth) int {
		return slices.Index(schema.Endpoints, a.Endpoint) - slices.Index(schema.Endpoints, b.Endpoint)
	})
	return out
}

func (st *endpointState) summary(endpoint string) EndpointHealth {
	h := EndpointHealth{
		Endpoint:    endpoint,
		UptimePct:   st.uptimePct(),
		LastSuccess: st.lastSuccess,
	}
	if st.lastErr != nil {
		h.LastError = st.lastErr.Error()
	}
	h.State = stateFromUptime(h.UptimePct)
	return h
}

func (st *endpointState) uptimePct() float64 {
	if len(st.history) == 0 {
		return 100
	}
	var ok int
	for _, s := range st.history {
		if s {
			ok++
		}
	}
	return float64(ok) / float64(len(st.history)) * 100
}

func stateFromUptime(pct float64) string {
	switch {
	case pct >= ThresholdHealthy:
		return StateHealthy
	case pct >= ThresholdDegraded:
		return StateDegraded
	default:
		return StateCritical
	}
}
