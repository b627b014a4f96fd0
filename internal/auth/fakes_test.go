package auth

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"tve-auth/internal/bus"
	"tve-auth/internal/platform/metrics"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeEngine records every call and exposes the callbacks it was built with.
type fakeEngine struct {
	mu     sync.Mutex
	cb     Callbacks
	calls  []string
	closed bool
}

func (e *fakeEngine) record(call string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, call)
}

func (e *fakeEngine) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.calls...)
}

func (e *fakeEngine) Count(prefix string) int {
	n := 0
	for _, c := range e.Calls() {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

func (e *fakeEngine) SetRequestor(id, signed string, endpoints []string) {
	e.record("SetRequestor:" + id + ":" + signed + ":" + strings.Join(endpoints, ","))
}
func (e *fakeEngine) CheckAuthentication()          { e.record("CheckAuthentication") }
func (e *fakeEngine) GetAuthentication()            { e.record("GetAuthentication") }
func (e *fakeEngine) GetAuthenticationToken()       { e.record("GetAuthenticationToken") }
func (e *fakeEngine) SetSelectedProvider(id string) { e.record("SetSelectedProvider:" + id) }
func (e *fakeEngine) GetSelectedProvider()          { e.record("GetSelectedProvider") }
func (e *fakeEngine) Logout()                       { e.record("Logout") }
func (e *fakeEngine) GetAuthorization(rid string)   { e.record("GetAuthorization:" + rid) }
func (e *fakeEngine) CheckPreauthorizedResources(ids []string) {
	e.record("CheckPreauthorizedResources:" + strings.Join(ids, ","))
}
func (e *fakeEngine) GetMetadata(key string) { e.record("GetMetadata:" + key) }

func (e *fakeEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

func (e *fakeEngine) factory() EngineFactory {
	return func(cb Callbacks) (Engine, error) {
		e.cb = cb
		return e, nil
	}
}

// recorder keeps every event published on the given topics, in order.
type recorder struct {
	mu     sync.Mutex
	events []bus.Event
}

func record(b bus.Bus, topics ...string) *recorder {
	r := &recorder{}
	for _, topic := range topics {
		b.On(topic, func(e bus.Event) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.events = append(r.events, e)
		})
	}
	return r
}

func (r *recorder) Events() []bus.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bus.Event(nil), r.events...)
}

func (r *recorder) Topics() []string {
	var out []string
	for _, e := range r.Events() {
		out = append(out, e.Topic)
	}
	return out
}

func (r *recorder) Of(topic string) []bus.Event {
	var out []bus.Event
	for _, e := range r.Events() {
		if e.Topic == topic {
			out = append(out, e)
		}
	}
	return out
}

func (r *recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

var internalTopics = []string{
	topicInternalRequestorReady,
	topicInternalAuthenticated,
	topicInternalNotAuthenticated,
	topicInternalGotProvider,
	topicInternalNoProvider,
	topicInternalLogout,
}

type harness struct {
	o        *Orchestrator
	engine   *fakeEngine
	bus      *bus.MemoryBus
	public   *recorder
	internal *recorder
}

func testConfig() Config {
	return Config{RequestorID: "demo", SignedRequestorID: "signed", Endpoints: []string{"http://engine.test"}}
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	b := bus.NewMemoryBus()
	h := &harness{
		engine:   &fakeEngine{},
		bus:      b,
		public:   record(b, PublicTopics...),
		internal: record(b, internalTopics...),
	}
	o, err := New(testConfig(), b, h.engine.factory(), opts...)
	require.NoError(t, err)
	h.o = o
	t.Cleanup(func() { _ = o.Close() })
	return h
}

func (h *harness) flush(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.o.Flush(ctx))
}

// initiate drives a full init cycle and clears the recorders.
func (h *harness) initiate(t *testing.T, authenticated bool, p *NativeProvider) {
	t.Helper()
	require.NoError(t, h.o.Init())
	h.flush(t)
	h.engine.cb.RequestorSetComplete(true)
	h.flush(t)
	h.engine.cb.AuthenticationStatus(authenticated, "")
	h.flush(t)
	h.engine.cb.SelectedProvider(p)
	h.flush(t)
	require.True(t, h.o.Snapshot().Initiated)
	h.public.Reset()
	h.internal.Reset()
}

func metricFamily(t *testing.T, m *metrics.Metrics, name string) *dto.MetricFamily {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == name {
			return f
		}
	}
	return nil
}

func counter(t *testing.T, m *metrics.Metrics, name, label string) float64 {
	t.Helper()
	f := metricFamily(t, m, name)
	if f == nil {
		return 0
	}
	for _, metric := range f.GetMetric() {
		for _, lp := range metric.GetLabel() {
			if lp.GetValue() == label {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func gauge(t *testing.T, m *metrics.Metrics, name string) float64 {
	t.Helper()
	f := metricFamily(t, m, name)
	if f == nil || len(f.GetMetric()) == 0 {
		return 0
	}
	return f.GetMetric()[0].GetGauge().GetValue()
}
