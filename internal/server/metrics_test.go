package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/54b3r/biorag-go/internal/rag"
)

// newMetricsTestServer builds a Server backed by a fresh isolated registry so
// tests do not pollute prometheus.DefaultRegisterer.
func newMetricsTestServer(t *testing.T, gen generator) (*Server, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	s := newTestServer(t, gen, &Config{MetricsRegistry: reg, MetricsGatherer: reg})
	return s, reg
}

// outcomeCounterValue returns the value of the named counter for the given
// outcome label, or -1 when the series is absent.
func outcomeCounterValue(t *testing.T, reg *prometheus.Registry, name, outcome string) float64 {
	t.Helper()

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "outcome" && lp.GetValue() == outcome {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return -1
}

func Test_Metrics_EndpointReturns200(t *testing.T) {
	t.Parallel()
	_, reg := newMetricsTestServer(t, &fakeGenerator{})

	srv := httptest.NewServer(promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	t.Cleanup(srv.Close)

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, srv.URL+"/metrics", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("want 200, got %d", resp.StatusCode)
	}
	ct := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("want text/plain content-type, got %q", ct)
	}
}

// Test_Metrics_QueryOutcomeOK verifies that a successful /api/query request
// increments biorag_query_requests_total{outcome="ok"}.
func Test_Metrics_QueryOutcomeOK(t *testing.T) {
	t.Parallel()
	s, reg := newMetricsTestServer(t, &fakeGenerator{answer: testAnswer()})

	postQuery(t, s, `{"question":"huesos"}`)

	if got := outcomeCounterValue(t, reg, "biorag_query_requests_total", "ok"); got != 1 {
		t.Errorf("want ok counter=1, got %v", got)
	}
}

// Test_Metrics_QueryOutcomeNoContext verifies that an empty-context failure is
// recorded under its own outcome label, not a generic error.
func Test_Metrics_QueryOutcomeNoContext(t *testing.T) {
	t.Parallel()
	s, reg := newMetricsTestServer(t, &fakeGenerator{
		queryErr: &rag.EmptyContextError{Query: "huesos"},
	})

	postQuery(t, s, `{"question":"huesos"}`)

	if got := outcomeCounterValue(t, reg, "biorag_query_requests_total", "no_context"); got != 1 {
		t.Errorf("want no_context counter=1, got %v", got)
	}
	if got := outcomeCounterValue(t, reg, "biorag_query_requests_total", "error"); got > 0 {
		t.Errorf("error counter must not move on no-context, got %v", got)
	}
}

// Test_Metrics_ChatOutcomeOK verifies that a completed /api/chat stream
// increments biorag_chat_requests_total{outcome="ok"}.
func Test_Metrics_ChatOutcomeOK(t *testing.T) {
	t.Parallel()
	s, reg := newMetricsTestServer(t, &fakeGenerator{chatText: "hola"})

	req := httptest.NewRequest(http.MethodPost, "/api/chat",
		strings.NewReader(`{"message":"hola","conversation_id":"c"}`))
	w := httptest.NewRecorder()
	s.handleChat(w, req)

	if got := outcomeCounterValue(t, reg, "biorag_chat_requests_total", "ok"); got != 1 {
		t.Errorf("want ok counter=1, got %v", got)
	}
}

func Test_Metrics_ActiveStreamsGauge(t *testing.T) {
	t.Parallel()
	s, reg := newMetricsTestServer(t, &fakeGenerator{})

	s.metrics.chatActiveStreams.Inc()
	s.metrics.chatActiveStreams.Inc()

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}

	for _, mf := range mfs {
		if mf.GetName() == "biorag_chat_active_streams" {
			v := mf.GetMetric()[0].GetGauge().GetValue()
			if v != 2 {
				t.Errorf("want active_streams=2, got %v", v)
			}
			return
		}
	}
	t.Error("biorag_chat_active_streams not found in gathered metrics")
}

// Test_Metrics_HTTPRequestsByHandler verifies the instrument middleware
// records requests under the handler label with the response status code.
func Test_Metrics_HTTPRequestsByHandler(t *testing.T) {
	t.Parallel()
	s, reg := newMetricsTestServer(t, &fakeGenerator{})

	h := s.instrument("probe", okHandler)
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}

	for _, mf := range mfs {
		if mf.GetName() != "biorag_http_requests_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["handler"] == "probe" && labels["method"] == http.MethodGet && labels["code"] == "200" {
				if m.GetCounter().GetValue() != 1 {
					t.Errorf("want counter=1, got %v", m.GetCounter().GetValue())
				}
				return
			}
		}
	}
	t.Error("biorag_http_requests_total{handler=\"probe\"} not found in gathered metrics")
}
